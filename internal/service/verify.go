package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/sortwatch/internal/crypto"
	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/limiter"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
	"github.com/and161185/sortwatch/internal/tokenstore"
)

const codeDigits = 6

// Mailer delivers a verification code to a user.
type Mailer interface {
	SendCode(ctx context.Context, email, code string) error
}

// LogMailer writes codes to the log. It stands in for a mail gateway, so the
// code only appears when the logger runs at debug level.
type LogMailer struct{ Log *zap.Logger }

// SendCode logs the delivery at info level and the code itself at debug.
func (m LogMailer) SendCode(_ context.Context, email, code string) error {
	m.Log.Info("verification code issued", zap.String("email", email))
	m.Log.Debug("verification code", zap.String("email", email), zap.String("code", code))
	return nil
}

// Session is a signed bearer token for a collector.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        model.User
}

// VerifyService implements email one-time code login.
type VerifyService interface {
	// RequestCode sends a fresh code to email. Unknown emails are accepted silently.
	RequestCode(ctx context.Context, email string) error
	// VerifyCode checks a code and returns a single-use follow-up token.
	VerifyCode(ctx context.Context, email, code, ip string) (string, error)
	// ConsumeToken returns the email bound to token and invalidates it.
	ConsumeToken(ctx context.Context, token string) (string, error)
	// IssueSession exchanges a follow-up token for a signed bearer token.
	IssueSession(ctx context.Context, token string) (Session, error)
}

// VerifyOptions configures VerifyServiceImpl.
type VerifyOptions struct {
	CodeTTL   time.Duration
	TokenTTL  time.Duration
	AccessTTL time.Duration
	SignKey   []byte
}

// VerifyServiceImpl keeps codes and follow-up tokens in memory only.
type VerifyServiceImpl struct {
	users  repository.UserRepository
	mailer Mailer
	lim    limiter.Limiter
	opts   VerifyOptions
	log    *zap.Logger
	now    func() time.Time

	codes  *tokenstore.Store[pkgcrypto.HashedCode]
	tokens *tokenstore.Store[string]
}

// NewVerifyService constructs VerifyServiceImpl. Zero TTLs take the defaults
// of 10 minutes for codes, 30 minutes for tokens and 12 hours for sessions.
func NewVerifyService(users repository.UserRepository, mailer Mailer, lim limiter.Limiter, opts VerifyOptions, log *zap.Logger) *VerifyServiceImpl {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 12 * time.Hour
	}
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VerifyServiceImpl{
		users:  users,
		mailer: mailer,
		lim:    lim,
		opts:   opts,
		log:    log.With(zap.String("component", "verify")),
		now:    time.Now,
		codes:  tokenstore.New[pkgcrypto.HashedCode](),
		tokens: tokenstore.New[string](),
	}
}

func normEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// RequestCode replaces any outstanding code for email.
func (s *VerifyServiceImpl) RequestCode(ctx context.Context, email string) error {
	email = normEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("email: %w", errs.ErrInvalidInput)
	}
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.log.Debug("code requested for unknown email")
			return nil
		}
		return err
	}

	code, err := pkgcrypto.NewCode(codeDigits)
	if err != nil {
		return err
	}
	hashed, err := pkgcrypto.HashCode(code)
	if err != nil {
		return err
	}
	s.codes.Put(email, hashed, s.opts.CodeTTL)
	if err := s.mailer.SendCode(ctx, email, code); err != nil {
		s.codes.Delete(email)
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// VerifyCode applies the lockout, then checks the code. The stored code is
// taken out of the store before it is compared, so concurrent callers cannot
// both redeem it; a wrong guess puts it back with its original deadline.
func (s *VerifyServiceImpl) VerifyCode(ctx context.Context, email, code, ip string) (string, error) {
	email = normEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", errs.ErrRateLimited
	}

	hashed, deadline, ok := s.codes.TakeWithExpiry(email)
	if !ok || !hashed.Matches(strings.TrimSpace(code)) {
		if ok {
			s.codes.Restore(email, hashed, deadline)
		}
		return "", s.failed(ctx, email, ipHash)
	}
	if err := s.lim.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("reset lockout", zap.Error(err))
	}

	token, err := pkgcrypto.NewToken(32)
	if err != nil {
		return "", err
	}
	s.tokens.Put(token, email, s.opts.TokenTTL)
	return token, nil
}

// failed records a wrong attempt. If the attempt cannot be recorded the
// caller gets the store error, never another guess.
func (s *VerifyServiceImpl) failed(ctx context.Context, email string, ipHash []byte) error {
	blocked, _, err := s.lim.Failure(ctx, email, ipHash)
	if err != nil {
		s.log.Warn("record failed attempt", zap.Error(err))
		return fmt.Errorf("record failed attempt: %w", err)
	}
	if blocked {
		return errs.ErrRateLimited
	}
	return errs.ErrUnauthorized
}

// ConsumeToken is single use.
func (s *VerifyServiceImpl) ConsumeToken(_ context.Context, token string) (string, error) {
	email, ok := s.tokens.Take(token)
	if !ok {
		return "", errs.ErrUnauthorized
	}
	return email, nil
}

// IssueSession signs an HS256 JWT whose subject is the user id and whose
// name claim is the display name.
func (s *VerifyServiceImpl) IssueSession(ctx context.Context, token string) (Session, error) {
	email, err := s.ConsumeToken(ctx, token)
	if err != nil {
		return Session{}, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Session{}, errs.ErrUnauthorized
		}
		return Session{}, err
	}

	now := s.now()
	exp := now.Add(s.opts.AccessTTL)
	claims := CollectorClaims{
		Name: u.DisplayName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.SignKey)
	if err != nil {
		return Session{}, err
	}
	return Session{AccessToken: signed, ExpiresAt: exp, User: *u}, nil
}

// CollectorClaims are the JWT claims carried by collector sessions.
type CollectorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}
