package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/sortwatch/internal/errs"
	"github.com/and161185/sortwatch/internal/limiter"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/repository"
)

type fakeUsers struct {
	byEmail map[string]*model.User
	getErr  error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *fakeMailer) SendCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = map[string]string{}
	}
	m.codes[email] = code
	return nil
}

type fakeLimiter struct {
	mu         sync.Mutex
	allowOK    bool
	allowErr   error
	failures   int
	blockAt    int
	failErr    error
	successes  int
	successErr error
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (f *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowOK, 0, f.allowErr
}

func (f *fakeLimiter) Success(context.Context, string, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
	return f.successErr
}

func (f *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	if f.failErr != nil {
		return false, 0, f.failErr
	}
	if f.blockAt > 0 && f.failures >= f.blockAt {
		return true, time.Minute, nil
	}
	return false, 0, nil
}

var signKey = []byte("test-signing-key-0123456789")

func newVerify(t *testing.T) (*VerifyServiceImpl, *fakeMailer, *fakeLimiter) {
	t.Helper()
	users := &fakeUsers{byEmail: map[string]*model.User{
		"ana@example.com": {ID: 7, FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com", Role: "collector"},
	}}
	m := &fakeMailer{}
	lim := &fakeLimiter{allowOK: true}
	s := NewVerifyService(users, m, lim, VerifyOptions{SignKey: signKey}, zaptest.NewLogger(t))
	return s, m, lim
}

func TestVerify_FullFlow(t *testing.T) {
	t.Parallel()
	s, m, lim := newVerify(t)
	ctx := context.Background()

	require.NoError(t, s.RequestCode(ctx, " Ana@Example.com "))
	code := m.codes["ana@example.com"]
	require.Regexp(t, `^\d{6}$`, code)

	token, err := s.VerifyCode(ctx, "ana@example.com", code, "10.0.0.1:5000")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, 1, lim.successes)

	_, err = s.VerifyCode(ctx, "ana@example.com", code, "10.0.0.1:5000")
	require.ErrorIs(t, err, errs.ErrUnauthorized, "codes are single use")

	sess, err := s.IssueSession(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(7), sess.User.ID)

	var claims CollectorClaims
	_, err = jwt.ParseWithClaims(sess.AccessToken, &claims, func(*jwt.Token) (any, error) { return signKey, nil })
	require.NoError(t, err)
	require.Equal(t, "7", claims.Subject)
	require.Equal(t, "Ana Cruz", claims.Name)

	_, err = s.IssueSession(ctx, token)
	require.ErrorIs(t, err, errs.ErrUnauthorized, "tokens are single use")
}

func TestVerify_WrongCodeAndLockout(t *testing.T) {
	t.Parallel()
	s, m, lim := newVerify(t)
	lim.blockAt = 2
	ctx := context.Background()

	require.NoError(t, s.RequestCode(ctx, "ana@example.com"))
	wrong := "000000"
	if m.codes["ana@example.com"] == wrong {
		wrong = "111111"
	}

	_, err := s.VerifyCode(ctx, "ana@example.com", wrong, "ip")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = s.VerifyCode(ctx, "ana@example.com", wrong, "ip")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	lim.allowOK = false
	_, err = s.VerifyCode(ctx, "ana@example.com", m.codes["ana@example.com"], "ip")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	lim.allowOK, lim.allowErr = false, errors.New("limiter db")
	_, err = s.VerifyCode(ctx, "ana@example.com", "123456", "ip")
	require.EqualError(t, err, "limiter db")
}

func TestVerify_ExpiredCode(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byEmail: map[string]*model.User{"bo@example.com": {ID: 2, Email: "bo@example.com"}}}
	m := &fakeMailer{}
	s := NewVerifyService(users, m, nil, VerifyOptions{CodeTTL: time.Nanosecond, SignKey: signKey}, nil)
	ctx := context.Background()

	require.NoError(t, s.RequestCode(ctx, "bo@example.com"))
	time.Sleep(time.Millisecond)
	_, err := s.VerifyCode(ctx, "bo@example.com", m.codes["bo@example.com"], "ip")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestRequestCode_Edges(t *testing.T) {
	t.Parallel()
	s, m, _ := newVerify(t)
	ctx := context.Background()

	require.ErrorIs(t, s.RequestCode(ctx, ""), errs.ErrInvalidInput)
	require.ErrorIs(t, s.RequestCode(ctx, "not-an-email"), errs.ErrInvalidInput)

	require.NoError(t, s.RequestCode(ctx, "ghost@example.com"))
	require.Empty(t, m.codes["ghost@example.com"], "no code for unknown users")

	m.err = errors.New("smtp down")
	require.Error(t, s.RequestCode(ctx, "ana@example.com"))
	require.Zero(t, s.codes.Len(), "undelivered codes are discarded")
}

func TestConsumeToken(t *testing.T) {
	t.Parallel()
	s, _, _ := newVerify(t)
	ctx := context.Background()

	s.tokens.Put("tok", "ana@example.com", time.Minute)
	email, err := s.ConsumeToken(ctx, "tok")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", email)

	_, err = s.ConsumeToken(ctx, "tok")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestVerifyCode_ConcurrentRedeemOnce(t *testing.T) {
	t.Parallel()
	s, m, lim := newVerify(t)
	ctx := context.Background()

	require.NoError(t, s.RequestCode(ctx, "ana@example.com"))
	code := m.codes["ana@example.com"]

	const callers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens []string
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.VerifyCode(ctx, "ana@example.com", code, "10.0.0.1:5000")
			if err != nil {
				assert.ErrorIs(t, err, errs.ErrUnauthorized)
				return
			}
			mu.Lock()
			tokens = append(tokens, tok)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, tokens, 1, "one code, one follow-up token")
	require.Equal(t, 1, lim.successes)
	require.Equal(t, callers-1, lim.failures)

	var (
		sessions int
		sw       sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		sw.Add(1)
		go func() {
			defer sw.Done()
			if _, err := s.IssueSession(ctx, tokens[0]); err == nil {
				mu.Lock()
				sessions++
				mu.Unlock()
			}
		}()
	}
	sw.Wait()
	require.Equal(t, 1, sessions, "one follow-up token, one session")
}

func TestVerifyCode_WrongGuessKeepsCode(t *testing.T) {
	t.Parallel()
	s, m, _ := newVerify(t)
	ctx := context.Background()

	require.NoError(t, s.RequestCode(ctx, "ana@example.com"))
	code := m.codes["ana@example.com"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err := s.VerifyCode(ctx, "ana@example.com", wrong, "ip")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	tok, err := s.VerifyCode(ctx, "ana@example.com", code, "ip")
	require.NoError(t, err, "a wrong guess must not burn the real code")
	require.NotEmpty(t, tok)
}

func TestVerifyCode_LimiterStoreErrors(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)
	users := &fakeUsers{byEmail: map[string]*model.User{"ana@example.com": {ID: 7, Email: "ana@example.com"}}}
	m := &fakeMailer{}
	lim := &fakeLimiter{allowOK: true, failErr: errors.New("limiter db")}
	s := NewVerifyService(users, m, lim, VerifyOptions{SignKey: signKey}, zap.New(core))
	ctx := context.Background()

	require.NoError(t, s.RequestCode(ctx, "ana@example.com"))
	code := m.codes["ana@example.com"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err := s.VerifyCode(ctx, "ana@example.com", wrong, "ip")
	require.ErrorContains(t, err, "limiter db")
	require.NotErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, 1, logs.FilterMessage("record failed attempt").Len())

	lim.successErr = errors.New("limiter db")
	tok, err := s.VerifyCode(ctx, "ana@example.com", code, "ip")
	require.NoError(t, err, "an accepted code still yields a token")
	require.NotEmpty(t, tok)
	require.Equal(t, 1, logs.FilterMessage("reset lockout").Len())
}

func TestLogMailer_CodeOnlyAtDebug(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	require.NoError(t, LogMailer{Log: zap.New(core)}.SendCode(context.Background(), "ana@example.com", "424242"))

	require.Equal(t, 1, logs.Len())
	for _, e := range logs.All() {
		_, hasCode := e.ContextMap()["code"]
		require.False(t, hasCode, "code leaked at %s", e.Level)
	}

	dcore, dlogs := observer.New(zapcore.DebugLevel)
	require.NoError(t, LogMailer{Log: zap.New(dcore)}.SendCode(context.Background(), "ana@example.com", "424242"))
	require.Equal(t, "424242", dlogs.FilterMessage("verification code").All()[0].ContextMap()["code"])
}
