package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"net"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// epoch marks a verify_limiter row that is not locked.
var epoch = time.Unix(0, 0).UTC()

// PG counts wrong one-time codes per (email, client) in the verify_limiter
// table. maxFails wrong codes inside window lock the pair out for blockFor.
type PG struct {
	db       querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG builds a lockout over a pgx pool or connection. A maxFails below 1 is
// treated as 1.
func NewPG(db querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	if maxFails < 1 {
		maxFails = 1
	}
	return &PG{db: db, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// HashIP digests the client host. A trailing port is dropped so reconnecting
// from the same host lands on the same row.
func HashIP(addr string) []byte {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	h := sha256.Sum256([]byte(addr))
	return h[:]
}

func key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Allow reports whether the pair may submit a code, and the lockout left if not.
func (l *PG) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	q, args, err := psql.Select("blocked_until").
		From("verify_limiter").
		Where("email = ? AND ip_hash = ?", key(email), ipHash).
		ToSql()
	if err != nil {
		return false, 0, err
	}

	var blockedUntil time.Time
	switch err := l.db.QueryRow(ctx, q, args...).Scan(&blockedUntil); {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if left := blockedUntil.Sub(l.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

// Success clears the count once a code has been accepted.
func (l *PG) Success(ctx context.Context, email string, ipHash []byte) error {
	q, args, err := psql.Insert("verify_limiter").
		Columns("email", "ip_hash", "fail_count", "blocked_until", "updated_at").
		Values(key(email), ipHash, 0, epoch, l.now()).
		Suffix("ON CONFLICT (email, ip_hash) DO UPDATE SET fail_count = 0, blocked_until = EXCLUDED.blocked_until, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	_, err = l.db.Exec(ctx, q, args...)
	return err
}

// bumped is the post-failure count: a row untouched since the window start
// restarts at one.
const bumped = "CASE WHEN verify_limiter.updated_at < ? THEN 1 ELSE verify_limiter.fail_count + 1 END"

// Failure counts one wrong code and sets the lockout in the same statement.
func (l *PG) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	until := now.Add(l.blockFor)
	windowStart := now.Add(-l.window)

	first := epoch
	if l.maxFails == 1 {
		first = until
	}

	q, args, err := psql.Insert("verify_limiter").
		Columns("email", "ip_hash", "fail_count", "blocked_until", "updated_at").
		Values(key(email), ipHash, 1, first, now).
		Suffix("ON CONFLICT (email, ip_hash) DO UPDATE SET"+
			" fail_count = "+bumped+","+
			" blocked_until = CASE WHEN "+bumped+" >= ? THEN ? ELSE verify_limiter.blocked_until END,"+
			" updated_at = EXCLUDED.updated_at"+
			" RETURNING fail_count, blocked_until",
			windowStart, windowStart, l.maxFails, until).
		ToSql()
	if err != nil {
		return false, 0, err
	}

	var (
		fails        int
		blockedUntil time.Time
	)
	if err := l.db.QueryRow(ctx, q, args...).Scan(&fails, &blockedUntil); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	return true, blockedUntil.Sub(now), nil
}
