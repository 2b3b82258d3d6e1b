package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/and161185/benchboard/internal/errs"
)

// PG is a PostgreSQL-backed sliding-window limiter over the registration_attempts table.
// Count-then-insert is not atomic; concurrent callers may overshoot limit slightly.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	limit  int
	now    func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter allowing fewer than limit attempts per window.
func NewPG(pool *pgxpool.Pool, window time.Duration, limit int) *PG {
	return NewPGWithQuerier(pool, window, limit)
}

// NewPGWithQuerier constructs a limiter over an arbitrary querier.
func NewPGWithQuerier(q pgxQuerier, window time.Duration, limit int) *PG {
	return &PG{pool: q, window: window, limit: limit, now: time.Now}
}

// HashOrigin returns a stable hash for an origin string to avoid storing raw addresses.
func HashOrigin(origin string) []byte {
	h := sha256.Sum256([]byte(origin))
	return h[:]
}

// Allow counts attempts in the trailing window. The retry-after hint is the time until
// the oldest counted attempt leaves the window.
func (l *PG) Allow(ctx context.Context, originHash []byte) (bool, time.Duration, error) {
	const q = `
SELECT COUNT(*), MIN(created_at) FROM registration_attempts
WHERE origin_hash=$1 AND created_at > $2`
	now := l.now()
	var (
		n      int
		oldest *time.Time
	)
	if err := l.pool.QueryRow(ctx, q, originHash, now.Add(-l.window)).Scan(&n, &oldest); err != nil {
		return false, 0, unavailable(err)
	}
	if n < l.limit {
		return true, 0, nil
	}
	retry := l.window
	if oldest != nil {
		retry = oldest.Add(l.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
	}
	return false, retry, nil
}

// Record appends an attempt at the current time.
func (l *PG) Record(ctx context.Context, originHash []byte) error {
	const q = `INSERT INTO registration_attempts (origin_hash, created_at) VALUES ($1, $2)`
	_, err := l.pool.Exec(ctx, q, originHash, l.now())
	return unavailable(err)
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", errs.ErrStorageUnavailable, err)
}
