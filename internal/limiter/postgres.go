package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/blake2b"
)

// PG keeps a sliding failure window and lockout per client in exchange_limiter.
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

// NewPG constructs a limiter over a pool or any pgx querier.
func NewPG(db querier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{db: db, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// ClientKey hashes a client address so raw IPs are never stored.
func ClientKey(ip string) []byte {
	h := blake2b.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether the client is currently unblocked.
func (l *PG) Allow(ctx context.Context, client []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM exchange_limiter WHERE client_hash=$1`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, client).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := blockedUntil.Sub(l.now()); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets the client's counters.
func (l *PG) Success(ctx context.Context, client []byte) error {
	const q = `
INSERT INTO exchange_limiter (client_hash, fail_count, blocked_until, updated_at)
VALUES ($1, 0, 'epoch', now())
ON CONFLICT (client_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.db.Exec(ctx, q, client)
	return err
}

// Failure counts a rejected exchange. The count restarts when the previous
// failure is older than the window; reaching maxFails blocks the client.
func (l *PG) Failure(ctx context.Context, client []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO exchange_limiter (client_hash, fail_count, blocked_until, updated_at)
VALUES ($1, 1, 'epoch', now())
ON CONFLICT (client_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - exchange_limiter.updated_at > $2::interval THEN 1 ELSE exchange_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.db.QueryRow(ctx, q, client, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}

	const upd = `UPDATE exchange_limiter SET blocked_until=$2 WHERE client_hash=$1`
	if _, err := l.db.Exec(ctx, upd, client, l.now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
