package postgres

import (
	"context"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// MinMatchDigits is the shortest contact number used for matching. Shorter
// numbers would match too many registered phones.
const MinMatchDigits = 7

// ContactRepo implements ContactRepository using PostgreSQL.
type ContactRepo struct{ db *DB }

// NewContactRepo constructs a contacts repository.
func NewContactRepo(db *DB) *ContactRepo { return &ContactRepo{db: db} }

// Store adds the numbers keyed by their digits; duplicates are skipped.
func (r *ContactRepo) Store(ctx context.Context, id model.FederatedIdentity, phones []string) (int, error) {
	seen := make(map[string]struct{}, len(phones))
	digits := make([]string, 0, len(phones))
	numbers := make([]string, 0, len(phones))
	for _, p := range phones {
		d := model.PhoneDigits(p)
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		digits = append(digits, d)
		numbers = append(numbers, p)
	}
	if len(digits) == 0 {
		return 0, nil
	}

	const q = `
INSERT INTO contacts (identity_id, phone_digits, phone_number)
SELECT $1, d, n FROM unnest($2::text[], $3::text[]) AS t(d, n)
ON CONFLICT (identity_id, phone_digits) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, string(id), digits, numbers)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Matches returns one page of registered users whose phone number ends with
// one of the identity's contact numbers.
func (r *ContactRepo) Matches(
	ctx context.Context, id model.FederatedIdentity, after model.FederatedIdentity, limit int,
) ([]model.RegisteredUser, error) {
	const q = `
SELECT DISTINCT ON (u.identity_id)
  u.identity_id, u.digits_id, u.phone_number, u.phone_digits, u.created_at, u.updated_at
FROM contacts c
JOIN users u
  ON length(c.phone_digits) >= $4
 AND right(u.phone_digits, length(c.phone_digits)) = c.phone_digits
WHERE c.identity_id=$1 AND u.identity_id <> $1 AND u.identity_id > $2 AND u.digits_id <> ''
ORDER BY u.identity_id
LIMIT $3`
	return queryUsers(ctx, r.db.Pool, q, string(id), string(after), limit, MinMatchDigits)
}
