package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

const userColumns = `identity_id, digits_id, phone_number, phone_digits, created_at, updated_at`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Upsert inserts the user or updates the Digits details that are set.
func (r *UserRepo) Upsert(ctx context.Context, u *model.RegisteredUser) error {
	const q = `
INSERT INTO users (identity_id, digits_id, phone_number, phone_digits)
VALUES ($1, $2, $3, $4)
ON CONFLICT (identity_id) DO UPDATE
SET
  digits_id    = CASE WHEN EXCLUDED.digits_id <> '' THEN EXCLUDED.digits_id ELSE users.digits_id END,
  phone_number = CASE WHEN EXCLUDED.digits_id <> '' THEN EXCLUDED.phone_number ELSE users.phone_number END,
  phone_digits = CASE WHEN EXCLUDED.digits_id <> '' THEN EXCLUDED.phone_digits ELSE users.phone_digits END,
  updated_at   = now()
RETURNING created_at, updated_at`
	row := r.db.Pool.QueryRow(ctx, q, string(u.IdentityID), u.DigitsUserID, u.PhoneNumber, u.PhoneDigits)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return errs.ErrNotFound
		}
		return err
	}
	return nil
}

// Get selects a user by identity.
func (r *UserRepo) Get(ctx context.Context, id model.FederatedIdentity) (*model.RegisteredUser, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE identity_id=$1`
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, string(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ByDigitsIDs selects the users registered with any of digitsIDs.
func (r *UserRepo) ByDigitsIDs(ctx context.Context, digitsIDs []string) ([]model.RegisteredUser, error) {
	if len(digitsIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE digits_id = ANY($1) ORDER BY identity_id`
	return queryUsers(ctx, r.db.Pool, q, digitsIDs)
}

func scanUser(row pgx.Row) (model.RegisteredUser, error) {
	var (
		u  model.RegisteredUser
		id string
	)
	err := row.Scan(&id, &u.DigitsUserID, &u.PhoneNumber, &u.PhoneDigits, &u.CreatedAt, &u.UpdatedAt)
	u.IdentityID = model.FederatedIdentity(id)
	return u, err
}

func queryUsers(ctx context.Context, pool PgxPool, q string, args ...any) ([]model.RegisteredUser, error) {
	rows, err := pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RegisteredUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
