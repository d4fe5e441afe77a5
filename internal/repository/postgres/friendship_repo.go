package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// FriendshipRepo implements FriendshipRepository using PostgreSQL.
type FriendshipRepo struct{ db *DB }

// NewFriendshipRepo constructs a friendships repository.
func NewFriendshipRepo(db *DB) *FriendshipRepo { return &FriendshipRepo{db: db} }

// Link stores both directions of every link. Only links new from the side of
// from are counted.
func (r *FriendshipRepo) Link(ctx context.Context, from model.FederatedIdentity, to []model.FederatedIdentity) (created int, err error) {
	if len(to) == 0 {
		return 0, nil
	}
	friends := identityStrings(to)

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const out = `
INSERT INTO friendships (identity_id, friend_id)
SELECT $1, f FROM unnest($2::text[]) AS t(f) WHERE f <> $1
ON CONFLICT DO NOTHING`
		tag, err := tx.Exec(ctx, out, string(from), friends)
		if err != nil {
			return err
		}
		created = int(tag.RowsAffected())

		const back = `
INSERT INTO friendships (identity_id, friend_id)
SELECT f, $1 FROM unnest($2::text[]) AS t(f) WHERE f <> $1
ON CONFLICT DO NOTHING`
		_, err = tx.Exec(ctx, back, string(from), friends)
		return err
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return created, nil
}

// Friends returns the registered users linked with id.
func (r *FriendshipRepo) Friends(ctx context.Context, id model.FederatedIdentity) ([]model.RegisteredUser, error) {
	const q = `
SELECT u.identity_id, u.digits_id, u.phone_number, u.phone_digits, u.created_at, u.updated_at
FROM friendships f
JOIN users u ON u.identity_id = f.friend_id
WHERE f.identity_id=$1
ORDER BY u.identity_id`
	return queryUsers(ctx, r.db.Pool, q, string(id))
}
