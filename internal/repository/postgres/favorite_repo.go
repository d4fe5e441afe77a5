package postgres

import (
	"context"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// FavoriteRepo implements FavoriteRepository using PostgreSQL.
type FavoriteRepo struct{ db *DB }

// NewFavoriteRepo constructs a favorites repository.
func NewFavoriteRepo(db *DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

// List returns the favorites of ids grouped by identity, newest product first.
func (r *FavoriteRepo) List(ctx context.Context, ids []model.FederatedIdentity) ([]model.Favorite, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
SELECT identity_id, product_id, collection, name, price, created_at
FROM favorites
WHERE identity_id = ANY($1)
ORDER BY identity_id, product_id DESC`
	rows, err := r.db.Pool.Query(ctx, q, identityStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Favorite
	for rows.Next() {
		var (
			f  model.Favorite
			id string
		)
		if err := rows.Scan(&id, &f.Product.ID, &f.Product.Collection, &f.Product.Name, &f.Product.Price, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.IdentityID = model.FederatedIdentity(id)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Add stores a favorite. A repeated add keeps the original row.
func (r *FavoriteRepo) Add(ctx context.Context, f model.Favorite) error {
	const q = `
INSERT INTO favorites (identity_id, product_id, collection, name, price)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (identity_id, product_id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, string(f.IdentityID), f.Product.ID, f.Product.Collection, f.Product.Name, f.Product.Price)
	if isForeignKeyViolation(err) {
		return errs.ErrNotFound
	}
	return err
}

// Remove deletes a favorite if present.
func (r *FavoriteRepo) Remove(ctx context.Context, id model.FederatedIdentity, productID int64) error {
	const q = `DELETE FROM favorites WHERE identity_id=$1 AND product_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, string(id), productID)
	return err
}
