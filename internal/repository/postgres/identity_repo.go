package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

// NewIdentityRepo constructs an identity pool repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// Resolve finds or creates the identity of logins in one transaction.
func (r *IdentityRepo) Resolve(
	ctx context.Context, logins []model.Login, candidate model.FederatedIdentity,
) (id model.FederatedIdentity, created bool, err error) {
	if len(logins) == 0 {
		return "", false, errs.ErrInvalidArgument
	}
	providers := make([]string, len(logins))
	subjects := make([]string, len(logins))
	for i, l := range logins {
		providers[i] = string(l.Provider)
		subjects[i] = l.Subject
	}

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		const sel = `
SELECT i.id, i.created_at
FROM identity_logins l
JOIN identities i ON i.id = l.identity_id
WHERE (l.provider, l.subject) IN (SELECT * FROM unnest($1::text[], $2::text[]))
ORDER BY i.created_at, i.id
FOR UPDATE OF i`
		rows, err := tx.Query(ctx, sel, providers, subjects)
		if err != nil {
			return err
		}
		var linked []string
		for rows.Next() {
			var (
				lid string
				ts  time.Time
			)
			if err := rows.Scan(&lid, &ts); err != nil {
				rows.Close()
				return err
			}
			if len(linked) == 0 || linked[len(linked)-1] != lid {
				linked = append(linked, lid)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		switch len(linked) {
		case 0:
			const ins = `INSERT INTO identities (id) VALUES ($1)`
			if _, err := tx.Exec(ctx, ins, string(candidate)); err != nil {
				if isUniqueViolation(err) {
					return errs.ErrAlreadyExists
				}
				return err
			}
			id, created = candidate, true
		case 1:
			id = model.FederatedIdentity(linked[0])
		default:
			id = model.FederatedIdentity(linked[0])
			if err := merge(ctx, tx, linked[0], linked[1:]); err != nil {
				return err
			}
		}

		const link = `
INSERT INTO identity_logins (provider, subject, identity_id)
SELECT p, s, $3 FROM unnest($1::text[], $2::text[]) AS t(p, s)
ON CONFLICT (provider, subject) DO NOTHING`
		_, err = tx.Exec(ctx, link, providers, subjects, string(id))
		return err
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

// mergeStmts fold the rows of $2 (the merged-away identities) into $1. Rows of
// $1 win on conflict. They run before the delete, which cascades.
var mergeStmts = []struct{ name, sql string }{
	{"logins", `UPDATE identity_logins SET identity_id=$1 WHERE identity_id = ANY($2)`},
	{"favorites", `
INSERT INTO favorites (identity_id, product_id, collection, name, price, created_at)
SELECT $1, product_id, collection, name, price, created_at FROM favorites WHERE identity_id = ANY($2)
ON CONFLICT (identity_id, product_id) DO NOTHING`},
	{"datasets", `
INSERT INTO datasets (identity_id, name, "values", updated_at)
SELECT $1::text, d.name, jsonb_object_agg(e.k, e.v), max(d.updated_at)
FROM datasets d, jsonb_each(d."values") AS e(k, v)
WHERE d.identity_id = ANY($2::text[])
GROUP BY d.name
ON CONFLICT (identity_id, name) DO UPDATE
SET "values" = EXCLUDED."values" || datasets."values",
    updated_at = greatest(datasets.updated_at, EXCLUDED.updated_at)`},
	{"users", `
INSERT INTO users (identity_id, digits_id, phone_number, phone_digits, created_at)
(SELECT $1::text, digits_id, phone_number, phone_digits, created_at FROM users
 WHERE identity_id = ANY($2::text[])
 ORDER BY digits_id = '', created_at
 LIMIT 1)
ON CONFLICT (identity_id) DO UPDATE
SET digits_id    = CASE WHEN users.digits_id = '' THEN EXCLUDED.digits_id ELSE users.digits_id END,
    phone_number = CASE WHEN users.digits_id = '' THEN EXCLUDED.phone_number ELSE users.phone_number END,
    phone_digits = CASE WHEN users.digits_id = '' THEN EXCLUDED.phone_digits ELSE users.phone_digits END,
    updated_at   = now()`},
	{"friendships", `
INSERT INTO friendships (identity_id, friend_id, created_at)
SELECT f.a, f.b, f.created_at FROM (
  SELECT CASE WHEN identity_id = ANY($2::text[]) THEN $1::text ELSE identity_id END AS a,
         CASE WHEN friend_id = ANY($2::text[]) THEN $1::text ELSE friend_id END AS b,
         created_at
  FROM friendships
  WHERE identity_id = ANY($2::text[]) OR friend_id = ANY($2::text[])
) f
WHERE f.a <> f.b
ON CONFLICT (identity_id, friend_id) DO NOTHING`},
	{"contacts", `
INSERT INTO contacts (identity_id, phone_digits, phone_number, uploaded_at)
SELECT $1, phone_digits, phone_number, uploaded_at FROM contacts WHERE identity_id = ANY($2)
ON CONFLICT (identity_id, phone_digits) DO NOTHING`},
}

// merge folds everything owned by others into target and drops them.
func merge(ctx context.Context, tx pgx.Tx, target string, others []string) error {
	for _, st := range mergeStmts {
		if _, err := tx.Exec(ctx, st.sql, target, others); err != nil {
			return fmt.Errorf("merge %s: %w", st.name, err)
		}
	}
	const drop = `DELETE FROM identities WHERE id = ANY($1)`
	_, err := tx.Exec(ctx, drop, others)
	return err
}

// Exists reports whether the identity is in the pool.
func (r *IdentityRepo) Exists(ctx context.Context, id model.FederatedIdentity) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM identities WHERE id=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, string(id)).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// MergeDataset upserts the non-empty values and removes the keys set to "".
func (r *IdentityRepo) MergeDataset(ctx context.Context, ds model.Dataset) (*model.Dataset, error) {
	set := make(map[string]string, len(ds.Values))
	removed := []string{}
	for k, v := range ds.Values {
		if v == "" {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}

	const q = `
INSERT INTO datasets (identity_id, name, "values", updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (identity_id, name) DO UPDATE
SET "values" = (datasets."values" || EXCLUDED."values") - $4::text[], updated_at = now()
RETURNING "values", updated_at`
	out := model.Dataset{IdentityID: ds.IdentityID, Name: ds.Name}
	err := r.db.Pool.QueryRow(ctx, q, string(ds.IdentityID), ds.Name, set, removed).Scan(&out.Values, &out.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

// GetDataset loads one dataset.
func (r *IdentityRepo) GetDataset(ctx context.Context, id model.FederatedIdentity, name string) (*model.Dataset, error) {
	const q = `SELECT "values", updated_at FROM datasets WHERE identity_id=$1 AND name=$2`
	out := model.Dataset{IdentityID: id, Name: name}
	if err := r.db.Pool.QueryRow(ctx, q, string(id), name).Scan(&out.Values, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}
