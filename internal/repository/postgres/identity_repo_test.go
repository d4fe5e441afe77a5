package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var (
	twitterLogin = model.Login{Provider: model.ProviderTwitter, Subject: "tw-sub"}
	digitsLogin  = model.Login{Provider: model.ProviderDigits, Subject: "dg-sub"}

	loginProviders = []string{"api.twitter.com", "www.digits.com"}
	loginSubjects  = []string{"tw-sub", "dg-sub"}
)

const (
	selLinked = `SELECT i.id, i.created_at FROM identity_logins l JOIN identities i`
	insLogins = `INSERT INTO identity_logins \(provider, subject, identity_id\)`
)

func TestIdentityRepo_Resolve_CreatesCandidate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selLinked).
		WithArgs(loginProviders, loginSubjects).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectExec(`INSERT INTO identities \(id\) VALUES \(\$1\)`).
		WithArgs("us-east-1:new").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insLogins).
		WithArgs(loginProviders, loginSubjects, "us-east-1:new").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	id, created, err := r.Resolve(context.Background(), []model.Login{twitterLogin, digitsLogin}, "us-east-1:new")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, model.FederatedIdentity("us-east-1:new"), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Resolve_LinksToExisting(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(selLinked).
		WithArgs(loginProviders, loginSubjects).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("us-east-1:old", ts))
	mock.ExpectExec(insLogins).
		WithArgs(loginProviders, loginSubjects, "us-east-1:old").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	id, created, err := r.Resolve(context.Background(), []model.Login{twitterLogin, digitsLogin}, "us-east-1:new")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, model.FederatedIdentity("us-east-1:old"), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Resolve_MergesIntoOldest(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	others := []string{"us-east-1:b"}

	mock.ExpectBegin()
	mock.ExpectQuery(selLinked).
		WithArgs(loginProviders, loginSubjects).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("us-east-1:a", ts).
			AddRow("us-east-1:b", ts.Add(time.Hour)))
	mock.ExpectExec(`UPDATE identity_logins SET identity_id=\$1 WHERE identity_id = ANY\(\$2\)`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO favorites .* SELECT \$1, product_id`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectExec(`INSERT INTO datasets .* jsonb_object_agg.* ON CONFLICT \(identity_id, name\) DO UPDATE`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO users .* ORDER BY digits_id = '', created_at.* ON CONFLICT \(identity_id\) DO UPDATE`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO friendships .* WHERE f\.a <> f\.b\s+ON CONFLICT \(identity_id, friend_id\) DO NOTHING`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec(`INSERT INTO contacts .* SELECT \$1, phone_digits`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 4))
	mock.ExpectExec(`DELETE FROM identities WHERE id = ANY\(\$1\)`).
		WithArgs(others).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(insLogins).
		WithArgs(loginProviders, loginSubjects, "us-east-1:a").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	id, created, err := r.Resolve(context.Background(), []model.Login{twitterLogin, digitsLogin}, "us-east-1:new")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, model.FederatedIdentity("us-east-1:a"), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Resolve_MergeFailureRollsBack(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	others := []string{"us-east-1:b"}

	mock.ExpectBegin()
	mock.ExpectQuery(selLinked).
		WithArgs(loginProviders, loginSubjects).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("us-east-1:a", ts).
			AddRow("us-east-1:b", ts.Add(time.Hour)))
	mock.ExpectExec(`UPDATE identity_logins`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO favorites`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO datasets`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("us-east-1:a", others).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec(`INSERT INTO friendships`).
		WithArgs("us-east-1:a", others).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, _, err := r.Resolve(context.Background(), []model.Login{twitterLogin, digitsLogin}, "us-east-1:new")
	require.Error(t, err)
	require.Contains(t, err.Error(), "merge friendships")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityRepo_Resolve_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(selLinked).
		WithArgs([]string{"api.twitter.com"}, []string{"tw-sub"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}))
	mock.ExpectExec(`INSERT INTO identities`).
		WithArgs("us-east-1:dup").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, _, err := r.Resolve(context.Background(), []model.Login{twitterLogin}, "us-east-1:dup")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())

	_, _, err = r.Resolve(context.Background(), nil, "x")
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestIdentityRepo_Datasets(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewIdentityRepo(db)
	ctx := context.Background()
	ts := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO datasets`).
		WithArgs("us-east-1:a", "dataset", map[string]string{"twitterUserID": "42"}, []string{"digitsUserID"}).
		WillReturnRows(pgxmock.NewRows([]string{"values", "updated_at"}).
			AddRow(map[string]string{"twitterUserID": "42"}, ts))
	ds, err := r.MergeDataset(ctx, model.Dataset{
		IdentityID: "us-east-1:a",
		Name:       "dataset",
		Values:     map[string]string{"twitterUserID": "42", "digitsUserID": ""},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"twitterUserID": "42"}, ds.Values)
	require.Equal(t, ts, ds.UpdatedAt)

	mock.ExpectQuery(`INSERT INTO datasets`).
		WithArgs("us-east-1:gone", "dataset", map[string]string{}, []string{}).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	_, err = r.MergeDataset(ctx, model.Dataset{IdentityID: "us-east-1:gone", Name: "dataset"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`SELECT "values", updated_at FROM datasets WHERE identity_id=\$1 AND name=\$2`).
		WithArgs("us-east-1:a", "dataset").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetDataset(ctx, "us-east-1:a", "dataset")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("us-east-1:a").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.Exists(ctx, "us-east-1:a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
