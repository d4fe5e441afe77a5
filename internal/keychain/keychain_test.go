package keychain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/and161185/furni/internal/model"
)

func openTemp(t *testing.T, dir string, opts Options) *Keychain {
	t.Helper()
	k, err := Open(dir, opts)
	require.NoError(t, err)
	return k
}

func TestKeychain_SessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	k := openTemp(t, dir, Options{})

	tw := model.TwitterSession{ID: "42", UserName: "romain", Creds: model.Credentials{Token: "t", Secret: "s"}}
	dg := model.DigitsSession{ID: "77", PhoneNumber: "+14155550100", Email: "r@example.com", Creds: model.Credentials{Token: "d", Secret: "x"}}
	require.NoError(t, k.SaveSession(tw))
	require.NoError(t, k.SaveSession(dg))
	require.NoError(t, k.Close())

	// Reopen: the device secret on disk yields the same key.
	k = openTemp(t, dir, Options{})
	defer k.Close()

	got, err := k.LoadSession(model.ProviderTwitter)
	require.NoError(t, err)
	assert.Equal(t, tw, got)
	got, err = k.LoadSession(model.ProviderDigits)
	require.NoError(t, err)
	assert.Equal(t, dg, got)

	require.NoError(t, k.DeleteSession(model.ProviderTwitter))
	got, err = k.LoadSession(model.ProviderTwitter)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeychain_SecretsAreSealed(t *testing.T) {
	dir := t.TempDir()
	k := openTemp(t, dir, Options{})
	require.NoError(t, k.SaveSession(model.TwitterSession{ID: "42", Creds: model.Credentials{Token: "plain-token", Secret: "plain-secret"}}))
	require.NoError(t, k.Close())

	db, err := bbolt.Open(filepath.Join(dir, DBFile), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketSessions)).Get([]byte(model.ProviderTwitter))
		require.NotNil(t, raw)
		assert.NotContains(t, string(raw), "plain-token")
		assert.NotContains(t, string(raw), "plain-secret")
		return nil
	}))

	info, err := os.Stat(filepath.Join(dir, SecretFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestKeychain_PassphraseChangesKey(t *testing.T) {
	dir := t.TempDir()
	k := openTemp(t, dir, Options{Passphrase: "hunter2"})
	require.NoError(t, k.SaveSession(model.DigitsSession{ID: "77", Creds: model.Credentials{Token: "d", Secret: "x"}}))
	require.NoError(t, k.Close())

	k = openTemp(t, dir, Options{Passphrase: "wrong"})
	_, err := k.LoadSession(model.ProviderDigits)
	require.Error(t, err)
	require.NoError(t, k.Close())

	k = openTemp(t, dir, Options{Passphrase: "hunter2"})
	defer k.Close()
	got, err := k.LoadSession(model.ProviderDigits)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestKeychain_Flags(t *testing.T) {
	k := openTemp(t, t.TempDir(), Options{})
	defer k.Close()

	v, err := k.Flag(FlagContactsUploaded)
	require.NoError(t, err)
	assert.False(t, v)

	require.NoError(t, k.SetFlag(FlagContactsUploaded, true))
	v, err = k.Flag(FlagContactsUploaded)
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, k.SetFlag(FlagContactsUploaded, false))
	v, _ = k.Flag(FlagContactsUploaded)
	assert.False(t, v)
}
