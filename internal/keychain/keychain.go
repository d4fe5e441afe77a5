// Package keychain persists provider sessions and local flags in a bbolt file.
// Session records are sealed with a key derived from a per-device secret.
package keychain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/and161185/furni/internal/crypto/clientcrypto"
	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

const (
	DBFile     = "furni.db"
	SecretFile = "device.key"

	bucketSessions = "sessions"
	bucketFlags    = "flags"

	keyPurpose = "furni keychain v1"
)

// FlagContactsUploaded is set once the address book has been uploaded.
const FlagContactsUploaded = "contacts_uploaded"

// Options configure Open.
type Options struct {
	// Passphrase, when set, is stretched with the device secret as salt.
	Passphrase string
	Timeout    time.Duration
	Log        *zap.Logger
}

// Keychain is safe for concurrent use.
type Keychain struct {
	db  *bbolt.DB
	key []byte
	log *zap.Logger
}

type record struct {
	Provider    model.Provider `json:"provider"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name,omitempty"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	Email       string         `json:"email,omitempty"`
	Token       string         `json:"token"`
	Secret      string         `json:"secret"`
}

// Open opens or creates the keychain in dir.
func Open(dir string, opts Options) (*Keychain, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	secret, err := deviceSecret(filepath.Join(dir, SecretFile))
	if err != nil {
		return nil, err
	}
	if opts.Passphrase != "" {
		secret = clientcrypto.StretchPassphrase([]byte(opts.Passphrase), secret)
	}
	key, err := clientcrypto.DeriveKey(secret, keyPurpose)
	if err != nil {
		return nil, fmt.Errorf("derive keychain key: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, DBFile), 0o600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open keychain: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketSessions, bucketFlags} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Keychain{db: db, key: key, log: opts.Log.Named("keychain")}, nil
}

func deviceSecret(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != clientcrypto.SecretLen {
			return nil, fmt.Errorf("device secret %s: unexpected length %d", path, len(b))
		}
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read device secret: %w", err)
	}
	b, err = clientcrypto.Rand(clientcrypto.SecretLen)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return nil, fmt.Errorf("write device secret: %w", err)
	}
	return b, nil
}

// Close releases the database file lock.
func (k *Keychain) Close() error { return k.db.Close() }

// SaveSession stores sess under its provider, replacing any previous one.
func (k *Keychain) SaveSession(sess model.ProviderSession) error {
	rec := record{
		Provider: sess.Provider(),
		UserID:   sess.UserID(),
		Token:    sess.Credentials().Token,
		Secret:   sess.Credentials().Secret,
	}
	switch s := sess.(type) {
	case model.TwitterSession:
		rec.UserName = s.UserName
	case model.DigitsSession:
		rec.PhoneNumber = s.PhoneNumber
		rec.Email = s.Email
	}
	plain, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	p := []byte(rec.Provider)
	blob, err := clientcrypto.Seal(k.key, sessionAAD(rec.Provider), plain)
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	err = k.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put(p, blob)
	})
	if err == nil {
		k.log.Debug("session stored", zap.String("provider", string(rec.Provider)))
	}
	return err
}

// LoadSession returns the stored session of p, or nil when there is none.
func (k *Keychain) LoadSession(p model.Provider) (model.ProviderSession, error) {
	var blob []byte
	err := k.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketSessions)).Get([]byte(p)); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || blob == nil {
		return nil, err
	}

	plain, err := clientcrypto.Open(k.key, sessionAAD(p), blob)
	if err != nil {
		return nil, fmt.Errorf("open %s session: %w", p, err)
	}
	var rec record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("decode %s session: %w", p, err)
	}
	creds := model.Credentials{Token: rec.Token, Secret: rec.Secret}
	switch rec.Provider {
	case model.ProviderTwitter:
		return model.TwitterSession{ID: rec.UserID, UserName: rec.UserName, Creds: creds}, nil
	case model.ProviderDigits:
		return model.DigitsSession{ID: rec.UserID, PhoneNumber: rec.PhoneNumber, Email: rec.Email, Creds: creds}, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnknownProvider, rec.Provider)
}

// DeleteSession forgets the session of p.
func (k *Keychain) DeleteSession(p model.Provider) error {
	return k.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Delete([]byte(p))
	})
}

// SetFlag persists a boolean flag.
func (k *Keychain) SetFlag(name string, v bool) error {
	val := []byte{0}
	if v {
		val[0] = 1
	}
	return k.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketFlags)).Put([]byte(name), val)
	})
}

// Flag reads a boolean flag; unset flags are false.
func (k *Keychain) Flag(name string) (bool, error) {
	var v bool
	err := k.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketFlags)).Get([]byte(name))
		v = len(b) == 1 && b[0] == 1
		return nil
	})
	return v, err
}

func sessionAAD(p model.Provider) []byte {
	return []byte(bucketSessions + "/" + string(p))
}
