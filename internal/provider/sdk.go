// Package provider adapts the identity providers to the account core. The
// adapters stand in for the vendor SDKs: they obtain credentials from a
// CredentialSource and keep the session in a Vault across restarts.
package provider

import (
	"context"
	"fmt"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// SDK is the provider surface consumed by the Session Manager.
type SDK interface {
	Provider() model.Provider
	// LogIn runs the interactive login.
	LogIn(ctx context.Context) (model.ProviderSession, error)
	// LogOut forgets the session of userID.
	LogOut(ctx context.Context, userID string) error
	// CurrentSession returns the persisted session, or nil.
	CurrentSession(ctx context.Context) (model.ProviderSession, error)
}

// CredentialSource performs the interactive part of a login for p. It returns
// errs.ErrCanceled when the user gives up.
type CredentialSource func(ctx context.Context, p model.Provider) (model.ProviderSession, error)

// Vault persists one session per provider.
type Vault interface {
	SaveSession(sess model.ProviderSession) error
	LoadSession(p model.Provider) (model.ProviderSession, error)
	DeleteSession(p model.Provider) error
}

type local struct {
	provider model.Provider
	source   CredentialSource
	vault    Vault
}

// NewTwitter returns the social-network provider adapter.
func NewTwitter(source CredentialSource, vault Vault) SDK {
	return &local{provider: model.ProviderTwitter, source: source, vault: vault}
}

// NewDigits returns the phone-number provider adapter.
func NewDigits(source CredentialSource, vault Vault) SDK {
	return &local{provider: model.ProviderDigits, source: source, vault: vault}
}

func (l *local) Provider() model.Provider { return l.provider }

func (l *local) LogIn(ctx context.Context) (model.ProviderSession, error) {
	sess, err := l.source(ctx, l.provider)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errs.ErrCanceled
	}
	if sess.Provider() != l.provider {
		return nil, fmt.Errorf("%w: got %s session from %s login", errs.ErrProviderMismatch, sess.Provider(), l.provider)
	}
	if sess.UserID() == "" || sess.Credentials().Token == "" {
		return nil, fmt.Errorf("%s login: %w: missing user id or token", l.provider.Name(), errs.ErrInvalidArgument)
	}
	if err := l.vault.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("persist %s session: %w", l.provider.Name(), err)
	}
	return sess, nil
}

func (l *local) LogOut(_ context.Context, userID string) error {
	cur, err := l.vault.LoadSession(l.provider)
	if err != nil {
		// An unreadable record is dropped as well.
		return l.vault.DeleteSession(l.provider)
	}
	if cur == nil || (userID != "" && cur.UserID() != userID) {
		return nil
	}
	return l.vault.DeleteSession(l.provider)
}

func (l *local) CurrentSession(_ context.Context) (model.ProviderSession, error) {
	return l.vault.LoadSession(l.provider)
}
