// Package account is the Session Manager: the facade that wires the session
// store, the credential broker, the user projection and the registration
// coordinator on one coordinating loop.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/and161185/furni/internal/analytics"
	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/event"
	"github.com/and161185/furni/internal/federation"
	"github.com/and161185/furni/internal/mainloop"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/profile"
	"github.com/and161185/furni/internal/provider"
	"github.com/and161185/furni/internal/registration"
	"github.com/and161185/furni/internal/session"
)

// API is the authenticated backend handle of one identity.
type API interface {
	registration.Backend
	provider.ContactsBackend
	Identity() model.FederatedIdentity
	SetFavorite(ctx context.Context, p model.Product, favorite bool) error
	UploadFriends(ctx context.Context, digitsIDs []string) (int, error)
	Friends(ctx context.Context) ([]model.Friend, error)
	FavoritesOf(ctx context.Context, ids []model.FederatedIdentity) (map[model.FederatedIdentity][]model.Product, error)
}

// APIFactory builds the handle of identity, authenticated through ts.
type APIFactory func(identity model.FederatedIdentity, ts oauth2.TokenSource) API

// AddressBook is the local contacts store.
type AddressBook interface {
	profile.ContactLookup
	provider.PhoneBook
}

// Flags persists local boolean flags.
type Flags interface {
	SetFlag(name string, v bool) error
	Flag(name string) (bool, error)
}

// Deps are the collaborators of a Manager. Loop, Cloud and NewAPI are required.
type Deps struct {
	Loop      *mainloop.Loop
	Twitter   provider.SDK
	Digits    provider.SDK
	Cloud     federation.CloudIdentity
	NewAPI    APIFactory
	Contacts  AddressBook
	Flags     Flags
	Analytics analytics.Sink
	Log       *zap.Logger

	Dataset        string
	RequestTimeout time.Duration
	DefaultName    string
	DefaultImage   string
}

// Reason tells why a ProfileEvent was emitted.
type Reason string

const (
	ReasonSessions  Reason = "sessions"
	ReasonIdentity  Reason = "identity"
	ReasonFavorites Reason = "favorites"
)

// ProfileEvent carries a snapshot of the rebuilt profile; nil means signed out.
type ProfileEvent struct {
	Reason  Reason
	Profile *model.UserProfile
}

// Manager is safe for concurrent use. Its state lives on the loop.
type Manager struct {
	loop      *mainloop.Loop
	sdks      map[model.Provider]provider.SDK
	newAPI    APIFactory
	contacts  AddressBook
	flags     Flags
	analytics analytics.Sink
	log       *zap.Logger
	timeout   time.Duration
	projOpts  profile.Options

	store    *session.Store
	broker   *federation.Broker
	coord    *registration.Coordinator
	uploader *provider.ContactsUploader

	// owned by the loop
	profile          *model.UserProfile
	api              API
	uploadedContacts bool

	profiles event.Feed[ProfileEvent]
}

// New wires a Manager. Call Restore to load persisted sessions.
func New(d Deps) (*Manager, error) {
	if d.Loop == nil || d.Cloud == nil || d.NewAPI == nil {
		return nil, errors.New("account: Loop, Cloud and NewAPI are required")
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Analytics == nil {
		d.Analytics = analytics.Nop{}
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	log := d.Log.Named("account")

	m := &Manager{
		loop:      d.Loop,
		sdks:      map[model.Provider]provider.SDK{},
		newAPI:    d.NewAPI,
		contacts:  d.Contacts,
		flags:     d.Flags,
		analytics: d.Analytics,
		log:       log,
		timeout:   d.RequestTimeout,
		store:     session.NewStore(),
	}
	for _, sdk := range []provider.SDK{d.Twitter, d.Digits} {
		if sdk != nil {
			m.sdks[sdk.Provider()] = sdk
		}
	}
	m.projOpts = profile.Options{
		DefaultName:  d.DefaultName,
		DefaultImage: d.DefaultImage,
		Log:          log,
	}
	if d.Contacts != nil {
		m.projOpts.Contacts = d.Contacts
		m.uploader = provider.NewContactsUploader(d.Contacts, d.Log)
	}

	m.broker = federation.NewBroker(d.Cloud, d.Loop, d.Log, federation.Options{
		Dataset:         d.Dataset,
		ExchangeTimeout: d.RequestTimeout,
	})
	m.coord = registration.New(d.Loop, m.backendFor, d.Log, registration.Options{RequestTimeout: d.RequestTimeout})

	// Subscription order is the causal order of one mutation.
	m.store.OnChange(m.broker.HandleSessionsChanged)
	m.store.OnChange(m.onSessionsChanged)
	m.broker.OnChange(m.onIdentityChanged)
	m.broker.OnResolved(m.onResolved)
	m.coord.OnSynced(m.onSynced)

	return m, nil
}

// Close stops background caches. The loop belongs to the caller.
func (m *Manager) Close() { m.broker.Close() }

// Subscribe registers fn for profile snapshots. fn runs on the loop, so it
// must not call back into the Manager synchronously: every method waits for
// the loop and would block forever. Read the event's Profile, or hand off to
// another goroutine.
func (m *Manager) Subscribe(fn func(ProfileEvent)) (cancel func()) {
	return m.profiles.Subscribe(fn)
}

// WaitIdle blocks until every cascade started so far has settled.
func (m *Manager) WaitIdle(ctx context.Context) error { return m.loop.Idle(ctx) }

// Restore loads the persisted provider sessions and flags, as at app start.
func (m *Manager) Restore(ctx context.Context) error {
	var restored []model.ProviderSession
	var errList []error
	for _, p := range model.Providers {
		sdk, ok := m.sdks[p]
		if !ok {
			continue
		}
		sess, err := sdk.CurrentSession(ctx)
		if err != nil {
			m.log.Warn("session restore failed", zap.String("provider", string(p)), zap.Error(err))
			errList = append(errList, fmt.Errorf("restore %s: %w", p.Name(), err))
			continue
		}
		if sess != nil {
			restored = append(restored, sess)
		}
	}

	uploaded := false
	if m.flags != nil {
		v, err := m.flags.Flag(flagContactsUploaded)
		if err != nil {
			errList = append(errList, err)
		}
		uploaded = v
	}

	err := m.loop.Do(ctx, func() {
		m.uploadedContacts = uploaded
		for _, s := range restored {
			if _, err := m.store.Set(s.Provider(), s); err != nil {
				errList = append(errList, err)
			}
		}
	})
	if err != nil {
		return err
	}
	return errors.Join(errList...)
}

// Authenticate runs the provider login. A nil error means the session is now
// active and the federation cascade has started.
func (m *Manager) Authenticate(ctx context.Context, p model.Provider) error {
	sdk, ok := m.sdks[p]
	if !ok {
		return fmt.Errorf("%w: %q", errs.ErrUnknownProvider, p)
	}
	sess, err := sdk.LogIn(ctx)
	if err != nil {
		m.analytics.LogLogin(p.Name(), false, map[string]string{"Error": err.Error()})
		m.log.Info("login failed", zap.String("provider", string(p)), zap.Error(err))
		return err
	}

	m.analytics.SetUserIdentifier(sess.UserID())
	if tw, ok := sess.(model.TwitterSession); ok {
		m.analytics.SetUserName(tw.UserName)
	}
	m.analytics.LogLogin(p.Name(), true, map[string]string{"User ID": sess.UserID()})

	var setErr error
	if err := m.loop.Do(ctx, func() { _, setErr = m.store.Set(p, sess) }); err != nil {
		return err
	}
	if setErr != nil {
		return setErr
	}
	m.log.Info("logged in", zap.String("provider", string(p)), zap.String("user_id", sess.UserID()))
	return nil
}

// SignOut logs out of every active provider and clears all derived state.
// With nothing signed in it returns nil without side effects.
func (m *Manager) SignOut(ctx context.Context) error {
	var active model.SessionSet
	if err := m.loop.Do(ctx, func() { active = m.store.Sessions() }); err != nil {
		return err
	}
	if active.Empty() {
		return nil
	}

	var errList []error
	for _, p := range model.Providers {
		sess, ok := active[p]
		if !ok {
			continue
		}
		if sdk, ok := m.sdks[p]; ok {
			if err := sdk.LogOut(ctx, sess.UserID()); err != nil {
				m.log.Warn("provider logout failed", zap.String("provider", string(p)), zap.Error(err))
				errList = append(errList, fmt.Errorf("log out of %s: %w", p.Name(), err))
			}
		}
	}

	// Local state is cleared even when a provider logout failed.
	err := m.loop.Do(context.WithoutCancel(ctx), func() {
		m.store.ClearAll()
		m.coord.Reset()
		m.api = nil
		m.setProfile(nil, ReasonSessions)
	})
	if err != nil {
		return err
	}
	m.log.Info("signed out")
	return errors.Join(errList...)
}

// IsLoggedIn reports whether at least one provider session is active.
func (m *Manager) IsLoggedIn() bool {
	var v bool
	if err := m.loop.Do(context.Background(), func() { v = !m.store.Sessions().Empty() }); err != nil {
		return false
	}
	return v
}

// Identity returns the last resolved identity and whether it matches the
// current sessions.
func (m *Manager) Identity() (id model.FederatedIdentity, fresh bool) {
	_ = m.loop.Do(context.Background(), func() {
		id, fresh = m.broker.Identity(), m.broker.Fresh()
	})
	return id, fresh
}

// Sessions returns a snapshot of the active sessions.
func (m *Manager) Sessions() model.SessionSet {
	var s model.SessionSet
	_ = m.loop.Do(context.Background(), func() { s = m.store.Sessions() })
	return s
}

// Profile returns a snapshot of the current profile, nil when signed out.
func (m *Manager) Profile() *model.UserProfile {
	var p *model.UserProfile
	_ = m.loop.Do(context.Background(), func() { p = cloneProfile(m.profile) })
	return p
}

// HasUploadedContacts reports the persistent "contacts uploaded" flag.
func (m *Manager) HasUploadedContacts() bool {
	var v bool
	_ = m.loop.Do(context.Background(), func() { v = m.uploadedContacts })
	return v
}

// RefreshProfile is the explicit retry: it re-runs a failed identity exchange,
// or a failed registration of the current identity, and rebuilds the profile.
// An exchange still in flight is left alone.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	return m.loop.Do(ctx, func() {
		if m.store.Sessions().Empty() {
			return
		}
		if !m.broker.Fresh() {
			m.broker.Refresh()
			return
		}
		m.coord.Retry()
		m.rebuildProfile(ReasonSessions)
	})
}
