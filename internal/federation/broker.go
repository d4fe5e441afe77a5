// Package federation turns the active provider sessions into one federated
// identity issued by the cloud identity service.
package federation

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/and161185/furni/internal/event"
	"github.com/and161185/furni/internal/mainloop"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/session"
)

// CloudIdentity is the cloud identity service as seen by the broker.
type CloudIdentity interface {
	// Exchange trades provider logins (login key -> "token;secret") for a
	// federated identity and its bearer token.
	Exchange(ctx context.Context, logins map[string]string) (model.FederatedCredentials, error)
	// PutProperties stores key-value pairs in a dataset of the identity.
	PutProperties(ctx context.Context, creds model.FederatedCredentials, dataset string, props map[string]string) error
}

// IdentityChanged is emitted when the resolved identity value differs from the
// previous one. An empty Identity means the user is no longer federated.
type IdentityChanged struct {
	Version  uint64
	Previous model.FederatedIdentity
	Identity model.FederatedIdentity
}

// Resolved is emitted after every successful exchange for the current
// SessionSet, whether or not the identity changed.
type Resolved struct {
	Version  uint64
	Identity model.FederatedIdentity
	Changed  bool
}

// Options tune a Broker.
type Options struct {
	// Dataset receives the auxiliary provider properties.
	Dataset string
	// ExchangeTimeout bounds exchanges started by the token source.
	ExchangeTimeout time.Duration
	// ExpirySkew is subtracted from token lifetimes before caching.
	ExpirySkew time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

const (
	DefaultDataset         = "dataset"
	defaultExchangeTimeout = 30 * time.Second
	defaultExpirySkew      = 30 * time.Second
)

// Broker re-derives the federated identity on every SessionSet change.
// Fields without a lock are owned by the coordinating loop.
type Broker struct {
	cloud CloudIdentity
	loop  mainloop.Poster
	log   *zap.Logger
	opts  Options

	version     uint64
	resolvedFor uint64
	failedFor   uint64
	identity    model.FederatedIdentity
	creds       model.FederatedCredentials
	pending     map[string]string

	logins *loginsBox
	cache  *ttlcache.Cache[string, model.FederatedCredentials]

	changed  event.Feed[IdentityChanged]
	resolved event.Feed[Resolved]
}

// NewBroker builds a broker. Call Close to stop its cache janitor.
func NewBroker(cloud CloudIdentity, loop mainloop.Poster, log *zap.Logger, opts Options) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Dataset == "" {
		opts.Dataset = DefaultDataset
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = defaultExchangeTimeout
	}
	if opts.ExpirySkew <= 0 {
		opts.ExpirySkew = defaultExpirySkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, model.FederatedCredentials](),
	)
	go cache.Start()

	return &Broker{
		cloud:  cloud,
		loop:   loop,
		log:    log.Named("federation"),
		opts:   opts,
		logins: &loginsBox{},
		cache:  cache,
	}
}

// Close stops the credential cache janitor.
func (b *Broker) Close() { b.cache.Stop() }

// OnChange subscribes to identity value changes.
func (b *Broker) OnChange(fn func(IdentityChanged)) (cancel func()) {
	return b.changed.Subscribe(fn)
}

// OnResolved subscribes to successful exchanges.
func (b *Broker) OnResolved(fn func(Resolved)) (cancel func()) {
	return b.resolved.Subscribe(fn)
}

// Identity returns the last resolved identity, possibly stale.
func (b *Broker) Identity() model.FederatedIdentity { return b.identity }

// Fresh reports whether Identity was resolved for the current SessionSet.
func (b *Broker) Fresh() bool { return b.resolvedFor == b.version }

// HandleSessionsChanged reacts to a Session Store mutation.
func (b *Broker) HandleSessionsChanged(ev session.Changed) {
	b.version = ev.Version
	b.queueProperties(ev)

	logins := ev.Sessions.Logins()
	b.logins.set(logins)

	if len(logins) == 0 {
		// Cleared values go to the identity that owned them.
		b.flushProperties(b.creds)
		b.pending = nil
		b.creds = model.FederatedCredentials{}
		b.resolvedFor = ev.Version
		b.setIdentity(ev.Version, "")
		return
	}
	b.exchange(ev.Version, logins)
}

// Refresh re-issues the exchange for the current sessions. It is the manual
// retry after a failed exchange and does nothing while one is in flight or
// once the identity is fresh.
func (b *Broker) Refresh() {
	if b.Fresh() || b.failedFor != b.version {
		return
	}
	logins := b.logins.get()
	if len(logins) == 0 {
		return
	}
	b.failedFor = 0
	b.exchange(b.version, logins)
}

func (b *Broker) exchange(version uint64, logins map[string]string) {
	b.log.Debug("exchanging logins", zap.Uint64("version", version), zap.Int("providers", len(logins)))
	b.loop.Spawn(func(ctx context.Context) {
		creds, err := b.cloud.Exchange(ctx, logins)
		b.loop.Post(func() { b.complete(version, logins, creds, err) })
	})
}

func (b *Broker) complete(version uint64, logins map[string]string, creds model.FederatedCredentials, err error) {
	if version != b.version {
		b.log.Debug("discarding superseded exchange",
			zap.Uint64("version", version),
			zap.Uint64("current", b.version),
		)
		return
	}
	if err != nil {
		b.failedFor = version
		b.log.Warn("identity exchange failed", zap.Uint64("version", version), zap.Error(err))
		return
	}

	b.remember(logins, creds)
	b.creds = creds
	b.resolvedFor = version
	b.flushProperties(creds)

	changed := b.setIdentity(version, creds.IdentityID)
	b.resolved.Emit(Resolved{Version: version, Identity: creds.IdentityID, Changed: changed})
}

func (b *Broker) setIdentity(version uint64, id model.FederatedIdentity) bool {
	prev := b.identity
	if prev == id {
		return false
	}
	b.identity = id
	b.log.Info("federated identity changed",
		zap.String("identity", string(id)),
		zap.String("previous", string(prev)),
	)
	b.changed.Emit(IdentityChanged{Version: version, Previous: prev, Identity: id})
	return true
}

func (b *Broker) remember(logins map[string]string, creds model.FederatedCredentials) {
	ttl := creds.Expiry.Sub(b.opts.Now()) - b.opts.ExpirySkew
	if ttl <= 0 {
		return
	}
	b.cache.Set(fingerprint(logins), creds, ttl)
}
