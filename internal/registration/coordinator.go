// Package registration registers each federated identity with the backend once
// and then loads its favorites once.
package registration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/event"
	"github.com/and161185/furni/internal/mainloop"
	"github.com/and161185/furni/internal/model"
)

// Backend is the authenticated API of one identity.
type Backend interface {
	RegisterUser(ctx context.Context, details model.RegistrationDetails) error
	FavoriteProducts(ctx context.Context) ([]model.Product, error)
}

// Resolver returns the backend handle authenticated as identity.
type Resolver func(identity model.FederatedIdentity) Backend

// Phase is the sync progress of the current identity.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRegistering
	PhaseFetching
	PhaseSynced
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRegistering:
		return "registering"
	case PhaseFetching:
		return "fetching"
	case PhaseSynced:
		return "synced"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Synced reports the end of a sync attempt. Err is set when it failed.
type Synced struct {
	Identity  model.FederatedIdentity
	Favorites []model.Product
	Err       error
}

// Options tune a Coordinator.
type Options struct {
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 30 * time.Second

// Coordinator tracks one identity at a time. All methods run on the loop.
type Coordinator struct {
	loop    mainloop.Poster
	resolve Resolver
	log     *zap.Logger
	timeout time.Duration

	gen       uint64
	identity  model.FederatedIdentity
	details   model.RegistrationDetails
	phase     Phase
	favorites []model.Product
	lastErr   error

	synced event.Feed[Synced]
}

// New builds a coordinator.
func New(loop mainloop.Poster, resolve Resolver, log *zap.Logger, opts Options) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Coordinator{
		loop:    loop,
		resolve: resolve,
		log:     log.Named("registration"),
		timeout: opts.RequestTimeout,
	}
}

// OnSynced subscribes to sync results.
func (c *Coordinator) OnSynced(fn func(Synced)) (cancel func()) {
	return c.synced.Subscribe(fn)
}

// Trigger starts registration for identity unless it is already in progress,
// done or failed. An empty identity is ignored.
func (c *Coordinator) Trigger(identity model.FederatedIdentity, details model.RegistrationDetails) {
	if identity == "" {
		return
	}
	if identity != c.identity {
		c.switchTo(identity)
	}
	if c.phase != PhaseIdle {
		c.log.Debug("registration short-circuited",
			zap.String("identity", string(identity)),
			zap.Stringer("phase", c.phase),
		)
		return
	}
	c.details = details
	c.register()
}

// Retry re-arms a failed identity and starts over.
func (c *Coordinator) Retry() {
	if c.identity == "" || c.phase != PhaseFailed {
		return
	}
	c.phase = PhaseIdle
	c.lastErr = nil
	c.register()
}

// Reset forgets the current identity and drops in-flight results.
func (c *Coordinator) Reset() {
	c.switchTo("")
}

// Identity returns the identity being tracked.
func (c *Coordinator) Identity() model.FederatedIdentity { return c.identity }

// Phase returns the progress of the tracked identity.
func (c *Coordinator) Phase() Phase { return c.phase }

// Err returns the error of the last failed attempt.
func (c *Coordinator) Err() error { return c.lastErr }

// Favorites returns the favorites loaded for identity. ok is false when
// identity is not the tracked one.
func (c *Coordinator) Favorites(identity model.FederatedIdentity) (favorites []model.Product, ok bool) {
	if identity == "" || identity != c.identity {
		return nil, false
	}
	return append([]model.Product(nil), c.favorites...), true
}

// SetFavorites replaces the local favorites of the tracked identity.
func (c *Coordinator) SetFavorites(identity model.FederatedIdentity, favorites []model.Product) bool {
	if identity == "" || identity != c.identity {
		return false
	}
	c.favorites = append([]model.Product(nil), favorites...)
	return true
}

func (c *Coordinator) switchTo(identity model.FederatedIdentity) {
	c.gen++
	c.identity = identity
	c.details = model.RegistrationDetails{}
	c.phase = PhaseIdle
	c.favorites = nil
	c.lastErr = nil
}

func (c *Coordinator) register() {
	backend := c.resolve(c.identity)
	if backend == nil {
		return
	}
	gen, identity, details := c.gen, c.identity, c.details
	c.phase = PhaseRegistering
	c.log.Debug("registering user", zap.String("identity", string(identity)), zap.Bool("with_details", !details.Empty()))

	c.loop.Spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		err := backend.RegisterUser(ctx, details)
		c.loop.Post(func() { c.registered(gen, backend, err) })
	})
}

func (c *Coordinator) registered(gen uint64, backend Backend, err error) {
	if gen != c.gen {
		return
	}
	if err != nil {
		c.fail("register user", err)
		return
	}
	c.phase = PhaseFetching
	c.loop.Spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		products, err := backend.FavoriteProducts(ctx)
		c.loop.Post(func() { c.fetched(gen, products, err) })
	})
}

func (c *Coordinator) fetched(gen uint64, products []model.Product, err error) {
	if gen != c.gen {
		return
	}
	if err != nil {
		c.fail("fetch favorites", err)
		return
	}
	c.phase = PhaseSynced
	c.favorites = products
	c.log.Info("user synchronized",
		zap.String("identity", string(c.identity)),
		zap.Int("favorites", len(products)),
	)
	c.synced.Emit(Synced{Identity: c.identity, Favorites: append([]model.Product(nil), products...)})
}

func (c *Coordinator) fail(step string, err error) {
	c.phase = PhaseFailed
	c.lastErr = err
	c.favorites = nil
	c.log.Warn("user sync failed",
		zap.String("step", step),
		zap.String("identity", string(c.identity)),
		zap.Error(err),
	)
	c.synced.Emit(Synced{Identity: c.identity, Err: err})
}
