// Package session holds the active provider sessions of the account core.
// It is a pure state container with change notification: no network access and
// no token validation. All methods must run on the coordinating loop.
package session

import (
	"fmt"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/event"
	"github.com/and161185/furni/internal/model"
)

// Changed is emitted after every mutation that altered the SessionSet.
type Changed struct {
	// Version increases by one per emitted change.
	Version uint64
	// Sessions is a snapshot of the set after the mutation.
	Sessions model.SessionSet
	// Providers lists the providers whose entry changed.
	Providers []model.Provider
	// Previous holds the replaced or removed sessions of those providers.
	Previous model.SessionSet
}

// Store keeps at most one session per provider.
type Store struct {
	sessions model.SessionSet
	version  uint64
	changed  event.Feed[Changed]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: model.SessionSet{}}
}

// OnChange subscribes fn to change events.
func (s *Store) OnChange(fn func(Changed)) (cancel func()) {
	return s.changed.Subscribe(fn)
}

// Set replaces the session of provider p; a nil session clears it.
// It reports whether the set changed.
func (s *Store) Set(p model.Provider, sess model.ProviderSession) (bool, error) {
	if !p.Valid() {
		return false, fmt.Errorf("%w: %q", errs.ErrUnknownProvider, p)
	}
	if sess == nil {
		return s.Clear(p), nil
	}
	if sess.Provider() != p {
		return false, fmt.Errorf("%w: %s session stored as %s", errs.ErrProviderMismatch, sess.Provider(), p)
	}
	prev, ok := s.sessions[p]
	if ok && prev == sess {
		return false, nil
	}
	s.sessions[p] = sess
	previous := model.SessionSet{}
	if ok {
		previous[p] = prev
	}
	s.emit([]model.Provider{p}, previous)
	return true, nil
}

// Clear removes the session of provider p and reports whether one was removed.
func (s *Store) Clear(p model.Provider) bool {
	prev, ok := s.sessions[p]
	if !ok {
		return false
	}
	delete(s.sessions, p)
	s.emit([]model.Provider{p}, model.SessionSet{p: prev})
	return true
}

// ClearAll removes every session in a single mutation.
func (s *Store) ClearAll() bool {
	if len(s.sessions) == 0 {
		return false
	}
	previous := s.sessions
	var changed []model.Provider
	for _, p := range model.Providers {
		if _, ok := previous[p]; ok {
			changed = append(changed, p)
		}
	}
	s.sessions = model.SessionSet{}
	s.emit(changed, previous)
	return true
}

// Sessions returns a snapshot of the current set.
func (s *Store) Sessions() model.SessionSet {
	return s.sessions.Clone()
}

// Version returns the number of changes emitted so far.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) emit(providers []model.Provider, previous model.SessionSet) {
	s.version++
	s.changed.Emit(Changed{
		Version:   s.version,
		Sessions:  s.sessions.Clone(),
		Providers: providers,
		Previous:  previous,
	})
}
