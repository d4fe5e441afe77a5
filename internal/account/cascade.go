package account

import (
	"github.com/and161185/furni/internal/federation"
	"github.com/and161185/furni/internal/keychain"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/profile"
	"github.com/and161185/furni/internal/registration"
	"github.com/and161185/furni/internal/session"
)

const flagContactsUploaded = keychain.FlagContactsUploaded

// The handlers below run on the loop.

func (m *Manager) onSessionsChanged(session.Changed) {
	m.rebuildProfile(ReasonSessions)
}

func (m *Manager) onIdentityChanged(ev federation.IdentityChanged) {
	if ev.Identity == "" {
		m.api = nil
		m.coord.Reset()
	} else {
		m.api = m.newAPI(ev.Identity, m.broker.TokenSource())
	}
	m.rebuildProfile(ReasonIdentity)
}

func (m *Manager) onResolved(ev federation.Resolved) {
	if ev.Identity == "" || m.profile == nil {
		return
	}
	m.coord.Trigger(ev.Identity, m.registrationDetails())
}

func (m *Manager) onSynced(ev registration.Synced) {
	if ev.Err != nil || m.profile == nil || m.profile.FederatedID != ev.Identity {
		return
	}
	m.profile.Favorites = ev.Favorites
	m.emitProfile(ReasonFavorites)
}

func (m *Manager) backendFor(id model.FederatedIdentity) registration.Backend {
	if m.api == nil || m.api.Identity() != id {
		return nil
	}
	return m.api
}

func (m *Manager) registrationDetails() model.RegistrationDetails {
	dg, ok := m.store.Sessions().Digits()
	if !ok {
		return model.RegistrationDetails{}
	}
	return model.RegistrationDetails{DigitsUserID: dg.ID, PhoneNumber: dg.PhoneNumber}
}

// rebuildProfile projects the profile from scratch and merges the favorites
// the coordinator holds for the identity.
func (m *Manager) rebuildProfile(reason Reason) {
	p := profile.Project(m.store.Sessions(), m.broker.Identity(), m.projOpts)
	if p != nil {
		if favs, ok := m.coord.Favorites(p.FederatedID); ok {
			p.Favorites = favs
		}
	}
	m.setProfile(p, reason)
}

func (m *Manager) setProfile(p *model.UserProfile, reason Reason) {
	if p == nil && m.profile == nil {
		return
	}
	m.profile = p
	m.emitProfile(reason)
}

func (m *Manager) emitProfile(reason Reason) {
	m.profiles.Emit(ProfileEvent{Reason: reason, Profile: cloneProfile(m.profile)})
}

func cloneProfile(p *model.UserProfile) *model.UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Favorites = append([]model.Product(nil), p.Favorites...)
	if p.PostalAddress != nil {
		addr := *p.PostalAddress
		c.PostalAddress = &addr
	}
	return &c
}
