package model

import (
	"fmt"
	"strings"

	"github.com/and161185/furni/internal/errs"
)

// Provider identifies an external identity system. The value doubles as the
// login key sent to the cloud identity service.
type Provider string

const (
	ProviderTwitter Provider = "api.twitter.com"
	ProviderDigits  Provider = "www.digits.com"
)

// Providers lists every supported provider in a stable order.
var Providers = []Provider{ProviderTwitter, ProviderDigits}

// Name returns the human-readable provider name used in analytics.
func (p Provider) Name() string {
	switch p {
	case ProviderTwitter:
		return "Twitter"
	case ProviderDigits:
		return "Digits"
	default:
		return string(p)
	}
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderTwitter || p == ProviderDigits
}

// ParseProvider accepts a login key ("api.twitter.com") or a short name ("twitter").
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "twitter", string(ProviderTwitter):
		return ProviderTwitter, nil
	case "digits", string(ProviderDigits):
		return ProviderDigits, nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnknownProvider, s)
}

// Credentials is the token pair a provider issues on login.
type Credentials struct {
	Token  string
	Secret string
}

// LoginString renders the composite "token;secret" credential.
func (c Credentials) LoginString() string {
	return c.Token + ";" + c.Secret
}

// ProviderSession is a sealed sum type: TwitterSession or DigitsSession.
// Values are immutable; a re-authentication produces a new value.
type ProviderSession interface {
	Provider() Provider
	UserID() string
	Credentials() Credentials
	providerSession()
}

// TwitterSession is a session issued by the social-network provider.
type TwitterSession struct {
	ID       string
	UserName string
	Creds    Credentials
}

func (TwitterSession) Provider() Provider         { return ProviderTwitter }
func (s TwitterSession) UserID() string           { return s.ID }
func (s TwitterSession) Credentials() Credentials { return s.Creds }
func (TwitterSession) providerSession()           {}

// DigitsSession is a session issued by the phone-number provider.
type DigitsSession struct {
	ID          string
	PhoneNumber string
	Email       string
	Creds       Credentials
}

func (DigitsSession) Provider() Provider         { return ProviderDigits }
func (s DigitsSession) UserID() string           { return s.ID }
func (s DigitsSession) Credentials() Credentials { return s.Creds }
func (DigitsSession) providerSession()           {}

// SessionSet maps each provider to at most one active session.
type SessionSet map[Provider]ProviderSession

// Clone returns an independent copy; a nil set clones to an empty one.
func (s SessionSet) Clone() SessionSet {
	out := make(SessionSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Empty reports whether no session is active.
func (s SessionSet) Empty() bool { return len(s) == 0 }

// Logins builds the login-token map submitted to the cloud identity service.
func (s SessionSet) Logins() map[string]string {
	out := make(map[string]string, len(s))
	for p, sess := range s {
		out[string(p)] = sess.Credentials().LoginString()
	}
	return out
}

// Twitter returns the Twitter session if one is active.
func (s SessionSet) Twitter() (TwitterSession, bool) {
	v, ok := s[ProviderTwitter].(TwitterSession)
	return v, ok
}

// Digits returns the Digits session if one is active.
func (s SessionSet) Digits() (DigitsSession, bool) {
	v, ok := s[ProviderDigits].(DigitsSession)
	return v, ok
}
