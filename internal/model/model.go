// Package model defines domain entities shared by the account core, the REST
// clients, the services and the repositories.
package model

import (
	"strings"
	"time"
)

// Login is a verified provider login: a provider-scoped subject.
type Login struct {
	Provider Provider
	Subject  string // stable provider-scoped user key
}

// Identity is a federated identity row in the identity pool.
type Identity struct {
	ID        FederatedIdentity
	CreatedAt time.Time
}

// Dataset is a key-value record synchronized per identity.
type Dataset struct {
	IdentityID FederatedIdentity
	Name       string
	Values     map[string]string
	UpdatedAt  time.Time
}

// RegisteredUser is a backend user keyed by federated identity.
type RegisteredUser struct {
	IdentityID   FederatedIdentity
	DigitsUserID string // empty when unknown
	PhoneNumber  string // as sent by the client
	PhoneDigits  string // normalized, used for contact matching
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Favorite is a product favorited by an identity.
type Favorite struct {
	IdentityID FederatedIdentity
	Product    Product
	CreatedAt  time.Time
}

// PhoneDigits normalizes a phone number to its digits, the key used to match
// uploaded contacts against registered users.
func PhoneDigits(phone string) string {
	b := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			b = append(b, c)
		}
	}
	return string(b)
}

// PhoneMatches reports whether an address-book number designates the phone
// number of a session. Formatting characters are stripped from the contact
// number, which must then appear verbatim inside the session number.
func PhoneMatches(contactPhone, sessionPhone string) bool {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ')', '(', '-', '\u00a0':
			return -1
		}
		return r
	}, contactPhone)
	if cleaned == "" {
		return false
	}
	return strings.Contains(sessionPhone, cleaned)
}
