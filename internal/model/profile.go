package model

import "time"

// FederatedIdentity is the identifier issued by the cloud identity service for
// the current SessionSet. The empty value means absent.
type FederatedIdentity string

// FederatedCredentials pairs a federated identity with the bearer token that
// authenticates it against the backend.
type FederatedCredentials struct {
	IdentityID FederatedIdentity
	Token      string
	Expiry     time.Time
}

// Valid reports whether the credentials carry a token that has not expired.
func (c FederatedCredentials) Valid(now time.Time) bool {
	return c.IdentityID != "" && c.Token != "" && now.Before(c.Expiry)
}

// PostalAddress is a contact's mailing address.
type PostalAddress struct {
	Street     string `yaml:"street"`
	City       string `yaml:"city"`
	State      string `yaml:"state"`
	PostalCode string `yaml:"postal_code"`
	Country    string `yaml:"country"`
}

// Contact is an entry of the local address book.
type Contact struct {
	FullName     string         `yaml:"name"`
	PhoneNumbers []string       `yaml:"phones"`
	ImagePath    string         `yaml:"image"`
	Address      *PostalAddress `yaml:"address"`
}

// Product is a catalog item as far as favorites are concerned.
type Product struct {
	ID         int64
	Collection string
	Name       string
	Price      float64
}

// UserProfile is the derived view of the signed-in user. It is rebuilt, never
// patched, whenever the sessions or the federated identity change.
type UserProfile struct {
	FederatedID FederatedIdentity

	TwitterUserID   string
	TwitterUserName string

	DigitsUserID      string
	DigitsPhoneNumber string

	FullName      string
	ImagePath     string
	PostalAddress *PostalAddress

	Favorites []Product
}

// IsFavorite reports whether the product is among the user's favorites.
func (p *UserProfile) IsFavorite(productID int64) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Favorites {
		if f.ID == productID {
			return true
		}
	}
	return false
}

// RegistrationDetails are the optional provider details sent on registration.
// Both fields are set or both are empty.
type RegistrationDetails struct {
	DigitsUserID string
	PhoneNumber  string
}

// Empty reports whether no details are attached.
func (d RegistrationDetails) Empty() bool {
	return d.DigitsUserID == "" || d.PhoneNumber == ""
}

// Friend is another user linked through uploaded contacts.
type Friend struct {
	IdentityID   FederatedIdentity
	DigitsUserID string
	PhoneNumber  string
	FullName     string
	ImagePath    string
	Favorites    []Product
}
