// Package profile derives the UserProfile from the active sessions. It performs
// no network I/O; the only collaborator is the local address book.
package profile

import (
	"errors"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// Built-in identity shown until a local contact supplies the real one.
const (
	DefaultName  = "Romain Huet"
	DefaultImage = "assets/romain.png"
)

// ContactLookup finds the first address-book contact with a phone number
// matching phone. It returns nil without error when nothing matches.
type ContactLookup interface {
	LookupByPhone(phone string) (*model.Contact, error)
}

// Options configure Project.
type Options struct {
	Contacts     ContactLookup // optional
	DefaultName  string
	DefaultImage string
	Log          *zap.Logger
}

// Project builds the profile for sessions and identity. It returns nil iff no
// session is active. Fields of an absent provider stay empty.
func Project(sessions model.SessionSet, identity model.FederatedIdentity, opts Options) *model.UserProfile {
	if sessions.Empty() {
		return nil
	}
	if opts.DefaultName == "" {
		opts.DefaultName = DefaultName
	}
	if opts.DefaultImage == "" {
		opts.DefaultImage = DefaultImage
	}

	p := &model.UserProfile{
		FederatedID: identity,
		FullName:    opts.DefaultName,
		ImagePath:   opts.DefaultImage,
	}
	if tw, ok := sessions.Twitter(); ok {
		p.TwitterUserID = tw.ID
		p.TwitterUserName = tw.UserName
	}
	if dg, ok := sessions.Digits(); ok {
		p.DigitsUserID = dg.ID
		p.DigitsPhoneNumber = dg.PhoneNumber
	}

	enrich(p, opts)
	return p
}

func enrich(p *model.UserProfile, opts Options) {
	if p.DigitsPhoneNumber == "" || opts.Contacts == nil {
		return
	}
	c, err := opts.Contacts.LookupByPhone(p.DigitsPhoneNumber)
	if err != nil {
		if opts.Log != nil && !errors.Is(err, errs.ErrContactsUnavailable) {
			opts.Log.Warn("contact lookup failed", zap.Error(err))
		}
		return
	}
	if c == nil {
		return
	}
	if c.FullName != "" {
		p.FullName = c.FullName
	}
	p.ImagePath = c.ImagePath
	p.PostalAddress = c.Address
}
