// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/furni/internal/model"
)

// IdentityRepository is the identity pool: identities, their linked logins and
// their datasets.
type IdentityRepository interface {
	// Resolve returns the identity linked to any of logins, linking the
	// remaining logins to it. Without a linked identity, candidate is created.
	// Several linked identities are merged into the oldest.
	Resolve(ctx context.Context, logins []model.Login, candidate model.FederatedIdentity) (id model.FederatedIdentity, created bool, err error)
	// Exists reports whether the identity is in the pool.
	Exists(ctx context.Context, id model.FederatedIdentity) (bool, error)
	// MergeDataset merges values into a dataset; an empty value deletes the key.
	MergeDataset(ctx context.Context, ds model.Dataset) (*model.Dataset, error)
	// GetDataset loads a dataset.
	GetDataset(ctx context.Context, id model.FederatedIdentity, name string) (*model.Dataset, error)
}

// UserRepository stores registered users.
type UserRepository interface {
	// Upsert registers a user. Empty Digits details never erase stored ones.
	Upsert(ctx context.Context, u *model.RegisteredUser) error
	// Get loads one user.
	Get(ctx context.Context, id model.FederatedIdentity) (*model.RegisteredUser, error)
	// ByDigitsIDs loads the users registered with the given Digits ids.
	ByDigitsIDs(ctx context.Context, digitsIDs []string) ([]model.RegisteredUser, error)
}

// FavoriteRepository stores favorites per identity.
type FavoriteRepository interface {
	// List returns the favorites of ids, newest product id first.
	List(ctx context.Context, ids []model.FederatedIdentity) ([]model.Favorite, error)
	// Add stores a favorite; adding twice is not an error.
	Add(ctx context.Context, f model.Favorite) error
	// Remove deletes a favorite; removing an absent one is not an error.
	Remove(ctx context.Context, id model.FederatedIdentity, productID int64) error
}

// FriendshipRepository stores the symmetric friend links.
type FriendshipRepository interface {
	// Link connects from with every identity in to and returns the number of
	// new links.
	Link(ctx context.Context, from model.FederatedIdentity, to []model.FederatedIdentity) (int, error)
	// Friends returns the registered users linked with id.
	Friends(ctx context.Context, id model.FederatedIdentity) ([]model.RegisteredUser, error)
}

// ContactRepository stores uploaded address-book numbers.
type ContactRepository interface {
	// Store adds phone numbers to the identity's uploaded contacts and
	// returns how many were new.
	Store(ctx context.Context, id model.FederatedIdentity, phones []string) (int, error)
	// Matches pages through registered users whose phone number is among the
	// identity's contacts, ordered by identity id, strictly after cursor.
	Matches(ctx context.Context, id model.FederatedIdentity, after model.FederatedIdentity, limit int) ([]model.RegisteredUser, error)
}
