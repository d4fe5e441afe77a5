package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/repository"
)

// SocialService is the authenticated backend: users, favorites, friendships
// and contact matching. caller is always the identity of the bearer token.
type SocialService interface {
	RegisterUser(ctx context.Context, caller model.FederatedIdentity, u model.RegisteredUser) (*model.RegisteredUser, error)
	Favorites(ctx context.Context, ids []model.FederatedIdentity) ([]model.Favorite, error)
	SetFavorite(ctx context.Context, caller model.FederatedIdentity, f model.Favorite, favorite bool) error
	LinkFriends(ctx context.Context, caller model.FederatedIdentity, digitsIDs []string) (int, error)
	Friends(ctx context.Context, caller, id model.FederatedIdentity) ([]model.RegisteredUser, error)
	UploadContacts(ctx context.Context, caller model.FederatedIdentity, phones []string) (int, error)
	ContactMatches(ctx context.Context, caller model.FederatedIdentity, cursor string) ([]model.RegisteredUser, string, error)
}

// Repos groups the repositories of the social backend.
type Repos struct {
	Users       repository.UserRepository
	Favorites   repository.FavoriteRepository
	Friendships repository.FriendshipRepository
	Contacts    repository.ContactRepository
}

// Request size limits.
const (
	MaxFavoriteIDs  = 100
	MaxFriendIDs    = 1000
	MaxContactsSent = 5000
)

type SocialServiceImpl struct {
	repos    Repos
	pageSize int
	log      *zap.Logger
}

// NewSocialService constructs the social backend with a match page size.
func NewSocialService(repos Repos, pageSize int, log *zap.Logger) *SocialServiceImpl {
	if pageSize <= 0 {
		pageSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SocialServiceImpl{repos: repos, pageSize: pageSize, log: log.Named("social")}
}

// RegisterUser upserts the caller. Digits details are both set or both empty.
func (s *SocialServiceImpl) RegisterUser(
	ctx context.Context, caller model.FederatedIdentity, u model.RegisteredUser,
) (*model.RegisteredUser, error) {
	if u.IdentityID == "" {
		return nil, fmt.Errorf("%w: empty cognitoId", errs.ErrInvalidArgument)
	}
	if u.IdentityID != caller {
		return nil, errs.ErrUnauthorized
	}
	if (u.DigitsUserID == "") != (u.PhoneNumber == "") {
		return nil, fmt.Errorf("%w: digitsId and phoneNumber go together", errs.ErrInvalidArgument)
	}
	u.PhoneDigits = model.PhoneDigits(u.PhoneNumber)
	if err := s.repos.Users.Upsert(ctx, &u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("identity", string(u.IdentityID)), zap.Bool("digits", u.DigitsUserID != ""))
	return &u, nil
}

// Favorites lists the favorites of ids. Favorites are public within the app.
func (s *SocialServiceImpl) Favorites(ctx context.Context, ids []model.FederatedIdentity) ([]model.Favorite, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no identities", errs.ErrInvalidArgument)
	}
	if len(ids) > MaxFavoriteIDs {
		return nil, fmt.Errorf("%w: too many identities (%d > %d)", errs.ErrInvalidArgument, len(ids), MaxFavoriteIDs)
	}
	return s.repos.Favorites.List(ctx, ids)
}

// SetFavorite adds or removes a favorite of the caller.
func (s *SocialServiceImpl) SetFavorite(ctx context.Context, caller model.FederatedIdentity, f model.Favorite, favorite bool) error {
	if f.IdentityID != caller {
		return errs.ErrUnauthorized
	}
	if f.Product.ID <= 0 {
		return fmt.Errorf("%w: bad product id", errs.ErrInvalidArgument)
	}
	if !favorite {
		return s.repos.Favorites.Remove(ctx, caller, f.Product.ID)
	}
	if f.Product.Collection == "" {
		return fmt.Errorf("%w: empty collection", errs.ErrInvalidArgument)
	}
	return s.repos.Favorites.Add(ctx, f)
}

// LinkFriends resolves Digits user ids to registered identities and links
// them with the caller. Unknown ids are skipped.
func (s *SocialServiceImpl) LinkFriends(ctx context.Context, caller model.FederatedIdentity, digitsIDs []string) (int, error) {
	if len(digitsIDs) > MaxFriendIDs {
		return 0, fmt.Errorf("%w: too many friends (%d > %d)", errs.ErrInvalidArgument, len(digitsIDs), MaxFriendIDs)
	}
	users, err := s.repos.Users.ByDigitsIDs(ctx, digitsIDs)
	if err != nil {
		return 0, err
	}
	to := make([]model.FederatedIdentity, 0, len(users))
	for _, u := range users {
		if u.IdentityID != caller {
			to = append(to, u.IdentityID)
		}
	}
	created, err := s.repos.Friendships.Link(ctx, caller, to)
	if err != nil {
		return 0, err
	}
	s.log.Info("friends linked",
		zap.String("identity", string(caller)),
		zap.Int("requested", len(digitsIDs)),
		zap.Int("created", created),
	)
	return created, nil
}

// Friends lists the friends of id; only the caller may list its own.
func (s *SocialServiceImpl) Friends(ctx context.Context, caller, id model.FederatedIdentity) ([]model.RegisteredUser, error) {
	if id != caller {
		return nil, errs.ErrUnauthorized
	}
	return s.repos.Friendships.Friends(ctx, id)
}

// UploadContacts stores the caller's address-book numbers.
func (s *SocialServiceImpl) UploadContacts(ctx context.Context, caller model.FederatedIdentity, phones []string) (int, error) {
	if len(phones) > MaxContactsSent {
		return 0, fmt.Errorf("%w: too many contacts (%d > %d)", errs.ErrInvalidArgument, len(phones), MaxContactsSent)
	}
	return s.repos.Contacts.Store(ctx, caller, phones)
}

// ContactMatches returns one page of registered users among the caller's
// contacts and the cursor of the next page, empty on the last one.
func (s *SocialServiceImpl) ContactMatches(
	ctx context.Context, caller model.FederatedIdentity, cursor string,
) ([]model.RegisteredUser, string, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	users, err := s.repos.Contacts.Matches(ctx, caller, after, s.pageSize+1)
	if err != nil {
		return nil, "", err
	}
	if len(users) <= s.pageSize {
		return users, "", nil
	}
	users = users[:s.pageSize]
	return users, encodeCursor(users[len(users)-1].IdentityID), nil
}

func encodeCursor(id model.FederatedIdentity) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func decodeCursor(cursor string) (model.FederatedIdentity, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("%w: bad cursor", errs.ErrInvalidArgument)
	}
	return model.FederatedIdentity(b), nil
}
