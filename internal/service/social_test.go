package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

type socialFixture struct {
	svc      *SocialServiceImpl
	users    *fakeUsers
	favs     *fakeFavorites
	friends  *fakeFriendships
	contacts *fakeContacts
}

func newSocial(pageSize int) socialFixture {
	users := &fakeUsers{}
	f := socialFixture{
		users:    users,
		favs:     &fakeFavorites{},
		friends:  &fakeFriendships{users: users},
		contacts: &fakeContacts{},
	}
	f.svc = NewSocialService(Repos{
		Users:       f.users,
		Favorites:   f.favs,
		Friendships: f.friends,
		Contacts:    f.contacts,
	}, pageSize, nil)
	return f
}

func TestRegisterUser(t *testing.T) {
	t.Parallel()
	f := newSocial(10)
	ctx := context.Background()

	u, err := f.svc.RegisterUser(ctx, "id1", model.RegisteredUser{IdentityID: "id1", DigitsUserID: "77", PhoneNumber: "+1 (415) 555-0100"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.PhoneDigits != "14155550100" {
		t.Fatalf("phone digits %q", u.PhoneDigits)
	}

	// Re-registering without details keeps the stored ones.
	u, err = f.svc.RegisterUser(ctx, "id1", model.RegisteredUser{IdentityID: "id1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.DigitsUserID != "77" {
		t.Fatalf("digits id lost: %+v", u)
	}

	if _, err := f.svc.RegisterUser(ctx, "id1", model.RegisteredUser{IdentityID: "id2"}); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized for another identity, got %v", err)
	}
	if _, err := f.svc.RegisterUser(ctx, "id1", model.RegisteredUser{IdentityID: "id1", DigitsUserID: "77"}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument for partial details, got %v", err)
	}
	if _, err := f.svc.RegisterUser(ctx, "", model.RegisteredUser{}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument for empty identity, got %v", err)
	}
}

func TestFavorites(t *testing.T) {
	t.Parallel()
	f := newSocial(10)
	ctx := context.Background()
	chair := model.Product{ID: 7, Collection: "living", Name: "Lounge Chair", Price: 499}

	if err := f.svc.SetFavorite(ctx, "id1", model.Favorite{IdentityID: "id1", Product: chair}, true); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.svc.SetFavorite(ctx, "id1", model.Favorite{IdentityID: "id2", Product: chair}, true); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if err := f.svc.SetFavorite(ctx, "id1", model.Favorite{IdentityID: "id1", Product: model.Product{ID: 8}}, true); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument without collection, got %v", err)
	}
	if err := f.svc.SetFavorite(ctx, "id1", model.Favorite{IdentityID: "id1", Product: model.Product{ID: 8}}, false); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(f.favs.removed) != 1 || f.favs.removed[0] != 8 {
		t.Fatalf("remove not forwarded: %v", f.favs.removed)
	}

	favs, err := f.svc.Favorites(ctx, []model.FederatedIdentity{"id1"})
	if err != nil || len(favs) != 1 {
		t.Fatalf("list: %v %v", favs, err)
	}
	if _, err := f.svc.Favorites(ctx, nil); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument for no ids, got %v", err)
	}
	many := make([]model.FederatedIdentity, MaxFavoriteIDs+1)
	if _, err := f.svc.Favorites(ctx, many); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument for too many ids, got %v", err)
	}
}

func TestLinkFriends(t *testing.T) {
	t.Parallel()
	f := newSocial(10)
	ctx := context.Background()
	f.users.byID = map[model.FederatedIdentity]model.RegisteredUser{
		"id1": {IdentityID: "id1", DigitsUserID: "77"},
		"id2": {IdentityID: "id2", DigitsUserID: "88"},
	}

	created, err := f.svc.LinkFriends(ctx, "id1", []string{"77", "88", "99"})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if created != 1 {
		t.Fatalf("want 1 link (self and unknown skipped), got %d", created)
	}

	friends, err := f.svc.Friends(ctx, "id1", "id1")
	if err != nil || len(friends) != 1 || friends[0].IdentityID != "id2" {
		t.Fatalf("friends: %v %v", friends, err)
	}
	if _, err := f.svc.Friends(ctx, "id1", "id2"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized listing another identity, got %v", err)
	}
}

func TestContactMatchesPaging(t *testing.T) {
	t.Parallel()
	f := newSocial(2)
	ctx := context.Background()
	f.contacts.matches = []model.RegisteredUser{
		{IdentityID: "a", DigitsUserID: "1"},
		{IdentityID: "b", DigitsUserID: "2"},
		{IdentityID: "c", DigitsUserID: "3"},
	}

	n, err := f.svc.UploadContacts(ctx, "id1", []string{"+1 415 555 0100"})
	if err != nil || n != 1 {
		t.Fatalf("upload: %d %v", n, err)
	}

	page, next, err := f.svc.ContactMatches(ctx, "id1", "")
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(page) != 2 || next == "" {
		t.Fatalf("first page: %v next=%q", page, next)
	}
	page, next, err = f.svc.ContactMatches(ctx, "id1", next)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(page) != 1 || page[0].IdentityID != "c" || next != "" {
		t.Fatalf("last page: %v next=%q", page, next)
	}
	if got := f.contacts.afters; len(got) != 2 || got[1] != "b" {
		t.Fatalf("cursor not decoded: %v", got)
	}

	if _, _, err := f.svc.ContactMatches(ctx, "id1", "%%%"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument for a bad cursor, got %v", err)
	}
	if _, err := f.svc.UploadContacts(ctx, "id1", make([]string, MaxContactsSent+1)); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument for too many contacts, got %v", err)
	}
}
