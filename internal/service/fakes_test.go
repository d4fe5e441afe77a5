package service

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/limiter"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/repository"
)

type fakeIdentities struct {
	logins   map[model.Login]model.FederatedIdentity
	datasets map[string]map[string]string

	resolveErr error
	resolved   [][]model.Login
}

var _ repository.IdentityRepository = (*fakeIdentities)(nil)

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{
		logins:   map[model.Login]model.FederatedIdentity{},
		datasets: map[string]map[string]string{},
	}
}

func (f *fakeIdentities) Resolve(_ context.Context, logins []model.Login, candidate model.FederatedIdentity) (model.FederatedIdentity, bool, error) {
	if f.resolveErr != nil {
		return "", false, f.resolveErr
	}
	f.resolved = append(f.resolved, logins)
	id, created := model.FederatedIdentity(""), false
	for _, l := range logins {
		if linked, ok := f.logins[l]; ok {
			id = linked
			break
		}
	}
	if id == "" {
		id, created = candidate, true
	}
	for _, l := range logins {
		f.logins[l] = id
	}
	return id, created, nil
}

func (f *fakeIdentities) Exists(_ context.Context, id model.FederatedIdentity) (bool, error) {
	for _, v := range f.logins {
		if v == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIdentities) MergeDataset(_ context.Context, ds model.Dataset) (*model.Dataset, error) {
	key := string(ds.IdentityID) + "/" + ds.Name
	cur := f.datasets[key]
	if cur == nil {
		cur = map[string]string{}
	}
	for k, v := range ds.Values {
		if v == "" {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}
	f.datasets[key] = cur
	return &model.Dataset{IdentityID: ds.IdentityID, Name: ds.Name, Values: cur, UpdatedAt: time.Now()}, nil
}

func (f *fakeIdentities) GetDataset(_ context.Context, id model.FederatedIdentity, name string) (*model.Dataset, error) {
	cur, ok := f.datasets[string(id)+"/"+name]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &model.Dataset{IdentityID: id, Name: name, Values: cur}, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, []byte) error {
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, nil
}

type fakeUsers struct {
	byID map[model.FederatedIdentity]model.RegisteredUser
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Upsert(_ context.Context, u *model.RegisteredUser) error {
	if f.byID == nil {
		f.byID = map[model.FederatedIdentity]model.RegisteredUser{}
	}
	cur, ok := f.byID[u.IdentityID]
	if ok && u.DigitsUserID == "" {
		u.DigitsUserID, u.PhoneNumber, u.PhoneDigits = cur.DigitsUserID, cur.PhoneNumber, cur.PhoneDigits
	}
	f.byID[u.IdentityID] = *u
	return nil
}

func (f *fakeUsers) Get(_ context.Context, id model.FederatedIdentity) (*model.RegisteredUser, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) ByDigitsIDs(_ context.Context, ids []string) ([]model.RegisteredUser, error) {
	var out []model.RegisteredUser
	for _, u := range f.byID {
		for _, d := range ids {
			if u.DigitsUserID == d {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityID < out[j].IdentityID })
	return out, nil
}

type fakeFavorites struct {
	rows    []model.Favorite
	removed []int64
}

func (f *fakeFavorites) List(_ context.Context, ids []model.FederatedIdentity) ([]model.Favorite, error) {
	var out []model.Favorite
	for _, r := range f.rows {
		for _, id := range ids {
			if r.IdentityID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakeFavorites) Add(_ context.Context, fav model.Favorite) error {
	f.rows = append(f.rows, fav)
	return nil
}

func (f *fakeFavorites) Remove(_ context.Context, _ model.FederatedIdentity, productID int64) error {
	f.removed = append(f.removed, productID)
	return nil
}

type fakeFriendships struct {
	links map[model.FederatedIdentity][]model.FederatedIdentity
	users *fakeUsers
}

func (f *fakeFriendships) Link(_ context.Context, from model.FederatedIdentity, to []model.FederatedIdentity) (int, error) {
	if f.links == nil {
		f.links = map[model.FederatedIdentity][]model.FederatedIdentity{}
	}
	f.links[from] = append(f.links[from], to...)
	return len(to), nil
}

func (f *fakeFriendships) Friends(_ context.Context, id model.FederatedIdentity) ([]model.RegisteredUser, error) {
	var out []model.RegisteredUser
	for _, fid := range f.links[id] {
		out = append(out, f.users.byID[fid])
	}
	return out, nil
}

type fakeContacts struct {
	stored  []string
	matches []model.RegisteredUser
	afters  []model.FederatedIdentity
}

func (f *fakeContacts) Store(_ context.Context, _ model.FederatedIdentity, phones []string) (int, error) {
	f.stored = append(f.stored, phones...)
	return len(phones), nil
}

func (f *fakeContacts) Matches(_ context.Context, _ model.FederatedIdentity, after model.FederatedIdentity, limit int) ([]model.RegisteredUser, error) {
	f.afters = append(f.afters, after)
	var out []model.RegisteredUser
	for _, u := range f.matches {
		if u.IdentityID > after && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}
