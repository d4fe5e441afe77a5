package account

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/profile"
)

// currentAPI returns the handle of the resolved identity for the current
// sessions.
func (m *Manager) currentAPI(ctx context.Context) (API, error) {
	var api API
	var err error
	doErr := m.loop.Do(ctx, func() {
		switch {
		case m.store.Sessions().Empty():
			err = errs.ErrNotLoggedIn
		case m.api == nil || !m.broker.Fresh():
			err = errs.ErrNotFederated
		default:
			api = m.api
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return api, err
}

// UploadContacts uploads the address book, sets the persistent flag, and links
// the matched users as friends. It needs a Digits session and a resolved
// identity. Nothing is retried.
func (m *Manager) UploadContacts(ctx context.Context) error {
	var hasDigits bool
	if err := m.loop.Do(ctx, func() { _, hasDigits = m.store.Sessions().Digits() }); err != nil {
		return err
	}
	if !hasDigits {
		return errs.ErrDigitsSessionRequired
	}
	if m.uploader == nil {
		return errs.ErrContactsUnavailable
	}
	api, err := m.currentAPI(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := m.uploader.Upload(ctx, api)
	if err != nil {
		m.log.Warn("contacts upload failed", zap.Error(err))
		return err
	}
	if m.flags != nil {
		if err := m.flags.SetFlag(flagContactsUploaded, true); err != nil {
			m.log.Warn("persisting contacts flag failed", zap.Error(err))
		}
	}
	if err := m.loop.Do(ctx, func() { m.uploadedContacts = true }); err != nil {
		return err
	}

	if len(res.DigitsUserIDs) == 0 {
		return nil
	}
	created, err := api.UploadFriends(ctx, res.DigitsUserIDs)
	if err != nil {
		m.log.Warn("friend upload failed", zap.Int("matches", len(res.DigitsUserIDs)), zap.Error(err))
		return fmt.Errorf("upload friends: %w", err)
	}
	m.log.Info("friends linked", zap.Int("matches", len(res.DigitsUserIDs)), zap.Int("created", created))
	return nil
}

// SetFavorite toggles a favorite. The profile changes immediately and is
// rolled back when the backend rejects the change.
func (m *Manager) SetFavorite(ctx context.Context, p model.Product, favorite bool) error {
	api, err := m.currentAPI(ctx)
	if err != nil {
		return err
	}
	id := api.Identity()

	var before, after []model.Product
	var changed bool
	if err := m.loop.Do(ctx, func() {
		if m.profile == nil || m.profile.FederatedID != id {
			return
		}
		before = m.profile.Favorites
		after = toggle(before, p, favorite)
		changed = len(after) != len(before)
		if !changed {
			return
		}
		m.profile.Favorites = after
		m.coord.SetFavorites(id, after)
		m.emitProfile(ReasonFavorites)
	}); err != nil {
		return err
	}
	if !changed {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := api.SetFavorite(ctx, p, favorite); err != nil {
		m.log.Warn("favorite update failed", zap.Int64("product", p.ID), zap.Bool("favorite", favorite), zap.Error(err))
		_ = m.loop.Do(context.WithoutCancel(ctx), func() {
			// A newer toggle or sync wins over the rollback.
			if m.profile == nil || m.profile.FederatedID != id || !slices.Equal(m.profile.Favorites, after) {
				return
			}
			m.profile.Favorites = before
			m.coord.SetFavorites(id, before)
			m.emitProfile(ReasonFavorites)
		})
		return err
	}
	return nil
}

func toggle(list []model.Product, p model.Product, favorite bool) []model.Product {
	out := make([]model.Product, 0, len(list)+1)
	found := false
	for _, q := range list {
		if q.ID == p.ID {
			found = true
			if !favorite {
				continue
			}
		}
		out = append(out, q)
	}
	if favorite && !found {
		out = append([]model.Product{p}, out...)
	}
	return out
}

// Friends lists the users linked through uploaded contacts, enriched with the
// local contact card and their favorites.
func (m *Manager) Friends(ctx context.Context) ([]model.Friend, error) {
	api, err := m.currentAPI(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	friends, err := api.Friends(ctx)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	if len(friends) == 0 {
		return friends, nil
	}
	ids := make([]model.FederatedIdentity, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.IdentityID)
	}
	favs, err := api.FavoritesOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("friends favorites: %w", err)
	}

	for i := range friends {
		f := &friends[i]
		f.Favorites = favs[f.IdentityID]
		f.FullName = m.projOpts.DefaultName
		f.ImagePath = m.projOpts.DefaultImage
		if f.FullName == "" {
			f.FullName = profile.DefaultName
		}
		if f.ImagePath == "" {
			f.ImagePath = profile.DefaultImage
		}
		if m.contacts == nil || f.PhoneNumber == "" {
			continue
		}
		c, err := m.contacts.LookupByPhone(f.PhoneNumber)
		if err != nil || c == nil {
			continue
		}
		if c.FullName != "" {
			f.FullName = c.FullName
		}
		f.ImagePath = c.ImagePath
	}
	return friends, nil
}
