package httpserver

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/and161185/furni/internal/convert"
	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/metrics"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/wire"
)

// --- identity ---

func (s *Server) exchange(w http.ResponseWriter, r *http.Request) {
	var req wire.ExchangeRequest
	if err := decode(r, &req); err != nil {
		s.metrics.ObserveExchange(metrics.ExchangeRejected)
		s.writeError(w, r, err)
		return
	}
	creds, err := s.identity.Exchange(r.Context(), req.Logins, clientIP(r))
	s.metrics.ObserveExchange(exchangeOutcome(err))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, convert.ToWireExchange(creds))
}

func exchangeOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.ExchangeOK
	case errors.Is(err, errs.ErrRateLimited):
		return metrics.ExchangeRateLimited
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrInvalidArgument):
		return metrics.ExchangeRejected
	}
	return metrics.ExchangeError
}

// clientIP is the peer address after middleware.RealIP rewrote RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) putDataset(w http.ResponseWriter, r *http.Request) {
	id, err := s.ownIdentity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body wire.Dataset
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	ds, err := s.identity.PutDataset(r.Context(), model.Dataset{
		IdentityID: id,
		Name:       pathParam(r, "dataset"),
		Values:     body.Values,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wire.Dataset{Values: ds.Values, UpdatedAt: ds.UpdatedAt})
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	id, err := s.ownIdentity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ds, err := s.identity.GetDataset(r.Context(), id, pathParam(r, "dataset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wire.Dataset{Values: ds.Values, UpdatedAt: ds.UpdatedAt})
}

// --- users ---

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromCtx(r.Context())
	var req wire.RegisterUserRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.social.RegisterUser(r.Context(), caller, convert.FromWireRegister(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, convert.ToWireFriend(*u))
}

// --- favorites ---

func (s *Server) identityFavorites(w http.ResponseWriter, r *http.Request) {
	s.favorites(w, r, []model.FederatedIdentity{model.FederatedIdentity(pathParam(r, "identityId"))})
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	var ids []model.FederatedIdentity
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, model.FederatedIdentity(id))
		}
	}
	s.favorites(w, r, ids)
}

func (s *Server) favorites(w http.ResponseWriter, r *http.Request, ids []model.FederatedIdentity) {
	favs, err := s.social.Favorites(r.Context(), ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, convert.ToWireFavorites(ids, favs))
}

func (s *Server) setFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := IdentityFromCtx(r.Context())
		var req wire.FavoriteRequest
		if err := decode(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.social.SetFavorite(r.Context(), caller, convert.FromWireFavoriteRequest(req), favorite); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// --- friendships ---

func (s *Server) linkFriends(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromCtx(r.Context())
	var req wire.FriendshipsRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if model.FederatedIdentity(req.From) != caller {
		s.writeError(w, r, errs.ErrUnauthorized)
		return
	}
	created, err := s.social.LinkFriends(r.Context(), caller, req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wire.FriendshipsResponse{Created: created})
}

func (s *Server) friends(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromCtx(r.Context())
	users, err := s.social.Friends(r.Context(), caller, model.FederatedIdentity(pathParam(r, "identityId")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := wire.FriendsResponse{Friends: make([]wire.Friend, 0, len(users))}
	for _, u := range users {
		resp.Friends = append(resp.Friends, convert.ToWireFriend(u))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- contacts ---

func (s *Server) uploadContacts(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromCtx(r.Context())
	var req wire.ContactsUploadRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.social.UploadContacts(r.Context(), caller, req.PhoneNumbers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wire.ContactsUploadResponse{Uploaded: n})
}

func (s *Server) contactMatches(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromCtx(r.Context())
	users, next, err := s.social.ContactMatches(r.Context(), caller, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := wire.MatchesResponse{Matches: make([]wire.Match, 0, len(users)), NextCursor: next}
	for _, u := range users {
		resp.Matches = append(resp.Matches, convert.ToWireMatch(u))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

// ownIdentity returns the {identityId} path parameter when it names the caller.
func (s *Server) ownIdentity(r *http.Request) (model.FederatedIdentity, error) {
	caller, _ := IdentityFromCtx(r.Context())
	id := model.FederatedIdentity(pathParam(r, "identityId"))
	if id != caller {
		return "", fmt.Errorf("%w: identity %q is not the caller", errs.ErrUnauthorized, id)
	}
	return id, nil
}

func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}
