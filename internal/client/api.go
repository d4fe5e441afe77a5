package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/and161185/furni/internal/convert"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/wire"
)

// AuthenticatedAPI acts on behalf of one federated identity. Requests carry the
// bearer token served by the token source.
type AuthenticatedAPI struct {
	identity model.FederatedIdentity
	c        *conn
}

// NewAuthenticatedAPI builds a handle for identity. base may be nil.
func NewAuthenticatedAPI(baseURL string, identity model.FederatedIdentity, ts oauth2.TokenSource, base *http.Client, timeout time.Duration, log *zap.Logger) *AuthenticatedAPI {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthenticatedAPI{
		identity: identity,
		c:        newConn(baseURL, hc, log.With(zap.String("identity", string(identity)))),
	}
}

// Identity returns the identity the handle acts for.
func (a *AuthenticatedAPI) Identity() model.FederatedIdentity { return a.identity }

// RegisterUser creates or updates the backend user of the identity.
func (a *AuthenticatedAPI) RegisterUser(ctx context.Context, d model.RegistrationDetails) error {
	return a.c.do(ctx, http.MethodPost, "/users", nil, convert.ToWireRegister(a.identity, d), nil)
}

// FavoriteProducts returns the identity's favorites, newest first.
func (a *AuthenticatedAPI) FavoriteProducts(ctx context.Context) ([]model.Product, error) {
	var resp wire.FavoritesResponse
	if err := a.c.do(ctx, http.MethodGet, "/favorites/"+url.PathEscape(string(a.identity)), nil, nil, &resp); err != nil {
		return nil, err
	}
	return convert.FromWireFavorites(resp)[a.identity], nil
}

// FavoritesOf returns the favorites of several identities at once.
func (a *AuthenticatedAPI) FavoritesOf(ctx context.Context, ids []model.FederatedIdentity) (map[model.FederatedIdentity][]model.Product, error) {
	if len(ids) == 0 {
		return map[model.FederatedIdentity][]model.Product{}, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	q := url.Values{"ids": {strings.Join(parts, ",")}}
	var resp wire.FavoritesResponse
	if err := a.c.do(ctx, http.MethodGet, "/favorites?"+q.Encode(), nil, nil, &resp); err != nil {
		return nil, err
	}
	return convert.FromWireFavorites(resp), nil
}

// SetFavorite adds (POST) or removes (DELETE) a favorite.
func (a *AuthenticatedAPI) SetFavorite(ctx context.Context, p model.Product, favorite bool) error {
	method := http.MethodDelete
	if favorite {
		method = http.MethodPost
	}
	return a.c.do(ctx, method, "/favorites", nil, convert.ToWireFavoriteRequest(a.identity, p), nil)
}

// UploadFriends links the identity with the users behind digitsIDs.
func (a *AuthenticatedAPI) UploadFriends(ctx context.Context, digitsIDs []string) (int, error) {
	var resp wire.FriendshipsResponse
	req := wire.FriendshipsRequest{From: string(a.identity), To: digitsIDs}
	if err := a.c.do(ctx, http.MethodPost, "/friendships", nil, req, &resp); err != nil {
		return 0, err
	}
	return resp.Created, nil
}

// Friends lists the identity's friends without enrichment.
func (a *AuthenticatedAPI) Friends(ctx context.Context) ([]model.Friend, error) {
	var resp wire.FriendsResponse
	if err := a.c.do(ctx, http.MethodGet, "/friendships/"+url.PathEscape(string(a.identity)), nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Friend, 0, len(resp.Friends))
	for _, f := range resp.Friends {
		out = append(out, convert.FromWireFriend(f))
	}
	return out, nil
}

// UploadContacts sends address-book phone numbers for matching.
func (a *AuthenticatedAPI) UploadContacts(ctx context.Context, phones []string) (int, error) {
	var resp wire.ContactsUploadResponse
	if err := a.c.do(ctx, http.MethodPost, "/contacts", nil, wire.ContactsUploadRequest{PhoneNumbers: phones}, &resp); err != nil {
		return 0, err
	}
	return resp.Uploaded, nil
}

// ContactMatches returns one page of registered users found among the uploaded
// contacts. An empty next cursor ends the listing.
func (a *AuthenticatedAPI) ContactMatches(ctx context.Context, cursor string) (matches []wire.Match, next string, err error) {
	path := "/contacts/matches"
	if cursor != "" {
		path += "?" + url.Values{"cursor": {cursor}}.Encode()
	}
	var resp wire.MatchesResponse
	if err := a.c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Matches, resp.NextCursor, nil
}
