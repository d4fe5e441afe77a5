package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/wire"
)

func TestCloudIdentity_Exchange(t *testing.T) {
	exp := time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/identity/exchange", r.URL.Path)
		var req wire.ExchangeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]string{"api.twitter.com": "t;s"}, req.Logins)
		_ = json.NewEncoder(w).Encode(wire.ExchangeResponse{IdentityID: "us-east-1:abc", Token: "jwt", ExpiresAt: exp})
	}))
	defer srv.Close()

	ci := NewCloudIdentity(srv.URL+"/", nil, zaptest.NewLogger(t))
	creds, err := ci.Exchange(context.Background(), map[string]string{"api.twitter.com": "t;s"})
	require.NoError(t, err)
	assert.Equal(t, model.FederatedIdentity("us-east-1:abc"), creds.IdentityID)
	assert.Equal(t, "jwt", creds.Token)
	assert.True(t, creds.Expiry.Equal(exp))
}

func TestCloudIdentity_ExpiryFromToken(t *testing.T) {
	exp := time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "us-east-1:abc",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-only-key"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"identityId": "us-east-1:abc", "token": signed})
	}))
	defer srv.Close()

	creds, err := NewCloudIdentity(srv.URL, nil, zaptest.NewLogger(t)).Exchange(context.Background(), map[string]string{"api.twitter.com": "t;s"})
	require.NoError(t, err)
	assert.True(t, creds.Expiry.Equal(exp), "expiry %v", creds.Expiry)
	assert.Zero(t, tokenExpiry("not-a-jwt"))
}

func TestCloudIdentity_ErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, errs.ErrUnauthorized},
		{http.StatusTooManyRequests, errs.ErrRateLimited},
		{http.StatusNotFound, errs.ErrNotFound},
		{http.StatusBadRequest, errs.ErrInvalidArgument},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_ = json.NewEncoder(w).Encode(wire.Error{Error: "nope"})
		}))
		_, err := NewCloudIdentity(srv.URL, nil, nil).Exchange(context.Background(), map[string]string{"x": "y"})
		srv.Close()

		require.Error(t, err)
		assert.True(t, errors.Is(err, c.want), "status %d: %v", c.status, err)
		assert.True(t, IsStatus(err, c.status))
		assert.Contains(t, err.Error(), "nope")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	_, err := NewCloudIdentity(srv.URL, nil, nil).Exchange(context.Background(), nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, "boom", se.Message)
}

func TestCloudIdentity_Datasets(t *testing.T) {
	stored := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/identity/us-east-1:abc/datasets/dataset", r.URL.Path)
		require.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPut:
			var ds wire.Dataset
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ds))
			for k, v := range ds.Values {
				stored[k] = v
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(wire.Dataset{Values: stored})
		}
	}))
	defer srv.Close()

	ci := NewCloudIdentity(srv.URL, nil, nil)
	creds := model.FederatedCredentials{IdentityID: "us-east-1:abc", Token: "jwt"}
	require.NoError(t, ci.PutProperties(context.Background(), creds, "dataset", map[string]string{"twitterUserID": "42"}))

	got, err := ci.Dataset(context.Background(), creds, "dataset")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"twitterUserID": "42"}, got)
}

func newAPI(t *testing.T, h http.HandlerFunc) *AuthenticatedAPI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	return NewAuthenticatedAPI(srv.URL, "id1", ts, nil, time.Second, zaptest.NewLogger(t))
}

func TestAPI_RegisterAndFavorites(t *testing.T) {
	var registered wire.RegisterUserRequest
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && r.URL.Path == "/favorites/id1":
			_ = json.NewEncoder(w).Encode(wire.FavoritesResponse{
				"id1": {Products: []wire.Product{{ID: 1, Collection: "c"}, {ID: 5, Collection: "c"}}},
			})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL)
		}
	})

	require.NoError(t, api.RegisterUser(context.Background(), model.RegistrationDetails{DigitsUserID: "77", PhoneNumber: "+1"}))
	assert.Equal(t, wire.RegisterUserRequest{CognitoID: "id1", DigitsID: "77", PhoneNumber: "+1"}, registered)

	favs, err := api.FavoriteProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, int64(5), favs[0].ID)
}

func TestAPI_SetFavoriteMethods(t *testing.T) {
	var methods []string
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/favorites", r.URL.Path)
		var req wire.FavoriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(9), req.Product)
		assert.Equal(t, "id1", req.CognitoID)
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	p := model.Product{ID: 9, Collection: "living"}
	require.NoError(t, api.SetFavorite(context.Background(), p, true))
	require.NoError(t, api.SetFavorite(context.Background(), p, false))
	assert.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods)
}

func TestAPI_FriendsAndContacts(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/contacts":
			var req wire.ContactsUploadRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(wire.ContactsUploadResponse{Uploaded: len(req.PhoneNumbers)})
		case r.URL.Path == "/contacts/matches" && r.URL.Query().Get("cursor") == "":
			_ = json.NewEncoder(w).Encode(wire.MatchesResponse{Matches: []wire.Match{{DigitsID: "a"}}, NextCursor: "p2"})
		case r.URL.Path == "/contacts/matches" && r.URL.Query().Get("cursor") == "p2":
			_ = json.NewEncoder(w).Encode(wire.MatchesResponse{Matches: []wire.Match{{DigitsID: "b"}}})
		case r.Method == http.MethodPost && r.URL.Path == "/friendships":
			var req wire.FriendshipsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "id1", req.From)
			_ = json.NewEncoder(w).Encode(wire.FriendshipsResponse{Created: len(req.To)})
		case r.URL.Path == "/friendships/id1":
			_ = json.NewEncoder(w).Encode(wire.FriendsResponse{Friends: []wire.Friend{{CognitoID: "id2", DigitsID: "b", PhoneNumber: "+2"}}})
		case r.URL.Path == "/favorites":
			assert.Equal(t, "id2,id3", r.URL.Query().Get("ids"))
			_ = json.NewEncoder(w).Encode(wire.FavoritesResponse{"id2": {Products: []wire.Product{{ID: 3}}}, "id3": {Products: []wire.Product{}}})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL)
		}
	})
	ctx := context.Background()

	n, err := api.UploadContacts(ctx, []string{"+1", "+2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	page, next, err := api.ContactMatches(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "p2", next)
	assert.Len(t, page, 1)
	page, next, err = api.ContactMatches(ctx, next)
	require.NoError(t, err)
	assert.Empty(t, next)
	assert.Equal(t, "b", page[0].DigitsID)

	created, err := api.UploadFriends(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	friends, err := api.Friends(ctx)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, model.FederatedIdentity("id2"), friends[0].IdentityID)

	favs, err := api.FavoritesOf(ctx, []model.FederatedIdentity{"id2", "id3"})
	require.NoError(t, err)
	assert.Len(t, favs["id2"], 1)
	assert.Empty(t, favs["id3"])
}
