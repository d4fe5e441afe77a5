// Package wire holds the JSON bodies exchanged between the client and furni-api.
package wire

import "time"

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
}

// ExchangeRequest carries provider logins, login key to "token;secret".
type ExchangeRequest struct {
	Logins map[string]string `json:"logins"`
}

type ExchangeResponse struct {
	IdentityID string    `json:"identityId"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Dataset is a synchronized key-value record. PUT merges Values into the stored
// record; an empty value deletes the key.
type Dataset struct {
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type RegisterUserRequest struct {
	CognitoID   string `json:"cognitoId"`
	DigitsID    string `json:"digitsId,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type Product struct {
	ID         int64   `json:"id"`
	Collection string  `json:"collection"`
	Name       string  `json:"name,omitempty"`
	Price      float64 `json:"price,omitempty"`
}

type FavoriteProducts struct {
	Products []Product `json:"products"`
}

// FavoritesResponse maps identity ids to their favorites.
type FavoritesResponse map[string]FavoriteProducts

// FavoriteRequest toggles one favorite; POST adds, DELETE removes.
type FavoriteRequest struct {
	Product    int64   `json:"product,string"`
	Collection string  `json:"collection"`
	CognitoID  string  `json:"cognitoId"`
	Name       string  `json:"name,omitempty"`
	Price      float64 `json:"price,omitempty"`
}

type FriendshipsRequest struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

type FriendshipsResponse struct {
	Created int `json:"created"`
}

type Friend struct {
	CognitoID   string `json:"cognitoId"`
	DigitsID    string `json:"digitsId,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

type FriendsResponse struct {
	Friends []Friend `json:"friends"`
}

type ContactsUploadRequest struct {
	PhoneNumbers []string `json:"phoneNumbers"`
}

type ContactsUploadResponse struct {
	Uploaded int `json:"uploaded"`
}

type Match struct {
	DigitsID    string `json:"digitsId"`
	PhoneNumber string `json:"phoneNumber"`
}

// MatchesResponse is one page of contact matches; an empty NextCursor ends
// the listing.
type MatchesResponse struct {
	Matches    []Match `json:"matches"`
	NextCursor string  `json:"nextCursor,omitempty"`
}
