package convert

import (
	"sort"

	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/wire"
)

// --- products ---

// ToWireProduct converts a domain product to its JSON form.
func ToWireProduct(p model.Product) wire.Product {
	return wire.Product{ID: p.ID, Collection: p.Collection, Name: p.Name, Price: p.Price}
}

// FromWireProduct converts a JSON product to the domain form.
func FromWireProduct(p wire.Product) model.Product {
	return model.Product{ID: p.ID, Collection: p.Collection, Name: p.Name, Price: p.Price}
}

// ToWireProducts keeps input order.
func ToWireProducts(ps []model.Product) []wire.Product {
	out := make([]wire.Product, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToWireProduct(p))
	}
	return out
}

// FromWireProducts returns products newest id first, the order favorites are
// displayed in.
func FromWireProducts(ps []wire.Product) []model.Product {
	out := make([]model.Product, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromWireProduct(p))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// --- favorites ---

// ToWireFavorites groups favorites per identity. Every requested identity gets
// an entry, empty when it has no favorites.
func ToWireFavorites(ids []model.FederatedIdentity, favs []model.Favorite) wire.FavoritesResponse {
	out := make(wire.FavoritesResponse, len(ids))
	for _, id := range ids {
		out[string(id)] = wire.FavoriteProducts{Products: []wire.Product{}}
	}
	for _, f := range favs {
		entry := out[string(f.IdentityID)]
		entry.Products = append(entry.Products, ToWireProduct(f.Product))
		out[string(f.IdentityID)] = entry
	}
	return out
}

// FromWireFavorites converts a favorites response to per-identity products.
func FromWireFavorites(in wire.FavoritesResponse) map[model.FederatedIdentity][]model.Product {
	out := make(map[model.FederatedIdentity][]model.Product, len(in))
	for id, entry := range in {
		out[model.FederatedIdentity(id)] = FromWireProducts(entry.Products)
	}
	return out
}

// ToWireFavoriteRequest builds the body that toggles p for id.
func ToWireFavoriteRequest(id model.FederatedIdentity, p model.Product) wire.FavoriteRequest {
	return wire.FavoriteRequest{
		Product:    p.ID,
		Collection: p.Collection,
		CognitoID:  string(id),
		Name:       p.Name,
		Price:      p.Price,
	}
}

// FromWireFavoriteRequest is the inverse of ToWireFavoriteRequest.
func FromWireFavoriteRequest(r wire.FavoriteRequest) model.Favorite {
	return model.Favorite{
		IdentityID: model.FederatedIdentity(r.CognitoID),
		Product:    model.Product{ID: r.Product, Collection: r.Collection, Name: r.Name, Price: r.Price},
	}
}

// --- friends ---

// ToWireFriend converts a registered user to the friend JSON form.
func ToWireFriend(u model.RegisteredUser) wire.Friend {
	return wire.Friend{CognitoID: string(u.IdentityID), DigitsID: u.DigitsUserID, PhoneNumber: u.PhoneNumber}
}

// FromWireFriend converts a friend JSON entry to a domain friend without
// contact enrichment or favorites.
func FromWireFriend(f wire.Friend) model.Friend {
	return model.Friend{
		IdentityID:   model.FederatedIdentity(f.CognitoID),
		DigitsUserID: f.DigitsID,
		PhoneNumber:  f.PhoneNumber,
	}
}

// ToWireMatch converts a contact match. Only Digits details leave the server.
func ToWireMatch(u model.RegisteredUser) wire.Match {
	return wire.Match{DigitsID: u.DigitsUserID, PhoneNumber: u.PhoneNumber}
}

// --- registration ---

// ToWireRegister builds the registration body. Digits details are attached
// only when both are present.
func ToWireRegister(id model.FederatedIdentity, d model.RegistrationDetails) wire.RegisterUserRequest {
	req := wire.RegisterUserRequest{CognitoID: string(id)}
	if !d.Empty() {
		req.DigitsID = d.DigitsUserID
		req.PhoneNumber = d.PhoneNumber
	}
	return req
}

// FromWireRegister converts a registration body to the user to upsert. Details
// are kept as sent; the service rejects half-filled ones.
func FromWireRegister(req wire.RegisterUserRequest) model.RegisteredUser {
	return model.RegisteredUser{
		IdentityID:   model.FederatedIdentity(req.CognitoID),
		DigitsUserID: req.DigitsID,
		PhoneNumber:  req.PhoneNumber,
	}
}

// --- credentials ---

// FromWireExchange converts an exchange response to federated credentials.
func FromWireExchange(r wire.ExchangeResponse) model.FederatedCredentials {
	return model.FederatedCredentials{
		IdentityID: model.FederatedIdentity(r.IdentityID),
		Token:      r.Token,
		Expiry:     r.ExpiresAt,
	}
}

// ToWireExchange is the inverse of FromWireExchange.
func ToWireExchange(c model.FederatedCredentials) wire.ExchangeResponse {
	return wire.ExchangeResponse{IdentityID: string(c.IdentityID), Token: c.Token, ExpiresAt: c.Expiry}
}
