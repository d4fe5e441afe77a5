package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/wire"
)

func TestFromWireProducts_SortedNewestFirst(t *testing.T) {
	t.Parallel()
	in := []wire.Product{{ID: 3}, {ID: 11}, {ID: 7, Collection: "living"}}
	got := FromWireProducts(in)
	if len(got) != 3 || got[0].ID != 11 || got[1].ID != 7 || got[2].ID != 3 {
		t.Fatalf("bad order: %+v", got)
	}
	if got[1].Collection != "living" {
		t.Fatalf("collection lost")
	}
}

func TestToWireFavorites_EveryIdentityPresent(t *testing.T) {
	t.Parallel()
	ids := []model.FederatedIdentity{"a", "b"}
	favs := []model.Favorite{
		{IdentityID: "a", Product: model.Product{ID: 1, Collection: "c"}},
		{IdentityID: "a", Product: model.Product{ID: 2, Collection: "c"}},
	}
	got := ToWireFavorites(ids, favs)
	if len(got["a"].Products) != 2 {
		t.Fatalf("a: %+v", got["a"])
	}
	b, ok := got["b"]
	if !ok || b.Products == nil || len(b.Products) != 0 {
		t.Fatalf("b must be present and empty: %+v", b)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back wire.FavoritesResponse
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m := FromWireFavorites(back); len(m["a"]) != 2 || m["a"][0].ID != 2 {
		t.Fatalf("FromWireFavorites: %+v", m)
	}
}

func TestRegister_DetailsOnlyWhenComplete(t *testing.T) {
	t.Parallel()
	req := ToWireRegister("id1", model.RegistrationDetails{DigitsUserID: "77"})
	if req.DigitsID != "" || req.PhoneNumber != "" {
		t.Fatalf("partial details must be dropped: %+v", req)
	}
	req = ToWireRegister("id1", model.RegistrationDetails{DigitsUserID: "77", PhoneNumber: "+1"})
	u := FromWireRegister(req)
	if u.IdentityID != "id1" || u.DigitsUserID != "77" || u.PhoneNumber != "+1" {
		t.Fatalf("roundtrip: %+v", u)
	}
}

func TestFavoriteRequest_ProductIDAsString(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(wire.FavoriteRequest{Product: 42, Collection: "living", CognitoID: "id1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"product":"42","collection":"living","cognitoId":"id1"}`
	if string(raw) != want {
		t.Fatalf("got %s, want %s", raw, want)
	}
}

func TestFavoriteRequest_DecodesIntoFavorite(t *testing.T) {
	t.Parallel()
	var req wire.FavoriteRequest
	if err := json.Unmarshal([]byte(`{"product":"7","collection":"bed","cognitoId":"id2","price":9.5}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	f := FromWireFavoriteRequest(req)
	if f.IdentityID != "id2" || f.Product.ID != 7 || f.Product.Collection != "bed" || f.Product.Price != 9.5 {
		t.Fatalf("bad favorite: %+v", f)
	}
	if back := ToWireFavoriteRequest(f.IdentityID, f.Product); back != req {
		t.Fatalf("inverse mismatch: %+v", back)
	}
}

func TestExchange_Conversion(t *testing.T) {
	t.Parallel()
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c := FromWireExchange(wire.ExchangeResponse{IdentityID: "us-east-1:x", Token: "jwt", ExpiresAt: exp})
	if c.IdentityID != "us-east-1:x" || c.Token != "jwt" || !c.Expiry.Equal(exp) {
		t.Fatalf("bad creds: %+v", c)
	}
	if ToWireExchange(c).IdentityID != "us-east-1:x" {
		t.Fatalf("inverse mismatch")
	}
}
