package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/furni/internal/convert"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/wire"
)

// CloudIdentity is the client of the identity pool endpoints.
type CloudIdentity struct {
	c *conn
}

// NewCloudIdentity builds a client for baseURL. A nil hc uses a client with
// DefaultTimeout.
func NewCloudIdentity(baseURL string, hc *http.Client, log *zap.Logger) *CloudIdentity {
	return &CloudIdentity{c: newConn(baseURL, hc, log)}
}

// Exchange trades provider logins for a federated identity and its token.
func (ci *CloudIdentity) Exchange(ctx context.Context, logins map[string]string) (model.FederatedCredentials, error) {
	var resp wire.ExchangeResponse
	if err := ci.c.do(ctx, http.MethodPost, "/identity/exchange", nil, wire.ExchangeRequest{Logins: logins}, &resp); err != nil {
		return model.FederatedCredentials{}, err
	}
	creds := convert.FromWireExchange(resp)
	if creds.Expiry.IsZero() {
		creds.Expiry = tokenExpiry(creds.Token)
	}
	return creds, nil
}

// tokenExpiry reads the exp claim without checking the signature; the server
// checks it on every request.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// PutProperties merges props into a dataset of the identity.
func (ci *CloudIdentity) PutProperties(ctx context.Context, creds model.FederatedCredentials, dataset string, props map[string]string) error {
	return ci.c.do(ctx, http.MethodPut, datasetPath(creds.IdentityID, dataset), bearer(creds.Token), wire.Dataset{Values: props}, nil)
}

// Dataset reads a dataset of the identity.
func (ci *CloudIdentity) Dataset(ctx context.Context, creds model.FederatedCredentials, dataset string) (map[string]string, error) {
	var resp wire.Dataset
	if err := ci.c.do(ctx, http.MethodGet, datasetPath(creds.IdentityID, dataset), bearer(creds.Token), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func datasetPath(id model.FederatedIdentity, dataset string) string {
	return "/identity/" + url.PathEscape(string(id)) + "/datasets/" + url.PathEscape(dataset)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}
