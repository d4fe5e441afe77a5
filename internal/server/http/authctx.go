package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/and161185/furni/internal/model"
)

type ctxKey string

const identityKey ctxKey = "furni.identity"

// WithIdentity stores the authenticated identity in context.
func WithIdentity(ctx context.Context, id model.FederatedIdentity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the authenticated identity from context.
func IdentityFromCtx(ctx context.Context) (model.FederatedIdentity, bool) {
	id, ok := ctx.Value(identityKey).(model.FederatedIdentity)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errors.New("no authorization header")
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("not a bearer token")
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", errors.New("empty token")
	}
	return tok, nil
}
