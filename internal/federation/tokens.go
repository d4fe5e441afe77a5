package federation

import (
	"context"
	"encoding/hex"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/oauth2"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// loginsBox shares the current login map with token sources running off the loop.
type loginsBox struct {
	mu     sync.RWMutex
	logins map[string]string
}

func (l *loginsBox) set(m map[string]string) {
	l.mu.Lock()
	l.logins = m
	l.mu.Unlock()
}

func (l *loginsBox) get() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logins
}

// fingerprint is a stable cache key for a login map.
func fingerprint(logins map[string]string) string {
	keys := make([]string, 0, len(logins))
	for k := range logins {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, _ := blake2b.New256(nil)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(logins[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Credentials returns valid federated credentials for the current sessions,
// from cache when possible and otherwise by a fresh exchange. Safe to call
// from any goroutine.
func (b *Broker) Credentials(ctx context.Context) (model.FederatedCredentials, error) {
	logins := b.logins.get()
	if len(logins) == 0 {
		return model.FederatedCredentials{}, errs.ErrNotLoggedIn
	}
	key := fingerprint(logins)
	if item := b.cache.Get(key); item != nil {
		if creds := item.Value(); creds.Valid(b.opts.Now()) {
			return creds, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.ExchangeTimeout)
	defer cancel()
	creds, err := b.cloud.Exchange(ctx, logins)
	if err != nil {
		return model.FederatedCredentials{}, err
	}
	b.remember(logins, creds)
	return creds, nil
}

// TokenSource exposes Credentials as an oauth2 token source for bearer auth.
// Every call consults the current logins, so a sign-in change never serves the
// previous identity's token.
func (b *Broker) TokenSource() oauth2.TokenSource {
	return brokerTokenSource{b: b}
}

type brokerTokenSource struct{ b *Broker }

func (s brokerTokenSource) Token() (*oauth2.Token, error) {
	creds, err := s.b.Credentials(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: creds.Token,
		TokenType:   "Bearer",
		Expiry:      creds.Expiry,
	}, nil
}
