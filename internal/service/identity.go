// Package service contains the application services of furni-api: the
// identity pool and the social backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/furni/internal/crypto"
	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/limiter"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/repository"
)

const tokenIssuer = "furni"

// LoginVerifier turns a provider credential into a verified login.
// Implementations backed by a provider must key Subject by the provider user
// id, so token rotation keeps resolving to the same identity.
type LoginVerifier interface {
	Verify(ctx context.Context, provider model.Provider, credential string) (model.Login, error)
}

// FingerprintVerifier accepts any well-formed "token;secret" credential and
// keys the login by its fingerprint. A rotated token therefore yields a new
// subject and a new identity.
type FingerprintVerifier struct {
	fp *pkgcrypto.Fingerprinter
}

// NewFingerprintVerifier builds a verifier over fp.
func NewFingerprintVerifier(fp *pkgcrypto.Fingerprinter) *FingerprintVerifier {
	return &FingerprintVerifier{fp: fp}
}

func (v *FingerprintVerifier) Verify(_ context.Context, p model.Provider, credential string) (model.Login, error) {
	token, secret, ok := strings.Cut(credential, ";")
	if !ok || token == "" || secret == "" {
		return model.Login{}, fmt.Errorf("%w: malformed %s credential", errs.ErrUnauthorized, p.Name())
	}
	return model.Login{Provider: p, Subject: v.fp.Subject(string(p), credential)}, nil
}

// IdentityService is the cloud identity pool.
type IdentityService interface {
	// Exchange verifies logins and returns the federated identity and a token.
	Exchange(ctx context.Context, logins map[string]string, clientIP string) (model.FederatedCredentials, error)
	// VerifyToken returns the identity a bearer token was issued for.
	VerifyToken(token string) (model.FederatedIdentity, error)
	// PutDataset merges values into a dataset of the identity.
	PutDataset(ctx context.Context, ds model.Dataset) (*model.Dataset, error)
	// GetDataset loads a dataset of the identity.
	GetDataset(ctx context.Context, id model.FederatedIdentity, name string) (*model.Dataset, error)
}

// IdentityOptions configure an IdentityServiceImpl.
type IdentityOptions struct {
	SignKey  []byte
	TokenTTL time.Duration
	Region   string
	Leeway   time.Duration
}

type IdentityServiceImpl struct {
	ids      repository.IdentityRepository
	verifier LoginVerifier
	lim      limiter.Limiter
	log      *zap.Logger
	opts     IdentityOptions

	now   func() time.Time
	newID func() (uuid.UUID, error)
}

// NewIdentityService constructs the identity pool service.
func NewIdentityService(
	ids repository.IdentityRepository, verifier LoginVerifier, lim limiter.Limiter, log *zap.Logger, opts IdentityOptions,
) *IdentityServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	if lim == nil {
		lim = limiter.Nop{}
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.Leeway <= 0 {
		opts.Leeway = 30 * time.Second
	}
	return &IdentityServiceImpl{
		ids:      ids,
		verifier: verifier,
		lim:      lim,
		log:      log.Named("identity"),
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewV4,
	}
}

// Exchange applies per-client rate limiting, verifies every login and resolves
// them to one identity.
func (s *IdentityServiceImpl) Exchange(ctx context.Context, logins map[string]string, clientIP string) (model.FederatedCredentials, error) {
	if len(logins) == 0 {
		return model.FederatedCredentials{}, fmt.Errorf("%w: no logins", errs.ErrInvalidArgument)
	}
	client := limiter.ClientKey(clientIP)

	allowed, _, err := s.lim.Allow(ctx, client)
	if err != nil {
		return model.FederatedCredentials{}, err
	}
	if !allowed {
		return model.FederatedCredentials{}, errs.ErrRateLimited
	}

	verified := make([]model.Login, 0, len(logins))
	for key, credential := range logins {
		l, err := s.verify(ctx, key, credential)
		if err != nil {
			if blocked, _, ferr := s.lim.Failure(ctx, client); ferr == nil && blocked {
				return model.FederatedCredentials{}, errs.ErrRateLimited
			}
			return model.FederatedCredentials{}, err
		}
		verified = append(verified, l)
	}
	// Map order is random; keep statements deterministic.
	sort.Slice(verified, func(i, j int) bool { return verified[i].Provider < verified[j].Provider })

	uid, err := s.newID()
	if err != nil {
		return model.FederatedCredentials{}, err
	}
	candidate := model.FederatedIdentity(s.opts.Region + ":" + uid.String())

	id, created, err := s.ids.Resolve(ctx, verified, candidate)
	if err != nil {
		return model.FederatedCredentials{}, fmt.Errorf("resolve identity: %w", err)
	}
	if err := s.lim.Success(ctx, client); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	if created {
		s.log.Info("identity created", zap.String("identity", string(id)), zap.Int("logins", len(verified)))
	}

	token, exp, err := s.issueToken(id)
	if err != nil {
		return model.FederatedCredentials{}, err
	}
	return model.FederatedCredentials{IdentityID: id, Token: token, Expiry: exp}, nil
}

func (s *IdentityServiceImpl) verify(ctx context.Context, key, credential string) (model.Login, error) {
	p, err := model.ParseProvider(key)
	if err != nil {
		return model.Login{}, fmt.Errorf("%w: %w", errs.ErrInvalidArgument, err)
	}
	l, err := s.verifier.Verify(ctx, p, credential)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return model.Login{}, err
		}
		return model.Login{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	return l, nil
}

// issueToken signs an HS256 JWT whose subject is the identity.
func (s *IdentityServiceImpl) issueToken(id model.FederatedIdentity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.opts.TokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   string(id),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.SignKey)
	return signed, exp, err
}

// VerifyToken checks signature, issuer and expiry and returns the subject.
func (s *IdentityServiceImpl) VerifyToken(token string) (model.FederatedIdentity, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.opts.SignKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.opts.Leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", errs.ErrUnauthorized)
	}
	return model.FederatedIdentity(claims.Subject), nil
}

// PutDataset validates and merges a dataset.
func (s *IdentityServiceImpl) PutDataset(ctx context.Context, ds model.Dataset) (*model.Dataset, error) {
	if ds.IdentityID == "" || ds.Name == "" {
		return nil, fmt.Errorf("%w: identity and dataset name are required", errs.ErrInvalidArgument)
	}
	return s.ids.MergeDataset(ctx, ds)
}

// GetDataset loads a dataset.
func (s *IdentityServiceImpl) GetDataset(ctx context.Context, id model.FederatedIdentity, name string) (*model.Dataset, error) {
	if id == "" || name == "" {
		return nil, fmt.Errorf("%w: identity and dataset name are required", errs.ErrInvalidArgument)
	}
	return s.ids.GetDataset(ctx, id, name)
}
