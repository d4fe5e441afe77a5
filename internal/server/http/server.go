// Package httpserver exposes the furni REST API.
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/furni/internal/metrics"
	"github.com/and161185/furni/internal/service"
)

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires services into HTTP handlers.
type Server struct {
	identity service.IdentityService
	social   service.SocialService
	db       Pinger
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New constructs the REST server. db and m may be nil.
func New(identity service.IdentityService, social service.SocialService, db Pinger, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{identity: identity, social: social, db: db, metrics: m, log: log.Named("http")}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(s.recoverer)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Post("/identity/exchange", s.exchange)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Put("/identity/{identityId}/datasets/{dataset}", s.putDataset)
		r.Get("/identity/{identityId}/datasets/{dataset}", s.getDataset)

		r.Post("/users", s.registerUser)

		r.Get("/favorites", s.listFavorites)
		r.Get("/favorites/{identityId}", s.identityFavorites)
		r.Post("/favorites", s.setFavorite(true))
		r.Delete("/favorites", s.setFavorite(false))

		r.Post("/friendships", s.linkFriends)
		r.Get("/friendships/{identityId}", s.friends)

		r.Post("/contacts", s.uploadContacts)
		r.Get("/contacts/matches", s.contactMatches)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
