package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/peerdesk/peerdesk/internal/auth"
	"github.com/peerdesk/peerdesk/internal/config"
	"github.com/peerdesk/peerdesk/internal/observability"
	"github.com/peerdesk/peerdesk/internal/provider"
	"github.com/peerdesk/peerdesk/internal/session"
	"github.com/peerdesk/peerdesk/internal/user"
)

// TokenSource mints provider-side user tokens for the chat token endpoint.
type TokenSource interface {
	UserToken(userID string) (string, error)
}

type Server struct {
	cfg         config.Config
	coordinator *session.Coordinator
	guard       *auth.Guard
	users       user.Store
	provider    provider.Client
	tokens      TokenSource
	metrics     *observability.Metrics
}

func New(cfg config.Config, coordinator *session.Coordinator, guard *auth.Guard, users user.Store, providerClient provider.Client, tokens TokenSource, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		coordinator: coordinator,
		guard:       guard,
		users:       users,
		provider:    providerClient,
		tokens:      tokens,
		metrics:     metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.guard.Middleware(respondAppError))

		r.Post("/v1/sessions", s.handleCreateSession)
		r.Get("/v1/sessions/active", s.handleListActive)
		r.Get("/v1/sessions/recent", s.handleListRecent)
		r.Get("/v1/sessions/{id}", s.handleGetSession)
		r.Post("/v1/sessions/{id}/join", s.handleJoinSession)
		r.Post("/v1/sessions/{id}/end", s.handleEndSession)

		r.Get("/v1/chat/token", s.handleChatToken)
	})

	// User sync only needs a verified token, not an existing local record.
	r.Post("/v1/users/sync", s.handleUserSync)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"provider_mode": s.cfg.ProviderMode,
	})
}
