package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/peerdesk/peerdesk/internal/auth"
	"github.com/peerdesk/peerdesk/internal/session"
)

type createSessionRequest struct {
	Problem    string `json:"problem"`
	Difficulty string `json:"difficulty"`
}

type sessionResponse struct {
	Session *session.Session `json:"session"`
}

type sessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_identity", "no authenticated user")
		return
	}

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "problem and difficulty are required")
		return
	}

	sess, err := s.coordinator.Create(r.Context(), u, req.Problem, req.Difficulty)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse{Session: sess})
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	page, limit := pagingParams(r)
	sessions, err := s.coordinator.ListActive(r.Context(), page, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions})
}

func (s *Server) handleListRecent(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_identity", "no authenticated user")
		return
	}
	page, limit := pagingParams(r)
	sessions, err := s.coordinator.ListRecentForUser(r.Context(), u.ID, page, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.coordinator.Get(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: sess})
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_identity", "no authenticated user")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.coordinator.Join(r.Context(), id, u)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: sess})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_identity", "no authenticated user")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.coordinator.End(r.Context(), id, u)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Session: sess})
}
