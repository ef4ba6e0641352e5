package httpapi

import (
	"log"
	"net/http"
	"strings"

	"github.com/peerdesk/peerdesk/internal/provider"
	"github.com/peerdesk/peerdesk/internal/user"
)

type userSyncRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type userSyncResponse struct {
	User *user.User `json:"user"`
}

// handleUserSync upserts the caller's local record from their verified token
// plus profile fields, and mirrors the profile to the provider so chat and
// call members render with names and avatars. The provider mirror is
// best-effort: a failure is logged, the local record still stands.
func (s *Server) handleUserSync(w http.ResponseWriter, r *http.Request) {
	externalID, err := s.guard.ExternalIdentity(r.Header.Get("Authorization"))
	if err != nil {
		respondAppError(w, err)
		return
	}

	var req userSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_name", "name is required")
		return
	}

	u, err := s.users.Upsert(r.Context(), &user.User{
		ExternalID: externalID,
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		AvatarURL:  strings.TrimSpace(req.AvatarURL),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", "could not save user")
		return
	}

	if err := s.provider.UpsertUser(r.Context(), provider.UserProfile{
		ID:        u.ExternalID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}); err != nil {
		log.Printf("user %s: provider profile sync failed: %v", u.ID, err)
	}

	respondJSON(w, http.StatusOK, userSyncResponse{User: u})
}
