package httpapi

import (
	"net/http"

	"github.com/peerdesk/peerdesk/internal/auth"
)

type chatTokenResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserImage string `json:"user_image,omitempty"`
}

// handleChatToken mints the provider-side token the client SDKs need to join
// the chat channel and call. The token identifies the caller by their
// external identity, which is what the provider keys members on.
func (s *Server) handleChatToken(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing_identity", "no authenticated user")
		return
	}

	token, err := s.tokens.UserToken(u.ExternalID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token_error", "could not create a chat token")
		return
	}

	respondJSON(w, http.StatusOK, chatTokenResponse{
		Token:     token,
		UserID:    u.ExternalID,
		UserName:  u.Name,
		UserImage: u.AvatarURL,
	})
}
