package server

import (
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type unlockResponse struct {
	UserID   string `json:"user_id"`
	Unlocked bool   `json:"unlocked"`
}

// userIDFromPath answers 400 or 404 itself and returns false when the path
// does not name a known user.
func (s *Server) userIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		writeOAuthError(w, oauth2.InvalidRequest("user id is required"), http.StatusBadRequest)
		return "", false
	}
	if _, err := s.Users.GetByID(r.Context(), userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeOAuthError(w, oauth2.NotFound("no such user"), http.StatusNotFound)
			return "", false
		}
		s.internalError(w, r, err)
		return "", false
	}
	return userID, true
}

// AdminRevokeUser is RevokeAllSessions for any user.
func (s *Server) AdminRevokeUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.userIDFromPath(w, r)
		if !ok {
			return
		}

		n, err := s.Sessions.RevokeAll(r.Context(), userID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
	}
}

// AdminUnlockUser clears a user's failed-login count and any active lockout.
func (s *Server) AdminUnlockUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.userIDFromPath(w, r)
		if !ok {
			return
		}

		if err := s.Lockout.UnlockUser(r.Context(), userID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				writeOAuthError(w, oauth2.NotFound("no such user"), http.StatusNotFound)
				return
			}
			s.internalError(w, r, err)
			return
		}
		introspection, _ := IntrospectionFromContext(r.Context())
		log.Info().Str("user_id", userID).Str("admin", introspection.Subject).Msg("user unlocked")
		writeJSON(w, http.StatusOK, unlockResponse{UserID: userID, Unlocked: true})
	}
}

func (s *Server) AdminLockoutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Lockout.GetLockoutSettings())
	}
}
