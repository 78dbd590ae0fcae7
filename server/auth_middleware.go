package server

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIntrospection stores the validated access token
const ContextKeyIntrospection ContextKey = "introspection"

// IntrospectionFromContext returns the access token RequireAuth validated.
func IntrospectionFromContext(ctx context.Context) (*token.Introspection, bool) {
	i, ok := ctx.Value(ContextKeyIntrospection).(*token.Introspection)
	return i, ok && i != nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// RequireAuth is middleware that validates a Bearer access token
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeBearerChallenge(w, oauth2.InvalidToken("missing bearer token"))
				return
			}

			introspection, err := s.Tokens.Validate(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, apperrors.ErrTokenExpired):
					writeBearerChallenge(w, oauth2.InvalidToken("the token has expired"))
				case errors.Is(err, apperrors.ErrTokenRevoked),
					errors.Is(err, apperrors.ErrTokenBlacklisted):
					writeBearerChallenge(w, oauth2.InvalidToken(oauth2.MsgTokenNoLongerValid))
				case errors.Is(err, apperrors.ErrInvalidToken):
					writeBearerChallenge(w, oauth2.InvalidToken("the token is invalid"))
				default:
					s.internalError(w, r, err)
				}
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIntrospection, introspection)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireAdmin is middleware that requires the admin role. Chain after RequireAuth.
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			introspection, ok := IntrospectionFromContext(r.Context())
			if !ok || !introspection.HasRole(users.RoleAdmin) {
				writeOAuthError(w, oauth2.AccessDenied("admin role required"), http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}

func writeBearerChallenge(w http.ResponseWriter, oerr *oauth2.Error) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+string(oerr.Code)+`"`)
	writeOAuthError(w, oerr, http.StatusUnauthorized)
}

// internalError logs and captures err and answers with a static server_error.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	captureError(r, err)
	writeOAuthError(w, oauth2.ServerError(), http.StatusInternalServerError)
}
