package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/sessions"
	"github.com/pkg/errors"
)

type revokedResponse struct {
	Revoked int `json:"revoked"`
}

// ListSessions lists the bearer's active sessions, marking the calling one.
func (s *Server) ListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		introspection, _ := IntrospectionFromContext(r.Context())

		list, err := s.Sessions.List(r.Context(), introspection.Subject, introspection.TokenID)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		if list == nil {
			list = []sessions.Session{}
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, list)
	}
}

// RevokeDevice ends the bearer's session on one device.
func (s *Server) RevokeDevice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		introspection, _ := IntrospectionFromContext(r.Context())

		device := strings.TrimSpace(r.PathValue("deviceId"))
		if device == "" {
			writeOAuthError(w, oauth2.InvalidRequest("device id is required"), http.StatusBadRequest)
			return
		}

		n, err := s.Sessions.RevokeDevice(r.Context(), introspection.Subject, sessions.DeviceID(device))
		if err != nil {
			if errors.Is(err, sessions.ErrNoSession) {
				writeOAuthError(w, oauth2.NotFound("no active session for this device"), http.StatusNotFound)
				return
			}
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
	}
}

// RevokeOtherSessions ends every session except the calling device's.
func (s *Server) RevokeOtherSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		introspection, _ := IntrospectionFromContext(r.Context())

		current := sessions.DeviceID(introspection.DeviceID)
		if current == "" {
			current = sessions.ResolveDeviceID(r.Header)
		}

		n, err := s.Sessions.RevokeOthers(r.Context(), introspection.Subject, current)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
	}
}

// RevokeAllSessions signs the bearer out everywhere, including tokens not yet
// seen by the store.
func (s *Server) RevokeAllSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		introspection, _ := IntrospectionFromContext(r.Context())

		n, err := s.Sessions.RevokeAll(r.Context(), introspection.Subject)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, revokedResponse{Revoked: n})
	}
}
