package server

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"sort"
	"time"

	"github.com/jrsteele09/go-token-authority/oauth2"
)

const (
	maxPasswordBodyBytes = 4 << 10
	healthCheckTimeout   = 2 * time.Second
)

type validatePasswordRequest struct {
	Password string `json:"password"`
}

// ValidatePasswordHandler checks a candidate password against the policy. It
// accepts a JSON body or a form with a password (or new_password) field.
func (s *Server) ValidatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxPasswordBodyBytes)

		var password string
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/json" {
			var req validatePasswordRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeOAuthError(w, oauth2.InvalidRequest("malformed JSON body"), http.StatusBadRequest)
				return
			}
			password = req.Password
		} else {
			if err := r.ParseForm(); err != nil {
				writeOAuthError(w, oauth2.InvalidRequest("malformed form body"), http.StatusBadRequest)
				return
			}
			password = r.PostForm.Get("password")
			if password == "" {
				password = r.PostForm.Get("new_password")
			}
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, s.Passwords.Validate(password))
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs the configured dependency checks. Any failure answers 503.
func (s *Server) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK

		names := make([]string, 0, len(s.HealthChecks))
		for name := range s.HealthChecks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(names))
			}
			if err := s.HealthChecks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
