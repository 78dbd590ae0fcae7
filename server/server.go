package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-authority/auth"
	"github.com/jrsteele09/go-token-authority/clients"
	"github.com/jrsteele09/go-token-authority/internal/config"
	"github.com/jrsteele09/go-token-authority/internal/metrics"
	"github.com/jrsteele09/go-token-authority/lockout"
	"github.com/jrsteele09/go-token-authority/passwordpolicy"
	"github.com/jrsteele09/go-token-authority/sessions"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Services are the collaborators the HTTP surface delegates to.
type Services struct {
	Clients    clients.Repo
	Users      users.Directory
	Tokens     *token.Manager
	Dispatcher *auth.Dispatcher
	Authorizer *auth.AuthorizationService
	Sessions   *sessions.Registry
	Lockout    *lockout.Guard
	Passwords  *passwordpolicy.Validator
	Metrics    *metrics.Metrics

	// HealthChecks are run by GET /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

func (s Services) validate() error {
	switch {
	case s.Clients == nil:
		return errors.New("client repo is required")
	case s.Users == nil:
		return errors.New("user directory is required")
	case s.Tokens == nil:
		return errors.New("token manager is required")
	case s.Dispatcher == nil:
		return errors.New("grant dispatcher is required")
	case s.Authorizer == nil:
		return errors.New("authorization service is required")
	case s.Sessions == nil:
		return errors.New("session registry is required")
	case s.Lockout == nil:
		return errors.New("lockout guard is required")
	case s.Passwords == nil:
		return errors.New("password validator is required")
	}
	return nil
}

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	limiter *ipRateLimiter
	Services
}

func New(cfg config.Config, services Services) (*Server, error) {
	if err := services.validate(); err != nil {
		return nil, errors.Wrap(err, "[Server New]")
	}
	if services.Metrics == nil {
		services.Metrics = metrics.New()
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		limiter:  newIPRateLimiter(cfg.GetTokenRateLimit(), cfg.GetTokenRateBurst()),
		Services: services,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if !strings.EqualFold(s.env, "DEV") {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}
