package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/perchmarket/perch/server/internal/audit"
	"github.com/perchmarket/perch/server/internal/auth"
	"github.com/perchmarket/perch/server/internal/crypto"
	"github.com/perchmarket/perch/server/internal/idp"
	"github.com/perchmarket/perch/server/internal/onboarding"
	"github.com/perchmarket/perch/server/internal/store"
)

// Service bundles the HTTP handlers for the auth and onboarding surface.
type Service struct {
	Auth       *AuthHandler
	Onboarding *OnboardingHandler
}

// Deps are the shared dependencies for the service.
type Deps struct {
	Store    *store.Store
	Provider *idp.Provider
	Sessions *auth.SessionManager
	Enc      *crypto.Encryptor
	Audit    *audit.Recorder
	Limiter  *auth.RateLimiter
	Logger   *slog.Logger
	StateTTL time.Duration
}

// NewService creates the service with all handlers wired.
func NewService(d Deps) *Service {
	return &Service{
		Auth:       NewAuthHandler(d.Store, d.Provider, d.Sessions, d.Enc, d.Audit, d.Limiter, d.Logger, d.StateTTL),
		Onboarding: NewOnboardingHandler(d.Store, d.Logger),
	}
}

// Register mounts the routes on mux. Auth endpoints are public; the
// onboarding submissions go through RequireSession.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/login", s.Auth.Login)
	mux.HandleFunc("GET /auth/callback", s.Auth.Callback)
	mux.HandleFunc("GET /auth/logout", s.Auth.Logout)
	mux.HandleFunc("GET /auth/session", s.Auth.Session)
	mux.HandleFunc("GET /auth/error", s.Auth.Error)

	mux.Handle("POST "+onboarding.RouteProfileSetup,
		s.Auth.RequireSession(http.HandlerFunc(s.Onboarding.SubmitProfile)))
	mux.Handle("POST "+onboarding.RouteRoleSetup,
		s.Auth.RequireSession(http.HandlerFunc(s.Onboarding.SubmitRole)))
}
