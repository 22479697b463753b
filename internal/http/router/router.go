package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gamelog-backend/internal/http/handler"
	"gamelog-backend/internal/http/middleware"
	"gamelog-backend/internal/http/response"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/security"
)

type Dependencies struct {
	AuthHandler  *handler.AuthHandler
	UserHandler  *handler.UserHandler
	AdminHandler *handler.AdminHandler

	TokenCodec  *security.TokenCodec
	Revocations middleware.RevocationChecker
	Users       repository.UserRepository

	CORSOrigins      []string
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	// Optional overrides, wired when Redis is configured so limits are
	// shared across instances.
	GlobalRateLimiter func(http.Handler) http.Handler
	AuthRateLimiter   func(http.Handler) http.Handler

	Readiness      func(r *http.Request) error
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	gate := middleware.Authenticate(dep.TokenCodec, dep.Revocations, dep.Users)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness != nil {
			if err := dep.Readiness(r); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", nil)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Get("/google/login", dep.AuthHandler.GoogleLogin)
			r.With(authLimiter).Get("/google/callback", dep.AuthHandler.GoogleCallback)
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			// The refresh cookie is path-scoped to exactly this route.
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
		})

		r.With(gate).Get("/me", dep.UserHandler.Me)

		r.Route("/admin", func(r chi.Router) {
			r.Use(gate)
			r.Use(middleware.RequireAdmin)
			r.Post("/accounts/unlock", dep.AdminHandler.UnlockAccount)
			r.Get("/accounts/lockout-status", dep.AdminHandler.LockoutStatus)
			r.Post("/tokens/revoke-all", dep.AdminHandler.RevokeAllTokens)
			r.Post("/tokens/cleanup", dep.AdminHandler.CleanupLedger)
			r.Get("/stats", dep.AdminHandler.Stats)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
