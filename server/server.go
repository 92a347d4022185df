// Package server exposes the HTTP API: health, readiness, metrics, read-only
// views of users and groups, and authenticated admin mutations that run on the
// permissions engine goroutine. Correlation IDs are injected into request
// contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/onnwee/modkeeper/permissions"
)

// Options wires the router to the rest of the service. DB and OAuth are
// optional; without them the OAuth endpoints answer 400.
type Options struct {
	Engine *permissions.Engine
	Store  Pinger
	DB     *sql.DB
	OAuth  *oauth2.Config
}

// NewRouter returns the HTTP handler with all routes.
// ctx bounds the rate limiter cleanup goroutine.
func NewRouter(ctx context.Context, opts Options) http.Handler {
	authCfg := loadAuthConfig()
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	h := NewHandlers(opts)

	r := chi.NewRouter()
	r.Use(withCORS(loadCORSConfig()))
	r.Use(withCorrelation)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	r.Get("/auth/twitch/start", h.HandleTwitchOAuthStart)
	r.Get("/auth/twitch/callback", h.HandleTwitchOAuthCallback)

	r.Get("/users", h.HandleUsers)
	r.Get("/users/{name}", h.HandleUser)
	r.Get("/groups", h.HandleGroups)
	r.Get("/mods", h.HandleMods)

	r.Group(func(admin chi.Router) {
		admin.Use(adminAuth(authCfg))
		admin.Use(limiter.middleware)
		admin.Put("/users/{name}/group", h.HandleSetGroup)
		admin.Put("/groups/{id}/points", h.HandleSetPoints)
	})
	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
