package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tribhuwan-kumar/silly/internal/auth"
	"github.com/tribhuwan-kumar/silly/internal/bridge"
	"github.com/tribhuwan-kumar/silly/internal/history"
)

// RouterConfig holds all dependencies needed to build the HTTP router. It
// is populated in main.go after all components are initialized and passed
// to NewRouter as a single struct to keep the constructor signature
// manageable as the number of dependencies grows.
type RouterConfig struct {
	Bridge     *bridge.Bridge
	Store      *history.Store
	HistoryHub *HistoryHub
	JWTManager *auth.JWTManager
	Logger     *zap.Logger
}

// NewRouter builds and returns the fully configured Chi router. Route
// layout follows original_source/silly's api.rs routes(): the aria2
// surface under /api/aria2 (auth-guarded), the history surface nested
// under /api/auth/user/dl, and three websockets under /api/ws. The
// embedded static-asset UI, CLI flag parsing, and the authentication
// subsystem's own login/registration endpoints are out of scope (spec §1)
// — this router only consumes an already-authenticated identity.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// RequestID generates a unique ID for each request, used in logs and
	// response headers for tracing.
	r.Use(middleware.RequestID)

	// RealIP extracts the real client IP from X-Forwarded-For or X-Real-IP
	// headers when the server runs behind a reverse proxy.
	r.Use(middleware.RealIP)

	// RequestLogger logs every request with method, path, status and latency.
	r.Use(RequestLogger(cfg.Logger))

	// Recoverer catches panics in handlers, logs them, and returns a 500
	// instead of crashing the server.
	r.Use(middleware.Recoverer)

	// PermissiveCORS matches original_source/silly's CorsLayer::permissive()
	// (spec MODULE ADDITIONS).
	r.Use(PermissiveCORS)

	aria2Handlers := NewAria2Handlers(cfg.Bridge, cfg.Store, cfg.Logger)
	historyHandlers := NewHistoryHandlers(cfg.Store, cfg.Bridge, cfg.Logger)
	wsHandlers := NewWSHandlers(cfg.Bridge, cfg.HistoryHub, cfg.Logger)

	r.Route("/api/aria2", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTManager))

		r.Post("/add", aria2Handlers.AddURIs)
		r.Post("/add/torrent", aria2Handlers.AddTorrent)
		r.Post("/add/torrents", aria2Handlers.AddTorrents)
		r.Post("/pause", aria2Handlers.Pause)
		r.Post("/resume", aria2Handlers.Resume)
		r.Post("/remove", aria2Handlers.Remove)
		r.Post("/details", aria2Handlers.Details)
		r.Post("/purge", aria2Handlers.Purge)
		r.Post("/move", aria2Handlers.Move)
		r.Post("/global", aria2Handlers.ChangeGlobalOption)
	})

	r.Route("/api/auth/user/dl/history", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTManager))

		r.Get("/", historyHandlers.GetHistory)
		r.Delete("/delete", historyHandlers.DeleteHistory)
		r.Delete("/purge", historyHandlers.DeleteHistory)
	})

	// Websockets. Status and Event are unauthenticated in
	// original_source/silly (neither carries user-scoped data); History
	// requires identity to filter messages to the caller's own downloads.
	r.Get("/api/ws/silly/status", wsHandlers.Status)
	r.Get("/api/ws/event", wsHandlers.Event)
	r.With(Authenticate(cfg.JWTManager)).Get("/api/ws/dl/history", wsHandlers.History)

	return r
}
