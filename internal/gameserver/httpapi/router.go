// Package httpapi is the presentation and admin surface of the arena: a
// JSON view of the latest snapshot and the message log, plus the
// operator actions (spawn bot, remove entity, reset, regenerate map).
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/observability"
)

// Game is the part of the simulation loop the API needs.
type Game interface {
	Snapshot() *arena.Snapshot
	Do(ctx context.Context, fn func(*arena.Simulation) error) error
}

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	// Game is required.
	Game Game
	// Log is required.
	Log    *messages.Log
	Logger *zap.Logger
	// CORSOrigins defaults to local origins when nil.
	CORSOrigins []string
	// RequestTimeout bounds operator actions waiting on the tick loop.
	RequestTimeout time.Duration
}

type routerHandlers struct {
	game    Game
	log     *messages.Log
	logger  *zap.Logger
	timeout time.Duration
}

// NewRouter builds the HTTP router. It starts no goroutines and opens no
// listeners, so tests can mount it on httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	h := &routerHandlers{
		game:    cfg.Game,
		log:     cfg.Log,
		logger:  cfg.Logger,
		timeout: cfg.RequestTimeout,
	}

	r.Get("/health", h.handleHealth)
	r.Get("/state", h.handleGetState)
	r.Get("/messages", h.handleGetMessages)
	r.Post("/bots", h.handleAddBot)
	r.Delete("/entities/{name}", h.handleRemoveEntity)
	r.Post("/reset", h.handleReset)
	r.Post("/generate-map", h.handleGenerateMap)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
