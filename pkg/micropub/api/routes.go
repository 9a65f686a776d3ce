// Package api wires the micropub endpoints into a chi router with the
// middleware, metrics and read-only views a deployment needs.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
)

// Route paths
const (
	MicropubPath = "/micropub"
	MediaPath    = "/micropub/media"
	FilesPath    = "/media"
	PostsPath    = "/posts"
	MetricsPath  = "/metrics"
	HealthPath   = "/health"
)

// RouterConfig lists what the router mounts. Nil handlers are not mounted.
type RouterConfig struct {
	Endpoint http.Handler
	Media    http.Handler
	Files    micropub.MediaReader
	Posts    *store.Service
	Metrics  *Metrics
	Logger   *slog.Logger

	CORSOrigins  []string
	MaxBodyBytes int64
	Timeout      time.Duration
}

// NewRouter builds the HTTP surface
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(CORSMiddleware(cfg.CORSOrigins))
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}

	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	if cfg.Endpoint != nil {
		r.With(RequestSizeLimitMiddleware(cfg.MaxBodyBytes)).Handle(MicropubPath, cfg.Endpoint)
	}
	if cfg.Media != nil {
		r.With(RequestSizeLimitMiddleware(cfg.MaxBodyBytes)).Handle(MediaPath, cfg.Media)
	}
	if cfg.Files != nil {
		r.Mount(FilesPath, NewFilesHandler(cfg.Files, logger).Routes())
	}
	if cfg.Posts != nil {
		r.Mount(PostsPath, NewPostsHandler(cfg.Posts, logger).Routes())
	}
	if cfg.Metrics != nil {
		r.Handle(MetricsPath, cfg.Metrics.Handler())
	}

	return r
}
