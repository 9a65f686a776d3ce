package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-micropub/pkg/micropub"
	"github.com/tendant/simple-micropub/pkg/micropub/api"
	"github.com/tendant/simple-micropub/pkg/micropub/auth"
	fsstorage "github.com/tendant/simple-micropub/pkg/micropub/storage/fs"
	memorystorage "github.com/tendant/simple-micropub/pkg/micropub/storage/memory"
	s3storage "github.com/tendant/simple-micropub/pkg/micropub/storage/s3"
	"github.com/tendant/simple-micropub/pkg/micropub/store"
	"github.com/tendant/simple-micropub/pkg/micropub/store/memory"
	"github.com/tendant/simple-micropub/pkg/micropub/store/postgres"
	"github.com/tendant/simple-micropub/pkg/micropub/store/sqlite"
)

// MediaBackend stores uploads and serves them back
type MediaBackend interface {
	micropub.MediaStore
	micropub.MediaReader
}

// Server is everything Build wires together
type Server struct {
	Router   http.Handler
	Endpoint *micropub.Endpoint
	Media    *micropub.MediaEndpoint
	Posts    *store.Service
	Metrics  *api.Metrics

	closers []func() error
}

// Close releases database handles
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewLogger returns a slog logger honouring LogLevel and LogFormat
func (c *ServerConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Build creates the repository, media backend, verifier and endpoints and
// mounts them on a router
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{}

	verifier, err := c.BuildVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to build token verifier: %w", err)
	}

	repo, closeRepo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if closeRepo != nil {
		srv.closers = append(srv.closers, closeRepo)
	}

	backend, err := c.BuildMediaBackend()
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to build media storage: %w", err)
	}
	resolver := &micropub.MediaResolver{Backend: backend, RootURL: c.MediaURL()}

	srv.Posts, err = store.New(repo, c.PostsURL(),
		store.WithMediaResolver(resolver),
		store.WithLogger(logger.With("component", "store")),
	)
	if err != nil {
		srv.Close()
		return nil, err
	}

	limits := micropub.NormalizeOptions{MaxMemory: c.MaxMemory, MaxFileSize: c.MaxFileSize}

	endpointCfg := c.Endpoint
	endpointCfg.MediaEndpoint = c.MediaEndpointURL()

	endpointOpts := []micropub.Option{
		micropub.WithConfig(endpointCfg),
		micropub.WithTokenVerifier(verifier),
		micropub.WithHooks(srv.Posts.Hooks()),
		micropub.WithPageResolver(srv.Posts),
		micropub.WithLogger(logger.With("component", "micropub")),
		micropub.WithNormalizeOptions(limits),
		micropub.WithRequiredScope(micropub.ActionUpdate, c.UpdateScope),
		micropub.WithRequiredScope(micropub.ActionDelete, c.DeleteScope),
	}
	mediaOpts := []micropub.MediaOption{
		micropub.WithMediaLogger(logger.With("component", "media")),
		micropub.WithMediaScope(c.MediaScope),
		micropub.WithUploadLimits(limits),
	}
	if c.Metrics {
		srv.Metrics = api.NewMetrics()
		endpointOpts = append(endpointOpts, micropub.WithObserver(srv.Metrics))
		mediaOpts = append(mediaOpts, micropub.WithMediaObserver(srv.Metrics))
	}

	if srv.Endpoint, err = micropub.New(endpointOpts...); err != nil {
		srv.Close()
		return nil, err
	}
	if srv.Media, err = micropub.NewMediaEndpoint(resolver, verifier, mediaOpts...); err != nil {
		srv.Close()
		return nil, err
	}

	srv.Router = api.NewRouter(api.RouterConfig{
		Endpoint:     srv.Endpoint,
		Media:        srv.Media,
		Files:        backend,
		Posts:        srv.Posts,
		Metrics:      srv.Metrics,
		Logger:       logger,
		CORSOrigins:  c.CORSOrigins,
		MaxBodyBytes: c.MaxBodyBytes,
		Timeout:      c.Timeout,
	})
	return srv, nil
}

// BuildVerifier combines every configured token source
func (c *ServerConfig) BuildVerifier() (micropub.TokenVerifier, error) {
	var chain auth.Chain

	if len(c.Auth.StaticTokens) > 0 {
		static := auth.NewStaticVerifier()
		for _, t := range c.Auth.StaticTokens {
			static.Add(t.Token, micropub.AuthContext{
				Me:       t.Me,
				ClientID: t.ClientID,
				Scopes:   micropub.ParseScopes(t.Scope),
			})
		}
		chain = append(chain, static)
	}
	if c.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier(c.Auth.JWTSecret)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if c.Auth.TokenEndpoint != "" {
		v, err := auth.NewTokenEndpointVerifier(auth.TokenEndpointConfig{
			Endpoint: c.Auth.TokenEndpoint,
			Me:       c.Auth.Me,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}

	switch len(chain) {
	case 0:
		return nil, errors.New("no token verifier configured")
	case 1:
		return chain[0], nil
	}
	return chain, nil
}

// BuildRepository opens the post repository. The returned func closes it
// and may be nil.
func (c *ServerConfig) BuildRepository(ctx context.Context) (store.Repository, func() error, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil, nil
	case "sqlite":
		repo, err := sqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		repo := postgres.NewWithPool(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, func() error { pool.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildMediaBackend creates the configured media storage
func (c *ServerConfig) BuildMediaBackend() (MediaBackend, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		backend, err := fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "s3":
		backend, err := s3storage.New(c.Storage.S3)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}
