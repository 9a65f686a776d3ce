// Package config assembles a runnable micropub server from options,
// environment variables and an optional YAML or JSON file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-micropub/pkg/micropub"
	s3storage "github.com/tendant/simple-micropub/pkg/micropub/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		BaseURL:      "http://localhost:8080",
		DatabaseType: "memory",
		Storage:      StorageConfig{Type: "memory"},
		MaxMemory:    32 << 20,
		MaxFileSize:  20 << 20,
		MaxBodyBytes: 64 << 20,
		Timeout:      60 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// ServerConfig represents server configuration for the micropub service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// BaseURL is the public origin. Posts live under BaseURL/posts and
	// media under BaseURL/media.
	BaseURL string

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "sqlite"

	Storage StorageConfig
	Auth    AuthConfig

	// Scopes a token must carry per action. Empty means any valid token.
	// Create always requires "create".
	UpdateScope string
	DeleteScope string
	MediaScope  string

	// Upload and body limits in bytes
	MaxMemory    int64
	MaxFileSize  int64
	MaxBodyBytes int64
	Timeout      time.Duration

	CORSOrigins []string
	Metrics     bool

	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	// Endpoint is the host configuration reported by q=config
	Endpoint micropub.EndpointConfig
}

// StorageConfig selects where media uploads go
type StorageConfig struct {
	Type    string // "memory", "fs", "s3"
	BaseDir string
	S3      s3storage.Config
}

// AuthConfig lists the token sources. Several may be combined.
type AuthConfig struct {
	TokenEndpoint string        // IndieAuth token endpoint
	Me            string        // only accept tokens for this profile URL
	JWTSecret     string        // HS256 shared secret
	StaticTokens  []StaticToken // fixed development tokens
}

// StaticToken is a fixed token with its identity
type StaticToken struct {
	Token    string `yaml:"token" json:"token"`
	Me       string `yaml:"me" json:"me"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Scope    string `yaml:"scope" json:"scope"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", c.BaseURL)
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres", "sqlite":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'sqlite'")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("filesystem storage requires a base directory")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("s3 storage requires a bucket")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Auth.TokenEndpoint == "" && c.Auth.JWTSecret == "" && len(c.Auth.StaticTokens) == 0 {
		return errors.New("no token verifier configured: set a token endpoint, a jwt secret or a static token")
	}
	for _, t := range c.Auth.StaticTokens {
		if t.Token == "" || t.Me == "" {
			return errors.New("static tokens need both token and me")
		}
	}

	if c.MaxFileSize < 0 || c.MaxMemory < 0 || c.MaxBodyBytes < 0 {
		return errors.New("size limits cannot be negative")
	}

	return nil
}

// PostsURL is the URL prefix of published posts
func (c *ServerConfig) PostsURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/posts"
}

// MediaURL is the URL prefix of stored media
func (c *ServerConfig) MediaURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/media"
}

// MediaEndpointURL is the media endpoint advertised by q=config
func (c *ServerConfig) MediaEndpointURL() string {
	if c.Endpoint.MediaEndpoint != "" {
		return c.Endpoint.MediaEndpoint
	}
	return strings.TrimRight(c.BaseURL, "/") + "/micropub/media"
}
