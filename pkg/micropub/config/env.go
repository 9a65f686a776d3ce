package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	s3storage "github.com/tendant/simple-micropub/pkg/micropub/storage/s3"
)

// envConfig is read with cleanenv. Unset variables leave earlier settings alone.
type envConfig struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"`
	BaseURL     string `env:"BASE_URL"`

	// DATABASE_URL: "memory", "postgres://...", "postgresql://..." or "sqlite://path/to/posts.db"
	DatabaseURL string `env:"DATABASE_URL"`

	// STORAGE_URL: "memory://", "file:///path/to/media" or "s3://bucket?region=us-east-1"
	StorageURL        string `env:"STORAGE_URL"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3Endpoint        string `env:"S3_ENDPOINT"`

	TokenEndpoint string `env:"MICROPUB_TOKEN_ENDPOINT"`
	Me            string `env:"MICROPUB_ME"`
	JWTSecret     string `env:"MICROPUB_JWT_SECRET"`
	StaticToken   string `env:"MICROPUB_STATIC_TOKEN"`
	StaticMe      string `env:"MICROPUB_STATIC_ME"`
	StaticScope   string `env:"MICROPUB_STATIC_SCOPE"`

	UpdateScope string `env:"MICROPUB_UPDATE_SCOPE"`
	DeleteScope string `env:"MICROPUB_DELETE_SCOPE"`
	MediaScope  string `env:"MICROPUB_MEDIA_SCOPE"`

	MaxMemory    int64         `env:"MICROPUB_MAX_MEMORY"`
	MaxFileSize  int64         `env:"MICROPUB_MAX_FILE_SIZE"`
	MaxBodyBytes int64         `env:"MICROPUB_MAX_BODY_BYTES"`
	Timeout      time.Duration `env:"MICROPUB_TIMEOUT"`

	CORSOrigins []string `env:"MICROPUB_CORS_ORIGINS" env-separator:","`
	Metrics     string   `env:"MICROPUB_METRICS"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`
}

// WithEnv applies environment variable overrides.
//
// Server:
//
//	PORT, ENVIRONMENT, BASE_URL
//
// Database:
//
//	DATABASE_URL - "memory" (default), "postgres://..." or "sqlite://path/to/posts.db"
//
// Storage:
//
//	STORAGE_URL - "memory://" (default), "file:///path/to/media" or
//	              "s3://bucket?region=us-east-1&path_style=true&prefix=media"
//	S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_ENDPOINT
//
// Tokens (at least one source):
//
//	MICROPUB_TOKEN_ENDPOINT, MICROPUB_ME
//	MICROPUB_JWT_SECRET
//	MICROPUB_STATIC_TOKEN, MICROPUB_STATIC_ME, MICROPUB_STATIC_SCOPE
//
// Scopes and limits:
//
//	MICROPUB_UPDATE_SCOPE, MICROPUB_DELETE_SCOPE, MICROPUB_MEDIA_SCOPE
//	MICROPUB_MAX_MEMORY, MICROPUB_MAX_FILE_SIZE, MICROPUB_MAX_BODY_BYTES, MICROPUB_TIMEOUT
//	MICROPUB_CORS_ORIGINS, MICROPUB_METRICS, LOG_LEVEL, LOG_FORMAT
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return env.apply(c)
	}
}

func (e *envConfig) apply(c *ServerConfig) error {
	setString(&c.Port, e.Port)
	setString(&c.Environment, e.Environment)
	if e.BaseURL != "" {
		c.BaseURL = strings.TrimRight(e.BaseURL, "/")
	}

	if e.DatabaseURL != "" {
		if err := applyDatabaseURL(e.DatabaseURL, c); err != nil {
			return err
		}
	}
	if e.StorageURL != "" {
		if err := applyStorageURL(e.StorageURL, c); err != nil {
			return err
		}
	}
	if c.Storage.Type == "s3" {
		setString(&c.Storage.S3.AccessKeyID, e.S3AccessKeyID)
		setString(&c.Storage.S3.SecretAccessKey, e.S3SecretAccessKey)
		setString(&c.Storage.S3.Endpoint, e.S3Endpoint)
	}

	setString(&c.Auth.TokenEndpoint, e.TokenEndpoint)
	setString(&c.Auth.Me, e.Me)
	setString(&c.Auth.JWTSecret, e.JWTSecret)
	if e.StaticToken != "" {
		token := StaticToken{
			Token:    e.StaticToken,
			Me:       e.StaticMe,
			ClientID: "static",
			Scope:    e.StaticScope,
		}
		if token.Me == "" {
			token.Me = c.BaseURL + "/"
		}
		if token.Scope == "" {
			token.Scope = "create update delete media"
		}
		c.Auth.StaticTokens = append(c.Auth.StaticTokens, token)
	}

	setString(&c.UpdateScope, e.UpdateScope)
	setString(&c.DeleteScope, e.DeleteScope)
	setString(&c.MediaScope, e.MediaScope)

	setInt64(&c.MaxMemory, e.MaxMemory)
	setInt64(&c.MaxFileSize, e.MaxFileSize)
	setInt64(&c.MaxBodyBytes, e.MaxBodyBytes)
	if e.Timeout > 0 {
		c.Timeout = e.Timeout
	}

	if len(e.CORSOrigins) > 0 {
		c.CORSOrigins = e.CORSOrigins
	}
	if e.Metrics != "" {
		enabled, err := strconv.ParseBool(e.Metrics)
		if err != nil {
			return fmt.Errorf("invalid MICROPUB_METRICS value %q: %w", e.Metrics, err)
		}
		c.Metrics = enabled
	}

	setString(&c.LogLevel, e.LogLevel)
	setString(&c.LogFormat, e.LogFormat)
	return nil
}

// applyDatabaseURL detects the repository type from the URL scheme
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = "sqlite"
		c.DatabaseURL = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// applyStorageURL configures media storage from a URL
func applyStorageURL(storageURL string, c *ServerConfig) error {
	switch {
	case storageURL == "memory" || storageURL == "memory://":
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	case strings.HasPrefix(storageURL, "file://"):
		path := strings.TrimPrefix(storageURL, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: path}
		return nil
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3Storage(storageURL, c)
	}
	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyS3Storage parses s3://bucket?region=...&endpoint=...&path_style=true&prefix=...&create_bucket=true
func applyS3Storage(storageURL string, c *ServerConfig) error {
	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("bucket name cannot be empty in STORAGE_URL")
	}

	q := u.Query()
	cfg := s3storage.Config{
		Bucket:    u.Host,
		Region:    q.Get("region"),
		Endpoint:  q.Get("endpoint"),
		KeyPrefix: strings.Trim(q.Get("prefix"), "/"),
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if v := q.Get("path_style"); v != "" {
		if cfg.UsePathStyle, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
	}
	if v := q.Get("create_bucket"); v != "" {
		if cfg.CreateBucketIfNotExist, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid create_bucket in STORAGE_URL: %w", err)
		}
	}

	c.Storage = StorageConfig{Type: "s3", S3: cfg}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}
