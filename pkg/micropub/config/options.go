package config

import (
	"fmt"
	"strings"

	"github.com/tendant/simple-micropub/pkg/micropub"
	s3storage "github.com/tendant/simple-micropub/pkg/micropub/storage/s3"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithBaseURL sets the public origin
func WithBaseURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		if baseURL == "" {
			return fmt.Errorf("base url cannot be empty")
		}
		c.BaseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithDatabase configures the post repository
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
			url = ""
		case "postgres", "sqlite":
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithMemoryStorage keeps media in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: "memory"}
		return nil
	}
}

// WithFilesystemStorage stores media under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: "fs", BaseDir: baseDir}
		return nil
	}
}

// WithS3Storage stores media in an S3 bucket
func WithS3Storage(cfg s3storage.Config) Option {
	return func(c *ServerConfig) error {
		if cfg.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		c.Storage = StorageConfig{Type: "s3", S3: cfg}
		return nil
	}
}

// WithTokenEndpoint verifies tokens against an IndieAuth token endpoint,
// optionally restricted to tokens issued for me
func WithTokenEndpoint(endpoint, me string) Option {
	return func(c *ServerConfig) error {
		c.Auth.TokenEndpoint = endpoint
		c.Auth.Me = me
		return nil
	}
}

// WithJWTSecret accepts HS256 tokens signed with secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.Auth.JWTSecret = secret
		return nil
	}
}

// WithStaticToken accepts a fixed token
func WithStaticToken(t StaticToken) Option {
	return func(c *ServerConfig) error {
		if t.Token == "" || t.Me == "" {
			return fmt.Errorf("static token needs both token and me")
		}
		c.Auth.StaticTokens = append(c.Auth.StaticTokens, t)
		return nil
	}
}

// WithScopes sets the scope required for update, delete and media uploads.
// An empty scope disables the check for that action.
func WithScopes(update, del, media string) Option {
	return func(c *ServerConfig) error {
		c.UpdateScope = update
		c.DeleteScope = del
		c.MediaScope = media
		return nil
	}
}

// WithUploadLimits sets the multipart memory, per-file and request body limits
func WithUploadLimits(maxMemory, maxFileSize, maxBodyBytes int64) Option {
	return func(c *ServerConfig) error {
		c.MaxMemory = maxMemory
		c.MaxFileSize = maxFileSize
		c.MaxBodyBytes = maxBodyBytes
		return nil
	}
}

// WithEndpointConfig sets the host configuration reported by q=config
func WithEndpointConfig(ec micropub.EndpointConfig) Option {
	return func(c *ServerConfig) error {
		c.Endpoint = ec
		return nil
	}
}

// WithMetrics toggles the /metrics endpoint
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.Metrics = enabled
		return nil
	}
}
