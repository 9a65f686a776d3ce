package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/simple-micropub/pkg/micropub"
)

// fileConfig is the layout of a YAML or JSON configuration file
type fileConfig struct {
	Port         string                  `yaml:"port" json:"port"`
	BaseURL      string                  `yaml:"base_url" json:"base_url"`
	DatabaseURL  string                  `yaml:"database_url" json:"database_url"`
	StorageURL   string                  `yaml:"storage_url" json:"storage_url"`
	Auth         fileAuth                `yaml:"auth" json:"auth"`
	Scopes       fileScopes              `yaml:"scopes" json:"scopes"`
	CORSOrigins  []string                `yaml:"cors_origins" json:"cors_origins"`
	Metrics      *bool                   `yaml:"metrics" json:"metrics"`
	MaxFileSize  int64                   `yaml:"max_file_size" json:"max_file_size"`
	MaxBodyBytes int64                   `yaml:"max_body_bytes" json:"max_body_bytes"`
	Micropub     micropub.EndpointConfig `yaml:"micropub" json:"micropub"`
}

type fileAuth struct {
	TokenEndpoint string        `yaml:"token_endpoint" json:"token_endpoint"`
	Me            string        `yaml:"me" json:"me"`
	JWTSecret     string        `yaml:"jwt_secret" json:"jwt_secret"`
	Tokens        []StaticToken `yaml:"tokens" json:"tokens"`
}

type fileScopes struct {
	Update string `yaml:"update" json:"update"`
	Delete string `yaml:"delete" json:"delete"`
	Media  string `yaml:"media" json:"media"`
}

// WithFile applies settings from a .yaml, .yml or .json file. The micropub
// section becomes the host configuration reported by q=config.
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return nil
		}

		var fc fileConfig
		if err := cleanenv.ReadConfig(path, &fc); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		setString(&c.Port, fc.Port)
		if fc.BaseURL != "" {
			c.BaseURL = strings.TrimRight(fc.BaseURL, "/")
		}
		if fc.DatabaseURL != "" {
			if err := applyDatabaseURL(fc.DatabaseURL, c); err != nil {
				return err
			}
		}
		if fc.StorageURL != "" {
			if err := applyStorageURL(fc.StorageURL, c); err != nil {
				return err
			}
		}

		setString(&c.Auth.TokenEndpoint, fc.Auth.TokenEndpoint)
		setString(&c.Auth.Me, fc.Auth.Me)
		setString(&c.Auth.JWTSecret, fc.Auth.JWTSecret)
		c.Auth.StaticTokens = append(c.Auth.StaticTokens, fc.Auth.Tokens...)

		setString(&c.UpdateScope, fc.Scopes.Update)
		setString(&c.DeleteScope, fc.Scopes.Delete)
		setString(&c.MediaScope, fc.Scopes.Media)

		if len(fc.CORSOrigins) > 0 {
			c.CORSOrigins = fc.CORSOrigins
		}
		if fc.Metrics != nil {
			c.Metrics = *fc.Metrics
		}
		setInt64(&c.MaxFileSize, fc.MaxFileSize)
		setInt64(&c.MaxBodyBytes, fc.MaxBodyBytes)

		c.Endpoint = fc.Micropub
		return nil
	}
}
