// Package config defines the feed service's configuration, loaded in two
// stages: the yaml file supplies the static shape, then environment
// variables supply secrets and deployment overrides.
package config

import (
	"errors"
	"os"
)

// --- YAML-Specific Structs ---

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// YamlConfig defines the structure for unmarshaling the embedded config.yaml file.
type YamlConfig struct {
	RunMode              string         `yaml:"run_mode"`
	APIPort              string         `yaml:"api_port"`
	WebSocketPort        string         `yaml:"websocket_port"`
	PublicBaseURL        string         `yaml:"public_base_url"`
	ImageDir             string         `yaml:"image_dir"`
	FeedPageSize         int            `yaml:"feed_page_size"`
	TokenTTLMinutes      int            `yaml:"token_ttl_minutes"`
	VerifyTimeoutSeconds int            `yaml:"verify_timeout_seconds"`
	Cors                 YamlCorsConfig `yaml:"cors"`
}

// AppConfig is the canonical, validated configuration object used throughout
// the application. JWTSecret and DatabaseURL never appear in yaml; they come
// from the environment only.
type AppConfig struct {
	RunMode              string
	APIPort              string
	WebSocketPort        string
	PublicBaseURL        string
	ImageDir             string
	FeedPageSize         int
	TokenTTLMinutes      int
	VerifyTimeoutSeconds int
	Cors                 YamlCorsConfig

	JWTSecret   string
	DatabaseURL string
}

// NewConfigFromYaml converts the raw unmarshaled data into a base AppConfig,
// filling in defaults for anything the file leaves unset.
func NewConfigFromYaml(yamlCfg *YamlConfig) (*AppConfig, error) {
	cfg := &AppConfig{
		RunMode:              yamlCfg.RunMode,
		APIPort:              yamlCfg.APIPort,
		WebSocketPort:        yamlCfg.WebSocketPort,
		PublicBaseURL:        yamlCfg.PublicBaseURL,
		ImageDir:             yamlCfg.ImageDir,
		FeedPageSize:         yamlCfg.FeedPageSize,
		TokenTTLMinutes:      yamlCfg.TokenTTLMinutes,
		VerifyTimeoutSeconds: yamlCfg.VerifyTimeoutSeconds,
		Cors:                 yamlCfg.Cors,
	}

	if cfg.APIPort == "" {
		cfg.APIPort = "8080"
	}
	if cfg.WebSocketPort == "" {
		cfg.WebSocketPort = "8081"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + cfg.APIPort
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = "images"
	}
	if cfg.FeedPageSize < 1 {
		cfg.FeedPageSize = 2
	}
	if cfg.TokenTTLMinutes < 1 {
		cfg.TokenTTLMinutes = 60
	}
	if cfg.VerifyTimeoutSeconds < 1 {
		cfg.VerifyTimeoutSeconds = 5
	}

	return cfg, nil
}

// ApplyEnvOverrides fills the secret fields from the environment and lets a
// deployment override the listen ports. JWT_SECRET is always required;
// DATABASE_URL is required unless running in 'local' mode with fakes.
func (c *AppConfig) ApplyEnvOverrides() error {
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}

	c.DatabaseURL = os.Getenv("DATABASE_URL")
	if c.DatabaseURL == "" && c.RunMode != "local" {
		return errors.New("config: DATABASE_URL must be set")
	}

	if port := os.Getenv("API_PORT"); port != "" {
		c.APIPort = port
	}
	if port := os.Getenv("WEBSOCKET_PORT"); port != "" {
		c.WebSocketPort = port
	}
	if base := os.Getenv("PUBLIC_BASE_URL"); base != "" {
		c.PublicBaseURL = base
	}
	return nil
}
