package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"taskdeck/internal/domain"
)

// Config models taskdeck.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret    string `yaml:"jwt_secret"`
		TokenTTL     string `yaml:"token_ttl"`
		AllowAPIKeys bool   `yaml:"allow_api_keys"`
	} `yaml:"auth"`
	Audit struct {
		// ListLimit 0 defers to the audit package's built-in default.
		ListLimit int `yaml:"list_limit"`
	} `yaml:"audit"`
	Seed struct {
		Organization string     `yaml:"organization"`
		Users        []SeedUser `yaml:"users"`
	} `yaml:"seed"`
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
	Password string `yaml:"password"`
}

// TokenTTL parses the configured token lifetime, defaulting to 24h.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTL == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Audit.ListLimit < 0 {
		return fmt.Errorf("config.audit.list_limit must be >= 0")
	}
	if c.Auth.TokenTTL != "" {
		if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
			return fmt.Errorf("config.auth.token_ttl: %w", err)
		}
	}
	seen := map[string]bool{}
	for _, u := range c.Seed.Users {
		if u.Email == "" {
			return fmt.Errorf("config.seed.users contains empty email")
		}
		if seen[u.Email] {
			return fmt.Errorf("config.seed.users has duplicate email %s", u.Email)
		}
		seen[u.Email] = true
		switch u.Role {
		case domain.RoleViewer, domain.RoleAdmin, domain.RoleOwner:
		default:
			return fmt.Errorf("seed user %s has unknown role %s", u.Email, u.Role)
		}
		if u.Password == "" {
			return fmt.Errorf("seed user %s has empty password", u.Email)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdeck.yml")
}

// Load reads and validates config from the workspace, falling back to
// defaults when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/v0"
	}
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  token_ttl: 24h
  allow_api_keys: true

audit:
  list_limit: 100

seed:
  organization: Seed Organization
  users:
    - email: owner@example.com
      role: owner
      password: Passw0rd!
    - email: admin@example.com
      role: admin
      password: Passw0rd!
    - email: viewer@example.com
      role: viewer
      password: Passw0rd!
`
