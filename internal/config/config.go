// Package config loads server configuration from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Security SecurityConfig `toml:"security"`
	IdP      IdPConfig      `toml:"idp"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds gRPC and metrics listener configuration.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	MetricsAddr     string   `toml:"metrics_addr"`
	TLSCert         string   `toml:"tls_cert"`
	TLSKey          string   `toml:"tls_key"`
	Reflection      bool     `toml:"reflection"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	EffectTimeout   Duration `toml:"effect_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int32  `toml:"max_conns"`
}

// SecurityConfig holds credential hashing settings.
type SecurityConfig struct {
	Pepper string `toml:"pepper"`
}

// IdPConfig holds identity-provider verification settings.
type IdPConfig struct {
	JWKSURL     string   `toml:"jwks_url"`
	Issuer      string   `toml:"issuer"`
	Audience    string   `toml:"audience"`
	AdminEmails []string `toml:"admin_emails"`
	KeyTTL      Duration `toml:"key_ttl"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a Go duration string ("15s", "1h").
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Load reads path (if non-empty), overlays BENCHBOARD_* environment variables and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.SetDefaults()
	return &cfg, nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// ApplyEnv overrides secrets and deployment-specific values from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Database.DSN, "BENCHBOARD_DSN")
	set(&c.Security.Pepper, "BENCHBOARD_PEPPER")
	set(&c.IdP.JWKSURL, "BENCHBOARD_IDP_JWKS_URL")
	set(&c.Log.Level, "BENCHBOARD_LOG_LEVEL")
	set(&c.Log.Format, "BENCHBOARD_LOG_FORMAT")
	if v := getenv("BENCHBOARD_ADMIN_EMAILS"); v != "" {
		c.IdP.AdminEmails = strings.Split(v, ",")
	}
}

// SetDefaults sets default values for config.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 5 * time.Second
	}
	if c.Server.EffectTimeout.Duration == 0 {
		c.Server.EffectTimeout.Duration = 5 * time.Second
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "postgres://postgres@localhost:5432/benchboard?sslmode=disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.IdP.KeyTTL.Duration == 0 {
		c.IdP.KeyTTL.Duration = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.Security.Pepper == "" {
		problems = append(problems, "security.pepper is required (BENCHBOARD_PEPPER)")
	}
	if len(c.Security.Pepper) > 64 {
		problems = append(problems, "security.pepper must not exceed 64 bytes")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		problems = append(problems, "server.tls_cert and server.tls_key must be set together")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
