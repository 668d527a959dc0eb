package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for gatewayd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabasePath  string          `yaml:"database"`
	ParamsPath    string          `yaml:"params"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	TLS           TLSConfig       `yaml:"tls"`
}

// OracleConfig seeds the static price oracle. Amounts are decimal strings at
// the configured precision.
type OracleConfig struct {
	Price    string   `yaml:"price"`
	Decimals uint8    `yaml:"decimals"`
	MaxAge   Duration `yaml:"max_age"`
}

// AuthConfig carries the per-role bearer tokens. mTLS client certificates
// satisfy every role when enabled.
type AuthConfig struct {
	AdminToken     string `yaml:"admin_token"`
	PauserToken    string `yaml:"pauser_token"`
	CustodianToken string `yaml:"custodian_token"`
	AllowMTLS      bool   `yaml:"allow_mtls"`
}

// RateLimitConfig throttles public endpoints per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// TLSConfig describes the listener's TLS settings.
type TLSConfig struct {
	Disabled bool   `yaml:"disabled"`
	CertPath string `yaml:"cert"`
	KeyPath  string `yaml:"key"`
	ClientCA string `yaml:"client_ca"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./gatewayd-data"
	}
	if cfg.ParamsPath == "" {
		cfg.ParamsPath = "./gateway.toml"
	}
	if cfg.Oracle.Decimals == 0 {
		cfg.Oracle.Decimals = 18
	}
	if cfg.Oracle.MaxAge.Duration == 0 {
		cfg.Oracle.MaxAge.Duration = 5 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 30
	}
}

func validate(cfg Config) error {
	hasBearer := strings.TrimSpace(cfg.Auth.AdminToken) != "" ||
		strings.TrimSpace(cfg.Auth.PauserToken) != "" ||
		strings.TrimSpace(cfg.Auth.CustodianToken) != ""
	if !hasBearer && !cfg.Auth.AllowMTLS {
		return fmt.Errorf("auth requires at least one bearer token or mTLS")
	}
	if !cfg.TLS.Disabled {
		if strings.TrimSpace(cfg.TLS.CertPath) == "" || strings.TrimSpace(cfg.TLS.KeyPath) == "" {
			return fmt.Errorf("tls requires cert and key unless disabled")
		}
	}
	if cfg.Auth.AllowMTLS && strings.TrimSpace(cfg.TLS.ClientCA) == "" {
		return fmt.Errorf("tls.client_ca must be configured when mTLS is enabled")
	}
	return nil
}
