// Package config loads the layered service configuration: compiled defaults,
// then an optional YAML file, then PESA_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/okwaro/pesasentinel/internal/domain/errors"
)

// DefaultPath is where Load looks for the optional config file.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Identity IdentityConfig `koanf:"identity"`
	Fraud    FraudConfig    `koanf:"fraud"`
	Policy   PolicyConfig   `koanf:"policy"`
	Alerts   AlertsConfig   `koanf:"alerts"`
	Audit    AuditConfig    `koanf:"audit"`
	Monitor  MonitorConfig  `koanf:"monitor"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second" validate:"gt=0"`
	BurstSize         int `koanf:"burst_size" validate:"gt=0"`
}

type IdentityConfig struct {
	TrustDomain    string        `koanf:"trust_domain" validate:"required"`
	PrimaryNetwork string        `koanf:"primary_network" validate:"required"`
	CountryPrefix  string        `koanf:"country_prefix" validate:"required,numeric"`
	TTL            time.Duration `koanf:"ttl" validate:"gt=0"`
}

type FraudConfig struct {
	BlockThreshold  float64          `koanf:"block_threshold" validate:"gt=0"`
	ReviewThreshold float64          `koanf:"review_threshold" validate:"gt=0"`
	Rules           []FraudRuleEntry `koanf:"rules" validate:"dive"`
}

type FraudRuleEntry struct {
	Name    string  `koanf:"name" validate:"required"`
	Weight  float64 `koanf:"weight" validate:"gt=0"`
	Enabled bool    `koanf:"enabled"`
}

type PolicyConfig struct {
	MaxTravelKMH    float64       `koanf:"max_travel_kmh" validate:"gt=0"`
	MinOrderAgeDays int           `koanf:"min_order_age_days" validate:"gte=0"`
	MedianMultiple  int64         `koanf:"median_multiple" validate:"gt=0"`
	Policies        []PolicyEntry `koanf:"policies" validate:"dive"`
}

type PolicyEntry struct {
	ID          string `koanf:"id" validate:"required"`
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	Priority    int    `koanf:"priority"`
	Region      string `koanf:"region"`
	MinTier     string `koanf:"min_tier" validate:"omitempty,oneof=basic verified premium enterprise"`
	RuleKey     string `koanf:"rule_key" validate:"required"`
	Active      bool   `koanf:"active"`
}

type AlertsConfig struct {
	Capacity int `koanf:"capacity" validate:"gt=0"`
}

type AuditConfig struct {
	Capacity int `koanf:"capacity" validate:"gt=0"`
}

type MonitorConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
		Identity: IdentityConfig{
			TrustDomain:    "pesasentinel.local",
			PrimaryNetwork: "safaricom",
			CountryPrefix:  "254",
			TTL:            24 * time.Hour,
		},
		Fraud: FraudConfig{
			BlockThreshold:  80,
			ReviewThreshold: 50,
		},
		Policy: PolicyConfig{
			MaxTravelKMH:    100,
			MinOrderAgeDays: 90,
			MedianMultiple:  10,
		},
		Alerts:  AlertsConfig{Capacity: 1000},
		Audit:   AuditConfig{Capacity: 5000},
		Monitor: MonitorConfig{Interval: 60 * time.Second},
	}
}

// Load reads the configuration from the default file path.
func Load() (*Config, error) {
	return LoadFromFile(DefaultPath)
}

// LoadFromFile layers defaults, the named YAML file (optional), and PESA_
// environment variables, then validates the result.
func LoadFromFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "loading defaults")
	}

	// The config file is optional; a missing file keeps the defaults.
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("PESA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PESA_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, errors.Wrap(err, "loading environment variables")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// Watch re-reads the file on change and invokes onReload with the fresh
// configuration. Reload errors are passed a nil config.
func Watch(path string, onReload func(*Config, error)) error {
	f := file.Provider(path)
	return f.Watch(func(event interface{}, err error) {
		if err != nil {
			onReload(nil, err)
			return
		}
		cfg, err := LoadFromFile(path)
		onReload(cfg, err)
	})
}
