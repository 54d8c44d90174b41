package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Stripe  StripeConfig  `yaml:"stripe"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host                   string   `yaml:"host"`
	Port                   int      `yaml:"port"`
	PublicDir              string   `yaml:"public_dir"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig holds verdict cache settings
type CacheConfig struct {
	Capacity   int  `yaml:"capacity"`
	TTLSeconds int  `yaml:"ttl_seconds"`
	Coalesce   bool `yaml:"coalesce"` // share one resolution between concurrent misses
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// StripeConfig holds billing provider settings
type StripeConfig struct {
	APIKey               string `yaml:"api_key"`
	BaseURL              string `yaml:"base_url"`
	APIVersion           string `yaml:"api_version"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	MaxRetries           int    `yaml:"max_retries"`
	CustomerPageSize     int    `yaml:"customer_page_size"`
	SubscriptionPageSize int    `yaml:"subscription_page_size"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	BufferSize int    `yaml:"buffer_size"`
}

// ErrMissingAPIKey is returned when no Stripe key is configured.
var ErrMissingAPIKey = errors.New("missing STRIPE_API_KEY in environment")

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Stripe.MaxRetries = -1
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML config file and applies defaults. A missing file is
// not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	var cfg Config
	cfg.Stripe.MaxRetries = -1

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.PublicDir == "" {
		cfg.Server.PublicDir = "public"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 512
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 90
	}
	if cfg.Stripe.BaseURL == "" {
		cfg.Stripe.BaseURL = "https://api.stripe.com"
	}
	if cfg.Stripe.TimeoutSeconds == 0 {
		cfg.Stripe.TimeoutSeconds = 30
	}
	// -1 marks "unset" so an explicit max_retries: 0 disables retries
	if cfg.Stripe.MaxRetries < 0 {
		cfg.Stripe.MaxRetries = 2
	}
	if cfg.Stripe.CustomerPageSize == 0 {
		cfg.Stripe.CustomerPageSize = 10
	}
	if cfg.Stripe.SubscriptionPageSize == 0 {
		cfg.Stripe.SubscriptionPageSize = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.BufferSize == 0 {
		cfg.Logging.BufferSize = 1000
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is loaded first if present, and its
// values override variables already set in the process environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Overload()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STRIPE_API_KEY"); v != "" {
		cfg.Stripe.APIKey = v
	}
	if v := os.Getenv("STRIPE_BASE_URL"); v != "" {
		cfg.Stripe.BaseURL = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("PUBLIC_DIR"); v != "" {
		cfg.Server.PublicDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Stripe.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Stripe.CustomerPageSize <= 0 || c.Stripe.SubscriptionPageSize <= 0 {
		return errors.New("stripe page sizes must be positive")
	}
	return nil
}
