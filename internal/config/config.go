// Package config loads service settings from defaults, an optional YAML file
// named by CONFIG_FILE, and environment variables (SERVER_ADDR, GATEWAY_SECRET_KEY, ...).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"

	ProviderHTTP   = "http"
	ProviderStripe = "stripe"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	AppEnv   string `mapstructure:"app_env"`
	RunLocal bool   `mapstructure:"run_local"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Session struct {
		Cookie string        `mapstructure:"cookie"`
		MaxAge time.Duration `mapstructure:"max_age"`
		Secure bool          `mapstructure:"secure"`
	} `mapstructure:"session"`

	Store struct {
		Backend          string        `mapstructure:"backend"`
		KVTable          string        `mapstructure:"kv_table"`
		IdempotencyTable string        `mapstructure:"idempotency_table"`
		PendingTTL       time.Duration `mapstructure:"pending_ttl"`
		LedgerTTL        time.Duration `mapstructure:"ledger_ttl"`
		MarkerTTL        time.Duration `mapstructure:"marker_ttl"`
	} `mapstructure:"store"`

	Gateway struct {
		Provider    string `mapstructure:"provider"`
		BaseURL     string `mapstructure:"base_url"`
		SecretKey   string `mapstructure:"secret_key"`
		Currency    string `mapstructure:"currency"`
		CallbackURL string `mapstructure:"callback_url"`
	} `mapstructure:"gateway"`

	Verify struct {
		// BaseURL of the verification proxy; empty verifies in-process.
		BaseURL  string        `mapstructure:"base_url"`
		Attempts int           `mapstructure:"attempts"`
		Delay    time.Duration `mapstructure:"delay"`
	} `mapstructure:"verify"`

	Webhook struct {
		URL           string `mapstructure:"url"`
		Token         string `mapstructure:"token"`
		RetryQueueURL string `mapstructure:"retry_queue_url"`
	} `mapstructure:"webhook"`

	Redirect struct {
		SuccessURL string `mapstructure:"success_url"`
		ErrorURL   string `mapstructure:"error_url"`
	} `mapstructure:"redirect"`

	Metrics struct {
		Enabled   bool   `mapstructure:"enabled"`
		Namespace string `mapstructure:"namespace"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "production")
	v.SetDefault("run_local", false)
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("session.cookie", "dolabb_sid")
	v.SetDefault("session.max_age", 30*24*time.Hour)
	v.SetDefault("session.secure", true)

	v.SetDefault("store.backend", BackendDynamoDB)
	v.SetDefault("store.kv_table", "dolabb-session-kv")
	v.SetDefault("store.idempotency_table", "dolabb-idempotency")
	v.SetDefault("store.pending_ttl", time.Hour)
	v.SetDefault("store.ledger_ttl", 30*24*time.Hour)
	v.SetDefault("store.marker_ttl", 48*time.Hour)

	v.SetDefault("gateway.provider", ProviderHTTP)
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.currency", "SAR")
	v.SetDefault("gateway.callback_url", "http://localhost:8080/payment/callback")

	v.SetDefault("verify.base_url", "")
	v.SetDefault("verify.attempts", 5)
	v.SetDefault("verify.delay", 2*time.Second)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.token", "")
	v.SetDefault("webhook.retry_queue_url", "")

	v.SetDefault("redirect.success_url", "/payment/success")
	v.SetDefault("redirect.error_url", "/payment/error")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "Dolabb/Payments")
}

// Load reads configuration. Environment variables win over the file, which
// wins over defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendDynamoDB, BackendMemory:
	default:
		return fmt.Errorf("%w: store.backend %q", ErrInvalid, c.Store.Backend)
	}
	switch c.Gateway.Provider {
	case ProviderHTTP:
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("%w: gateway.base_url is required for the http provider", ErrInvalid)
		}
	case ProviderStripe:
	default:
		return fmt.Errorf("%w: gateway.provider %q", ErrInvalid, c.Gateway.Provider)
	}
	if c.Verify.Attempts < 1 {
		return fmt.Errorf("%w: verify.attempts must be at least 1", ErrInvalid)
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("%w: webhook.url is required", ErrInvalid)
	}
	return nil
}

// Local reports whether the service runs outside Lambda.
func (c *Config) Local() bool {
	return c.RunLocal || c.AppEnv == "local"
}
