package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Stripe      StripeConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	TokenSecret string `usage:"HS256 signing secret for bearer tokens (STORE_AUTH_TOKEN_SECRET)" flag:"token-secret"`
}

// StripeConfig controls the payment processor client and webhook verification.
type StripeConfig struct {
	SecretKey     string        `usage:"Processor API secret key" flag:"stripe-secret-key"`
	WebhookSecret string        `usage:"Shared secret for webhook signature verification" flag:"stripe-webhook-secret"`
	BaseURL       string        `default:"https://api.stripe.com" usage:"Processor API base URL" flag:"stripe-base-url"`
	Timeout       time.Duration `default:"10s" usage:"Processor request timeout" flag:"stripe-timeout"`
	Currency      string        `default:"usd" usage:"Charge currency" flag:"currency"`
}

// KafkaConfig controls order lifecycle event publishing. Empty Brokers
// disables publishing entirely.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses; empty disables event publishing"`
	Topic   string   `default:"storefront.orders" usage:"Topic for order lifecycle events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Auth.TokenSecret == "" {
		return nil, errors.New("auth token secret is required: set STORE_AUTH_TOKEN_SECRET")
	}
	if cfg.Stripe.SecretKey == "" {
		return nil, errors.New("processor secret key is required: set STORE_STRIPE_SECRET_KEY")
	}
	if cfg.Stripe.WebhookSecret == "" {
		return nil, errors.New("webhook secret is required: set STORE_STRIPE_WEBHOOK_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
