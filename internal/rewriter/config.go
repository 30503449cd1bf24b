package rewriter

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// Config holds all configuration for the rewrite service.
type Config struct {
	DataDir         string
	BindAddress     string
	Port            int
	SiteURL         string
	AdminKey        string // protects /metrics and /api/admin/status; unset leaves them unmounted
	CORSOrigins     []string
	LogLevel        string
	LogFormat       string
	UpstreamTimeout time.Duration

	AnthropicAPIKey string
	AnthropicModel  string
	AuthJWTSecret   string

	StripeSecretKey     string
	StripePriceID       string
	StripeWebhookSecret string
}

// LoadConfig loads service configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("REWRITER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	timeout, err := envOrDefaultDuration("REWRITER_UPSTREAM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             envOrDefault("REWRITER_DATA_DIR", "./data"),
		BindAddress:         envOrDefault("REWRITER_BIND_ADDRESS", "0.0.0.0"),
		Port:                port,
		SiteURL:             envOrDefault("REWRITER_SITE_URL", "https://rewritemessage.com"),
		AdminKey:            strings.TrimSpace(os.Getenv("REWRITER_ADMIN_KEY")),
		CORSOrigins:         splitList(envOrDefault("REWRITER_CORS_ORIGINS", "*")),
		LogLevel:            envOrDefault("REWRITER_LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("REWRITER_LOG_FORMAT", "auto"),
		UpstreamTimeout:     timeout,
		AnthropicAPIKey:     strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		AnthropicModel:      envOrDefault("ANTHROPIC_MODEL", defaultAnthropicModel),
		AuthJWTSecret:       strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripePriceID:       strings.TrimSpace(os.Getenv("STRIPE_PRICE_ID")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate rewriter config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.AnthropicAPIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if c.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("REWRITER_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("REWRITER_UPSTREAM_TIMEOUT must be greater than 0, got %s", c.UpstreamTimeout)
	}

	parsed, err := url.Parse(c.SiteURL)
	if err != nil {
		return fmt.Errorf("REWRITER_SITE_URL must be a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("REWRITER_SITE_URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("REWRITER_SITE_URL must include a host")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
