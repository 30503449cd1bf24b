package rewriter

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)
	for _, key := range []string{
		"REWRITER_DATA_DIR", "REWRITER_PORT", "REWRITER_SITE_URL", "REWRITER_ADMIN_KEY",
		"REWRITER_CORS_ORIGINS", "REWRITER_UPSTREAM_TIMEOUT", "ANTHROPIC_MODEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.SiteURL != "https://rewritemessage.com" {
		t.Errorf("SiteURL = %q", cfg.SiteURL)
	}
	if cfg.UpstreamTimeout != 30*time.Second {
		t.Errorf("UpstreamTimeout = %s", cfg.UpstreamTimeout)
	}
	if cfg.AnthropicModel != defaultAnthropicModel {
		t.Errorf("AnthropicModel = %q", cfg.AnthropicModel)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REWRITER_PORT", "9090")
	t.Setenv("REWRITER_UPSTREAM_TIMEOUT", "10s")
	t.Setenv("REWRITER_CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("STRIPE_WEBHOOK_SECRET", " whsec_x ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 9090 || cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.StripeWebhookSecret != "whsec_x" {
		t.Errorf("StripeWebhookSecret = %q", cfg.StripeWebhookSecret)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want non-nil")
	}
	for _, want := range []string{"ANTHROPIC_API_KEY", "AUTH_JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"non-numeric port", "REWRITER_PORT", "http", "REWRITER_PORT must be a valid integer"},
		{"port out of range", "REWRITER_PORT", "70000", "REWRITER_PORT must be between"},
		{"bad timeout", "REWRITER_UPSTREAM_TIMEOUT", "soon", "REWRITER_UPSTREAM_TIMEOUT must be a valid duration"},
		{"negative timeout", "REWRITER_UPSTREAM_TIMEOUT", "-1s", "must be greater than 0"},
		{"site url scheme", "REWRITER_SITE_URL", "ftp://example.com", "must use http or https"},
		{"site url host", "REWRITER_SITE_URL", "https://", "must include a host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadConfig() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
