package rewriter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_LoadConfigError(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("AUTH_JWT_SECRET", "")

	err := Run(context.Background(), "test-version", Options{})
	if err == nil {
		t.Fatal("Run() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "load config:") {
		t.Fatalf("Run() error = %q, want load config prefix", err)
	}
}

func TestRun_OpenStoreError(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "not-a-directory")
	if err := os.WriteFile(filePath, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile(%q): %v", filePath, err)
	}

	setRequiredEnv(t)
	t.Setenv("REWRITER_DATA_DIR", filePath)
	t.Setenv("REWRITER_LOG_FORMAT", "json")

	err := Run(context.Background(), "test-version", Options{})
	if err == nil {
		t.Fatal("Run() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "open account store:") {
		t.Fatalf("Run() error = %q, want open account store error", err)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REWRITER_BIND_ADDRESS", "127.0.0.1")
	t.Setenv("REWRITER_PORT", "18089")
	t.Setenv("REWRITER_LOG_FORMAT", "json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, "test-version", Options{InMemory: true}); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
}
