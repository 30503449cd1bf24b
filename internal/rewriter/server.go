// Package rewriter runs the message rewrite API: configuration, route wiring,
// middleware and server lifecycle.
package rewriter

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rewritemessage/rewriter/internal/ai/providers"
	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

const limiterSweepInterval = 5 * time.Minute

// Options control how Run builds its collaborators.
type Options struct {
	// InMemory swaps the SQLite account store for a process-local one.
	InMemory bool
}

// Run starts the rewrite API server with graceful shutdown.
func Run(ctx context.Context, version string, opts Options) error {
	// Baseline defaults for early startup logs
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "rewriter",
	})

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "rewriter",
	})
	log.Info().Str("version", version).Msg("Starting rewrite API")

	store, err := openStore(cfg, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	client := providers.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.UpstreamTimeout)

	mux := http.NewServeMux()
	deps := &Deps{
		Config:   cfg,
		Store:    store,
		Rewriter: providers.NewRewriter(client),
		Version:  version,
	}
	RegisterRoutes(mux, deps)

	if cfg.StripeWebhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET not set - webhook endpoint disabled")
	}
	if cfg.StripeSecretKey == "" || cfg.StripePriceID == "" {
		log.Warn().Msg("Stripe checkout not configured - checkout and portal disabled")
	}
	if cfg.AdminKey == "" {
		log.Info().Msg("REWRITER_ADMIN_KEY not set - /metrics not mounted")
	}

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(mux, cfg),
		ReadHeaderTimeout: 15 * time.Second,
		// Rewrites wait on the upstream model.
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Create derived context for background goroutines
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go runTierMetrics(ctx, store)
	go sweepLimiters(ctx, deps.RewriteLimiter, deps.WebhookLimiter)

	// Start server in background
	go func() {
		log.Info().Str("addr", addr).Msg("Rewrite API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
			cancel()
		}
	}()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("Rewrite API stopped")
	return nil
}

func openStore(cfg *Config, opts Options) (registry.Store, error) {
	if opts.InMemory {
		log.Warn().Msg("Using in-memory account store - data is lost on exit")
		return registry.NewMemoryStore(), nil
	}
	store, err := registry.NewSQLiteStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}
	return store, nil
}

func sweepLimiters(ctx context.Context, limiters ...*RateLimiter) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				l.Sweep()
			}
		}
	}
}
