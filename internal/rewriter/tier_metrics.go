package rewriter

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

const tierMetricsInterval = 30 * time.Second

func runTierMetrics(ctx context.Context, store registry.Store) {
	ticker := time.NewTicker(tierMetricsInterval)
	defer ticker.Stop()

	// Prime once at startup so /metrics isn't empty for this gauge.
	updateTierGauges(ctx, store)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateTierGauges(ctx, store)
		}
	}
}

func updateTierGauges(ctx context.Context, store registry.Store) {
	counts, err := store.CountByTier(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to update account tier metrics")
		return
	}

	// Stable label set for known tiers.
	for _, tier := range []registry.Tier{registry.TierFree, registry.TierPro} {
		rwmetrics.AccountsByTier.WithLabelValues(string(tier)).Set(float64(counts[tier]))
	}
}
