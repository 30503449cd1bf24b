package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TierCounter reports how many accounts hold each tier.
type TierCounter interface {
	CountByTier(ctx context.Context) (map[registry.Tier]int, error)
}

type statusResponse struct {
	Version       string                `json:"version"`
	TotalAccounts int                   `json:"total_accounts"`
	ByTier        map[registry.Tier]int `json:"by_tier"`
}

// HandleHealthz returns 200 "ok" unconditionally (liveness probe).
func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz returns a handler that checks store connectivity (readiness probe).
func HandleReadyz(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// HandleStatus returns a handler that reports account counts per tier.
func HandleStatus(store TierCounter, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		counts, err := store.CountByTier(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// Opportunistically sync gauges in addition to the background updater.
		total := 0
		for tier, c := range counts {
			rwmetrics.AccountsByTier.WithLabelValues(string(tier)).Set(float64(c))
			total += c
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(statusResponse{
			Version:       version,
			TotalAccounts: total,
			ByTier:        counts,
		})
	}
}
