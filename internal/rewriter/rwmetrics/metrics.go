package rwmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RewritesTotal counts rewrite requests by outcome.
	RewritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewriter",
		Name:      "rewrites_total",
		Help:      "Total rewrite requests by outcome.",
	}, []string{"outcome"})

	// UsageTrackingFailures counts successful rewrites whose usage could not be recorded.
	UsageTrackingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rewriter",
		Name:      "usage_tracking_failures_total",
		Help:      "Rewrites that succeeded but whose usage increment failed.",
	})

	// ReferralsTotal counts referral applications by outcome.
	ReferralsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewriter",
		Name:      "referrals_total",
		Help:      "Referral applications by outcome.",
	}, []string{"outcome"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewriter",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rewriter",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// TierTransitionsTotal counts tier writes applied by billing events.
	TierTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewriter",
		Name:      "tier_transitions_total",
		Help:      "Tier writes applied from billing events, by resulting tier.",
	}, []string{"tier"})

	// AccountsByTier tracks the number of accounts in each tier.
	AccountsByTier = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rewriter",
		Name:      "accounts_by_tier",
		Help:      "Number of accounts by tier.",
	}, []string{"tier"})

	// HTTPRequestsTotal counts HTTP requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewriter",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"route", "status"})
)
