package rewriter

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewritemessage/rewriter/internal/rewriter/account"
	"github.com/rewritemessage/rewriter/internal/rewriter/admin"
	"github.com/rewritemessage/rewriter/internal/rewriter/auth"
	"github.com/rewritemessage/rewriter/internal/rewriter/quota"
	"github.com/rewritemessage/rewriter/internal/rewriter/referral"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	rwstripe "github.com/rewritemessage/rewriter/internal/rewriter/stripe"
)

const (
	rewriteRateLimit = 30
	webhookRateLimit = 120
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config   *Config
	Store    registry.Store
	Rewriter account.TextRewriter
	Version  string
	Now      func() time.Time // nil uses time.Now

	// Optional; created by RegisterRoutes when nil.
	RewriteLimiter *RateLimiter
	WebhookLimiter *RateLimiter
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	if deps.RewriteLimiter == nil {
		deps.RewriteLimiter = NewRateLimiter(rewriteRateLimit, time.Minute)
	}
	if deps.WebhookLimiter == nil {
		deps.WebhookLimiter = NewRateLimiter(webhookRateLimit, time.Minute)
	}

	authn := auth.NewAuthenticator(
		auth.NewVerifier(deps.Config.AuthJWTSecret, deps.Now),
		auth.NewProvisioner(deps.Store),
	)
	usage := quota.NewLedger(deps.Store, deps.Now)
	referrals := referral.NewLedger(deps.Store)
	billing := rwstripe.NewBillingHandlers(rwstripe.BillingConfig{
		SecretKey: deps.Config.StripeSecretKey,
		PriceID:   deps.Config.StripePriceID,
		SiteURL:   deps.Config.SiteURL,
	}, deps.Store)
	webhook := rwstripe.NewWebhookHandler(deps.Config.StripeWebhookSecret, rwstripe.NewStateMachine(deps.Store))

	// Health / readiness are unauthenticated liveness/readiness probes.
	mux.HandleFunc("/healthz", admin.HandleHealthz)
	mux.HandleFunc("/readyz", admin.HandleReadyz(deps.Store))

	// Public catalog and the metered rewrite (optional bearer).
	mux.HandleFunc("/api/tones", account.HandleTones)
	mux.Handle("/api/rewrite", deps.RewriteLimiter.Middleware(
		authn.Optional(account.HandleRewrite(usage, deps.Rewriter)),
	))

	// Account endpoints (bearer required).
	mux.Handle("/api/me", authn.Require(account.HandleMe(usage)))
	mux.Handle("/api/referral", authn.Require(referral.HandleApply(referrals)))
	mux.Handle("/api/checkout", authn.Require(http.HandlerFunc(billing.HandleCheckout)))
	mux.Handle("/api/portal", authn.Require(http.HandlerFunc(billing.HandlePortal)))

	// Stripe webhook (signature-authenticated)
	mux.Handle("/api/stripe/webhook", deps.WebhookLimiter.Middleware(webhook))

	// Status and metrics are private and only exposed when an admin key is set.
	if deps.Config.AdminKey != "" {
		adminAuth := func(next http.Handler) http.Handler {
			return admin.AdminKeyMiddleware(deps.Config.AdminKey, next)
		}
		mux.Handle("/metrics", adminAuth(promhttp.Handler()))
		mux.Handle("/api/admin/status", adminAuth(admin.HandleStatus(deps.Store, deps.Version)))
	}
}

// Handler wraps mux with the middleware chain shared by every route.
func Handler(mux http.Handler, cfg *Config) http.Handler {
	return RequestHandler(SecurityHeaders(CORS(cfg.CORSOrigins, mux)))
}
