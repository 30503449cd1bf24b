package stripe

import (
	"net/http"
	"net/url"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"

	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/auth"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

const checkoutTrialDays = 7

// BillingConfig holds the Stripe settings used by checkout and portal.
type BillingConfig struct {
	SecretKey string
	PriceID   string
	SiteURL   string
}

// BillingHandlers serve the checkout and billing-portal endpoints.
type BillingHandlers struct {
	cfg   BillingConfig
	store registry.Store

	createCustomer        func(params *stripelib.CustomerParams) (*stripelib.Customer, error)
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	createPortalSession   func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error)
}

// NewBillingHandlers creates billing handlers backed by the Stripe API.
func NewBillingHandlers(cfg BillingConfig, store registry.Store) *BillingHandlers {
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		stripelib.Key = key
	}
	return &BillingHandlers{
		cfg:                   cfg,
		store:                 store,
		createCustomer:        customer.New,
		createCheckoutSession: checkoutsession.New,
		createPortalSession:   portalsession.New,
	}
}

type urlResponse struct {
	URL string `json:"url"`
}

func (h *BillingHandlers) configured() bool {
	return strings.TrimSpace(h.cfg.SecretKey) != ""
}

// HandleCheckout creates a subscription Checkout Session for the caller,
// creating the Stripe customer on first use.
func (h *BillingHandlers) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	account := auth.AccountFromContext(r.Context())
	if account == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Login required"})
		return
	}
	if !h.configured() || strings.TrimSpace(h.cfg.PriceID) == "" {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "checkout not configured"})
		return
	}
	logger := logging.FromContext(r.Context())

	customerID := strings.TrimSpace(account.StripeCustomerID)
	if customerID == "" {
		cust, err := h.createCustomer(&stripelib.CustomerParams{
			Email:    stripelib.String(account.Email),
			Metadata: map[string]string{"user_id": account.ID},
		})
		if err != nil || cust == nil || cust.ID == "" {
			logger.Error().Err(err).Str("account_id", account.ID).Msg("Stripe customer creation failed")
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Unable to create checkout session"})
			return
		}
		customerID = cust.ID
		if err := h.store.SetCustomerID(r.Context(), account.ID, customerID); err != nil {
			logger.Error().Err(err).Str("account_id", account.ID).Msg("Failed to store Stripe customer")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	params := &stripelib.CheckoutSessionParams{
		Customer:          stripelib.String(customerID),
		ClientReferenceID: stripelib.String(account.ID),
		Mode:              stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(strings.TrimSpace(h.cfg.PriceID)),
				Quantity: stripelib.Int64(1),
			},
		},
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripelib.Int64(checkoutTrialDays),
			Metadata:        map[string]string{"user_id": account.ID},
		},
		SuccessURL:          stripelib.String(siteURL(h.cfg.SiteURL, url.Values{"upgraded": {"true"}})),
		CancelURL:           stripelib.String(siteURL(h.cfg.SiteURL, url.Values{"cancelled": {"true"}})),
		AllowPromotionCodes: stripelib.Bool(true),
	}

	session, err := h.createCheckoutSession(params)
	if err != nil || session == nil || strings.TrimSpace(session.URL) == "" {
		logger.Error().Err(err).Str("account_id", account.ID).Msg("Checkout session creation failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Unable to create checkout session"})
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: session.URL})
}

// HandlePortal opens a billing-portal session for the caller's customer.
func (h *BillingHandlers) HandlePortal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	account := auth.AccountFromContext(r.Context())
	if account == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Login required"})
		return
	}
	if strings.TrimSpace(account.StripeCustomerID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No subscription found"})
		return
	}
	if !h.configured() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "billing portal not configured"})
		return
	}

	session, err := h.createPortalSession(&stripelib.BillingPortalSessionParams{
		Customer:  stripelib.String(account.StripeCustomerID),
		ReturnURL: stripelib.String(siteURL(h.cfg.SiteURL, nil)),
	})
	if err != nil || session == nil || strings.TrimSpace(session.URL) == "" {
		logging.FromContext(r.Context()).Error().Err(err).Str("account_id", account.ID).Msg("Billing portal session creation failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Unable to open billing portal"})
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: session.URL})
}

func siteURL(base string, query url.Values) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if len(query) == 0 {
		return base
	}
	return base + "?" + query.Encode()
}
