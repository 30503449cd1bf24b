package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"

	"github.com/rewritemessage/rewriter/internal/rewriter/auth"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

type fakeStripe struct {
	customers int
	checkout  *stripelib.CheckoutSessionParams
	portal    *stripelib.BillingPortalSessionParams
	err       error
}

func newTestBillingHandlers(store registry.Store, fake *fakeStripe) *BillingHandlers {
	h := &BillingHandlers{
		cfg:   BillingConfig{SecretKey: "sk_test", PriceID: "price_123", SiteURL: "https://rewritemessage.com/"},
		store: store,
	}
	h.createCustomer = func(params *stripelib.CustomerParams) (*stripelib.Customer, error) {
		if fake.err != nil {
			return nil, fake.err
		}
		fake.customers++
		return &stripelib.Customer{ID: "cus_new1"}, nil
	}
	h.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		fake.checkout = params
		return &stripelib.CheckoutSession{URL: "https://checkout.stripe.com/c/pay/cs_test"}, nil
	}
	h.createPortalSession = func(params *stripelib.BillingPortalSessionParams) (*stripelib.BillingPortalSession, error) {
		fake.portal = params
		return &stripelib.BillingPortalSession{URL: "https://billing.stripe.com/p/session/test"}, nil
	}
	return h
}

func serveAs(h http.HandlerFunc, account *registry.Account) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	if account != nil {
		req = req.WithContext(auth.WithAccount(req.Context(), account))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCheckoutCreatesCustomerOnce(t *testing.T) {
	store := registry.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &registry.Account{ID: "user-1", Email: "a@example.com", ReferralCode: "AAAA1111"}))
	fake := &fakeStripe{}
	h := newTestBillingHandlers(store, fake)

	rec := serveAs(h.HandleCheckout, mustGet(t, store, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp urlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test", resp.URL)
	assert.Equal(t, 1, fake.customers)
	assert.Equal(t, "cus_new1", mustGet(t, store, "user-1").StripeCustomerID)

	require.NotNil(t, fake.checkout)
	assert.Equal(t, "cus_new1", *fake.checkout.Customer)
	assert.Equal(t, int64(7), *fake.checkout.SubscriptionData.TrialPeriodDays)
	assert.True(t, *fake.checkout.AllowPromotionCodes)
	assert.Equal(t, "price_123", *fake.checkout.LineItems[0].Price)
	assert.Equal(t, "https://rewritemessage.com?upgraded=true", *fake.checkout.SuccessURL)
	assert.Equal(t, "https://rewritemessage.com?cancelled=true", *fake.checkout.CancelURL)

	rec = serveAs(h.HandleCheckout, mustGet(t, store, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.customers, "existing customer must be reused")
}

func TestCheckoutErrors(t *testing.T) {
	store := registry.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &registry.Account{ID: "user-1", ReferralCode: "AAAA1111"}))
	account := mustGet(t, store, "user-1")

	rec := serveAs(newTestBillingHandlers(store, &fakeStripe{}).HandleCheckout, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unconfigured := newTestBillingHandlers(store, &fakeStripe{})
	unconfigured.cfg.PriceID = ""
	rec = serveAs(unconfigured.HandleCheckout, account)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	failing := newTestBillingHandlers(store, &fakeStripe{err: errors.New("stripe down")})
	rec = serveAs(failing.HandleCheckout, account)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, mustGet(t, store, "user-1").StripeCustomerID)
}

func TestPortal(t *testing.T) {
	store := registry.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &registry.Account{ID: "user-1", ReferralCode: "AAAA1111"}))
	fake := &fakeStripe{}
	h := newTestBillingHandlers(store, fake)

	rec := serveAs(h.HandlePortal, mustGet(t, store, "user-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "No subscription found", body.Error)

	require.NoError(t, store.SetCustomerID(context.Background(), "user-1", "cus_test1"))
	rec = serveAs(h.HandlePortal, mustGet(t, store, "user-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cus_test1", *fake.portal.Customer)
	assert.Equal(t, "https://rewritemessage.com", *fake.portal.ReturnURL)
}
