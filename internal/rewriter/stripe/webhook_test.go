package stripe

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

const testWebhookSecret = "whsec_test_secret"

func signedWebhookRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	store := newTestStore(t)
	handler := NewWebhookHandler(testWebhookSecret, NewStateMachine(store))

	steps := []struct {
		payload string
		tier    registry.Tier
		ref     string
	}{
		{`{"id":"evt_1","object":"event","type":"customer.subscription.created","data":{"object":{"id":"sub_1","customer":"cus_test1","status":"trialing"}}}`, registry.TierPro, "sub_1"},
		{`{"id":"evt_2","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_test1","status":"active"}}}`, registry.TierPro, "sub_1"},
		{`{"id":"evt_3","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_test1"}}}`, registry.TierPro, "sub_1"},
		{`{"id":"evt_4","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_test1","status":"past_due"}}}`, registry.TierFree, ""},
		{`{"id":"evt_5","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_test1","status":"active"}}}`, registry.TierPro, "sub_1"},
		{`{"id":"evt_6","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_test1","status":"canceled"}}}`, registry.TierFree, ""},
	}
	for _, step := range steps {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, step.payload))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		a := mustGet(t, store, "user-1")
		assert.Equal(t, step.tier, a.Tier)
		assert.Equal(t, step.ref, a.SubscriptionRef)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	store := newTestStore(t)
	handler := NewWebhookHandler(testWebhookSecret, NewStateMachine(store))
	payload := `{"id":"evt_1","object":"event","type":"customer.subscription.created","data":{"object":{"id":"sub_1","customer":"cus_test1","status":"active"}}}`

	before := testutil.ToFloat64(rwmetrics.WebhookRequestsTotal.WithLabelValues("unknown", "400"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, "whsec_wrong", payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader([]byte(payload)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, registry.TierFree, mustGet(t, store, "user-1").Tier, "rejected events must not mutate")
	assert.Equal(t, before+2, testutil.ToFloat64(rwmetrics.WebhookRequestsTotal.WithLabelValues("unknown", "400")))
}

func TestWebhookUnknownTypeAndCustomer(t *testing.T) {
	handler := NewWebhookHandler(testWebhookSecret, NewStateMachine(newTestStore(t)))

	for _, payload := range []string{
		`{"id":"evt_1","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`,
		`{"id":"evt_2","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_nobody","status":"active"}}}`,
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestWebhookStoreFailureAsksForRedelivery(t *testing.T) {
	handler := NewWebhookHandler(testWebhookSecret, NewStateMachine(brokenStore{registry.NewMemoryStore()}))
	payload := `{"id":"evt_1","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_test1"}}}`

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
}

func TestWebhookNotConfigured(t *testing.T) {
	handler := NewWebhookHandler("", NewStateMachine(registry.NewMemoryStore()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, `{}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stripe/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDecodeMalformedObject(t *testing.T) {
	handler := NewWebhookHandler(testWebhookSecret, NewStateMachine(newTestStore(t)))
	payload := `{"id":"evt_1","object":"event","type":"customer.subscription.updated","data":{"object":"not-an-object"}}`

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeRejectsSubscriptionWithoutID(t *testing.T) {
	store := newTestStore(t)
	handler := NewWebhookHandler(testWebhookSecret, NewStateMachine(store))

	for _, id := range []string{`""`, `"  "`, `null`} {
		payload := `{"id":"evt_1","object":"event","type":"customer.subscription.created","data":{"object":{"id":` + id + `,"customer":"cus_test1","status":"active"}}}`
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedWebhookRequest(t, testWebhookSecret, payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "id %s", id)
	}

	a := mustGet(t, store, "user-1")
	assert.Equal(t, registry.TierFree, a.Tier)
	assert.Empty(t, a.SubscriptionRef)
}
