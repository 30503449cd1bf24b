package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is closed") }

func newTestStore(t *testing.T) *registry.SQLiteStore {
	t.Helper()
	store, err := registry.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestHandleHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	HandleHealthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestHandleReadyz(t *testing.T) {
	handler := HandleReadyz(newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ready" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ready")
	}
}

func TestHandleReadyzNotReady(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleReadyz(failingPinger{})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, a := range []*registry.Account{
		{ID: "a", ReferralCode: "AAAA0001", Tier: registry.TierFree},
		{ID: "b", ReferralCode: "BBBB0001", Tier: registry.TierFree},
		{ID: "c", ReferralCode: "CCCC0001", Tier: registry.TierPro},
	} {
		if err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	HandleStatus(store, "1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/api/admin/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Version != "1.2.3" || resp.TotalAccounts != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.ByTier[registry.TierPro] != 1 || resp.ByTier[registry.TierFree] != 2 {
		t.Errorf("by_tier = %v", resp.ByTier)
	}
	if got := testutil.ToFloat64(rwmetrics.AccountsByTier.WithLabelValues("pro")); got != 1 {
		t.Errorf("pro gauge = %v, want 1", got)
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		adminKey string
		header   string
		value    string
		want     int
	}{
		{"missing key", "secret", "", "", http.StatusUnauthorized},
		{"wrong key", "secret", "X-Admin-Key", "nope", http.StatusUnauthorized},
		{"header key", "secret", "X-Admin-Key", "secret", http.StatusOK},
		{"bearer key", "secret", "Authorization", "Bearer secret", http.StatusOK},
		{"unset admin key", "", "X-Admin-Key", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			AdminKeyMiddleware(tt.adminKey, ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
