package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
)

type ctxKey struct{}

// WithAccount stores the authenticated account on ctx.
func WithAccount(ctx context.Context, a *registry.Account) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// AccountFromContext returns the authenticated account, or nil for anonymous
// requests.
func AccountFromContext(ctx context.Context) *registry.Account {
	a, _ := ctx.Value(ctxKey{}).(*registry.Account)
	return a
}

// Authenticator resolves bearer tokens to accounts.
type Authenticator struct {
	verifier    *Verifier
	provisioner *Provisioner
}

// NewAuthenticator wires a verifier and provisioner together.
func NewAuthenticator(v *Verifier, p *Provisioner) *Authenticator {
	return &Authenticator{verifier: v, provisioner: p}
}

// Require rejects requests without a valid bearer token with 401.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.verifier.Verify(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		account, err := a.provisioner.Ensure(r.Context(), *id)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Str("user_id", id.UserID).Msg("Failed to load account")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}

// Optional attaches the account when a valid bearer token is present and
// otherwise lets the request through as anonymous.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := a.verifier.Verify(token)
		if err != nil {
			logging.FromContext(r.Context()).Debug().Err(err).Msg("Ignoring invalid bearer token")
			next.ServeHTTP(w, r)
			return
		}
		account, err := a.provisioner.Ensure(r.Context(), *id)
		if err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Str("user_id", id.UserID).Msg("Failed to load account")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   code,
		Message: message,
	})
}
