package account

import (
	"net/http"

	"github.com/rewritemessage/rewriter/internal/rewriter/auth"
	"github.com/rewritemessage/rewriter/internal/rewriter/quota"
)

type meResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	IsPro           bool   `json:"isPro"`
	ReferralCode    string `json:"referralCode"`
	BonusRewrites   int    `json:"bonusRewrites"`
	Usage           int    `json:"usage"`
	Limit           int    `json:"limit"`
	Remaining       int    `json:"remaining"`
	HasSubscription bool   `json:"hasSubscription"`
}

// HandleMe returns the caller's profile and today's allowance.
// Route: GET /api/me (bearer)
func HandleMe(ledger *quota.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a := auth.AccountFromContext(r.Context())
		if a == nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Not authenticated"})
			return
		}

		ent := quota.Resolve(a, ledger.Now())
		writeJSON(w, http.StatusOK, meResponse{
			ID:              a.ID,
			Email:           a.Email,
			IsPro:           a.IsPro(),
			ReferralCode:    a.ReferralCode,
			BonusRewrites:   a.BonusRewrites,
			Usage:           ent.Usage,
			Limit:           ent.Limit,
			Remaining:       ent.Remaining,
			HasSubscription: a.SubscriptionRef != "",
		})
	}
}
