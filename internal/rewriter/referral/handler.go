package referral

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/auth"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

const maxRequestBody = 4 << 10

type applyRequest struct {
	ReferralCode string `json:"referralCode"`
}

type applyResponse struct {
	Success      bool   `json:"success"`
	BonusAwarded int    `json:"bonusAwarded"`
	Message      string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleApply returns the POST /api/referral handler. The route must be
// wrapped with auth.Authenticator.Require.
func HandleApply(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		account := auth.AccountFromContext(r.Context())
		if account == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req applyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
			return
		}

		res, err := ledger.Apply(r.Context(), req.ReferralCode, account.ID)
		rwmetrics.ReferralsTotal.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			rej, ok := rejectionFor(err)
			if !ok {
				logging.FromContext(r.Context()).Error().Err(err).Str("account_id", account.ID).Msg("Referral application failed")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			writeError(w, rej.status, rej.code, rej.message)
			return
		}

		logging.FromContext(r.Context()).Info().
			Str("account_id", account.ID).
			Int("referrer_bonus", res.ReferrerBonus).
			Msg("Referral applied")

		writeJSON(w, http.StatusOK, applyResponse{
			Success:      true,
			BonusAwarded: res.BonusAwarded,
			Message:      fmt.Sprintf("+%d bonus rewrites/day activated!", res.BonusAwarded),
		})
	}
}

type rejection struct {
	status  int
	code    string
	message string
}

var rejections = []struct {
	err error
	rejection
}{
	{ErrMissingCode, rejection{http.StatusBadRequest, "missing_code", "Referral code required"}},
	{ErrUnknownCode, rejection{http.StatusNotFound, "unknown_code", "Invalid referral code"}},
	{ErrSelfReferral, rejection{http.StatusBadRequest, "self_referral", "Cannot use your own referral code"}},
	{ErrAlreadyReferred, rejection{http.StatusBadRequest, "already_referred", "Referral already applied"}},
	{ErrUnknownApplicant, rejection{http.StatusNotFound, "unknown_applicant", "Account not found"}},
}

// rejectionFor maps a ledger rejection to its HTTP response. ok is false for
// unexpected errors.
func rejectionFor(err error) (rejection, bool) {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return r.rejection, true
		}
	}
	return rejection{}, false
}

func outcome(err error) string {
	if err == nil {
		return "applied"
	}
	if rej, ok := rejectionFor(err); ok {
		return rej.code
	}
	return "error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
