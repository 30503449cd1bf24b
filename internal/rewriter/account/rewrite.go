// Package account serves the per-user endpoints: profile, rewrite and the
// tone catalog.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/rewritemessage/rewriter/internal/ai/providers"
	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/auth"
	"github.com/rewritemessage/rewriter/internal/rewriter/quota"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

const (
	// MaxMessageLength is the longest message accepted, in characters.
	MaxMessageLength = 3000
	maxRequestBody   = 64 << 10
)

// TextRewriter is the model-backed text transform.
type TextRewriter interface {
	Rewrite(ctx context.Context, text, toneLabel, toneDescription string) (string, error)
}

type rewriteRequest struct {
	Message  string         `json:"message"`
	Tone     string         `json:"tone"`
	ToneDesc string         `json:"toneDesc"`
	Session  *quota.Session `json:"session,omitempty"`
}

type rewriteResponse struct {
	Rewrite string         `json:"rewrite"`
	Usage   int            `json:"usage"`
	Limit   int            `json:"limit"`
	IsPro   bool           `json:"isPro"`
	Session *quota.Session `json:"session,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type quotaErrorResponse struct {
	Error   string `json:"error"`
	Usage   int    `json:"usage"`
	Limit   int    `json:"limit"`
	Upgrade bool   `json:"upgrade"`
}

// HandleRewrite serves POST /api/rewrite. Authenticated callers are metered
// against the account store; anonymous callers against the session counter
// they send, which is returned advanced on success.
func HandleRewrite(ledger *quota.Ledger, rewriter TextRewriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		var req rewriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
			return
		}
		if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.Tone) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing message or tone"})
			return
		}
		if utf8.RuneCountInString(req.Message) > MaxMessageLength {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Message too long (max 3,000 chars)"})
			return
		}
		label, desc := resolveTone(req.Tone, req.ToneDesc)

		account := auth.AccountFromContext(r.Context())
		var session quota.Session
		var decision quota.Decision
		if account != nil {
			decision = ledger.TryConsume(account)
		} else {
			if req.Session != nil {
				session = *req.Session
			}
			decision = ledger.TryConsumeAnonymous(session)
		}

		if !decision.Allowed {
			rwmetrics.RewritesTotal.WithLabelValues("quota_exceeded").Inc()
			writeJSON(w, http.StatusTooManyRequests, quotaExceeded(decision))
			return
		}

		logger := logging.FromContext(r.Context())
		out, err := rewriter.Rewrite(r.Context(), req.Message, label, desc)
		if err != nil {
			rwmetrics.RewritesTotal.WithLabelValues("upstream_error").Inc()
			if !errors.Is(err, providers.ErrUpstreamUnavailable) {
				logger.Error().Err(err).Msg("Rewrite failed")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			logger.Warn().Err(err).Msg("Rewrite upstream unavailable")
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: providers.ErrUpstreamUnavailable.Error()})
			return
		}
		rwmetrics.RewritesTotal.WithLabelValues("ok").Inc()

		resp := rewriteResponse{
			Rewrite: out,
			Limit:   decision.Limit,
			IsPro:   decision.Tier == registry.TierPro,
		}
		if account != nil {
			resp.Usage = ledger.Commit(r.Context(), account.ID, decision, quota.Rewrite{
				Tone:         label,
				InputLength:  utf8.RuneCountInString(req.Message),
				OutputLength: utf8.RuneCountInString(out),
			})
		} else {
			next := session.Advance(ledger.Now())
			resp.Usage = next.Count
			resp.Session = &next
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func quotaExceeded(d quota.Decision) quotaErrorResponse {
	msg := "Free limit reached. Upgrade to Pro for 30/day."
	if d.Tier == registry.TierPro {
		msg = "Daily limit reached (30). Resets at midnight UTC."
	}
	return quotaErrorResponse{
		Error:   msg,
		Usage:   d.UsageAfter,
		Limit:   d.Limit,
		Upgrade: d.Tier != registry.TierPro,
	}
}

// resolveTone fills in catalog label and description when the client sent
// only a tone id.
func resolveTone(tone, desc string) (string, string) {
	tone = strings.TrimSpace(tone)
	desc = strings.TrimSpace(desc)
	if t, ok := LookupTone(tone); ok {
		if desc == "" {
			desc = t.Description
		}
		return t.Label, desc
	}
	if desc == "" {
		desc = tone
	}
	return tone, desc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("rewriter.account: encode response")
	}
}
