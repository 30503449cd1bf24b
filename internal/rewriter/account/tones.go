package account

import (
	"net/http"
	"strings"
)

// Tone is one entry of the built-in tone catalog.
type Tone struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Tones is the built-in catalog, in display order.
var Tones = []Tone{
	{ID: "professional", Label: "Professional", Description: "Polished & corporate"},
	{ID: "friendly", Label: "Friendly", Description: "Warm & approachable"},
	{ID: "assertive", Label: "Assertive", Description: "Direct & confident"},
	{ID: "diplomatic", Label: "Diplomatic", Description: "Tactful & balanced"},
	{ID: "casual", Label: "Casual", Description: "Relaxed & conversational"},
	{ID: "empathetic", Label: "Empathetic", Description: "Understanding & caring"},
	{ID: "concise", Label: "Concise", Description: "Short & punchy"},
	{ID: "persuasive", Label: "Persuasive", Description: "Compelling & convincing"},
}

// LookupTone finds a catalog tone by id or label, ignoring case.
func LookupTone(name string) (Tone, bool) {
	name = strings.TrimSpace(name)
	for _, t := range Tones {
		if strings.EqualFold(t.ID, name) || strings.EqualFold(t.Label, name) {
			return t, true
		}
	}
	return Tone{}, false
}

// HandleTones serves the tone catalog.
// Route: GET /api/tones
func HandleTones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, Tones)
}
