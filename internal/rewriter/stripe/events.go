package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid Stripe signature")

// Event is a billing event the state machine understands. The set of
// implementations is closed.
type Event interface {
	// EventType is the processor's event type string.
	EventType() string
	isEvent()
}

// SubscriptionChanged covers customer.subscription.created and .updated.
type SubscriptionChanged struct {
	Type           string
	CustomerID     string
	SubscriptionID string
	Status         string
}

// SubscriptionDeleted is customer.subscription.deleted.
type SubscriptionDeleted struct {
	CustomerID     string
	SubscriptionID string
}

// PaymentFailed is invoice.payment_failed.
type PaymentFailed struct {
	CustomerID string
	InvoiceID  string
}

// Ignored is any event type without a transition.
type Ignored struct {
	Type string
}

func (e SubscriptionChanged) EventType() string { return e.Type }
func (SubscriptionDeleted) EventType() string   { return "customer.subscription.deleted" }
func (PaymentFailed) EventType() string         { return "invoice.payment_failed" }
func (e Ignored) EventType() string             { return e.Type }

func (SubscriptionChanged) isEvent() {}
func (SubscriptionDeleted) isEvent() {}
func (PaymentFailed) isEvent()       {}
func (Ignored) isEvent()             {}

// Subscription is a minimal representation of a Stripe subscription event.
type Subscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// Invoice is a minimal representation of a Stripe invoice event.
type Invoice struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

// VerifyEvent checks the Stripe-Signature header against secret and parses
// the payload.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripelib.Event, error) {
	if strings.TrimSpace(sigHeader) == "" {
		return stripelib.Event{}, fmt.Errorf("%w: missing header", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripelib.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// Decode maps a verified Stripe event onto the closed Event set.
func Decode(event stripelib.Event) (Event, error) {
	eventType := string(event.Type)
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch eventType {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		if strings.TrimSpace(sub.ID) == "" {
			return nil, errors.New("decode subscription: missing id")
		}
		return SubscriptionChanged{
			Type:           eventType,
			CustomerID:     strings.TrimSpace(sub.Customer),
			SubscriptionID: strings.TrimSpace(sub.ID),
			Status:         strings.TrimSpace(sub.Status),
		}, nil

	case "customer.subscription.deleted":
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return SubscriptionDeleted{
			CustomerID:     strings.TrimSpace(sub.Customer),
			SubscriptionID: strings.TrimSpace(sub.ID),
		}, nil

	case "invoice.payment_failed":
		var inv Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return PaymentFailed{
			CustomerID: strings.TrimSpace(inv.Customer),
			InvoiceID:  strings.TrimSpace(inv.ID),
		}, nil

	default:
		return Ignored{Type: eventType}, nil
	}
}
