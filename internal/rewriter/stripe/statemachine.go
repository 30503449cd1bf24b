package stripe

import (
	"context"
	"fmt"

	"github.com/rewritemessage/rewriter/internal/logging"
	"github.com/rewritemessage/rewriter/internal/rewriter/registry"
	"github.com/rewritemessage/rewriter/internal/rewriter/rwmetrics"
)

// Outcome describes what Apply did.
type Outcome struct {
	AccountID       string
	Tier            registry.Tier
	SubscriptionRef string
	// Applied is false when the event carried no transition or matched no
	// account.
	Applied bool
}

// StateMachine derives account tiers from billing events. Each transition is
// a full overwrite of tier and subscription reference, so redelivered or
// reordered events converge.
type StateMachine struct {
	store registry.Store
}

// NewStateMachine creates a state machine over store.
func NewStateMachine(store registry.Store) *StateMachine {
	return &StateMachine{store: store}
}

// Apply processes one event. Events for unknown customers are no-ops.
// Store failures are returned so the processor redelivers.
func (m *StateMachine) Apply(ctx context.Context, ev Event) (Outcome, error) {
	logger := logging.FromContext(ctx)
	switch e := ev.(type) {
	case SubscriptionChanged:
		tier := TierForStatus(e.Status)
		ref := ""
		if tier == registry.TierPro {
			ref = e.SubscriptionID
		}
		return m.transition(ctx, e.EventType(), e.CustomerID, tier, ref)

	case SubscriptionDeleted:
		return m.transition(ctx, e.EventType(), e.CustomerID, registry.TierFree, "")

	case PaymentFailed:
		a, err := m.lookup(ctx, e.CustomerID)
		if err != nil {
			return Outcome{}, err
		}
		if a == nil {
			logger.Info().Str("customer_id", e.CustomerID).Msg("invoice.payment_failed: account not found")
			return Outcome{}, nil
		}
		logger.Warn().
			Str("account_id", a.ID).
			Str("customer_id", e.CustomerID).
			Str("invoice_id", e.InvoiceID).
			Str("email", a.Email).
			Msg("Payment failed")
		return Outcome{AccountID: a.ID, Tier: a.Tier, SubscriptionRef: a.SubscriptionRef}, nil

	case Ignored:
		logger.Info().Str("type", e.Type).Msg("Stripe webhook ignored (unhandled type)")
		return Outcome{}, nil

	default:
		return Outcome{}, fmt.Errorf("unsupported billing event %T", ev)
	}
}

func (m *StateMachine) transition(ctx context.Context, eventType, customerID string, tier registry.Tier, ref string) (Outcome, error) {
	logger := logging.FromContext(ctx)
	a, err := m.lookup(ctx, customerID)
	if err != nil {
		return Outcome{}, err
	}
	if a == nil {
		logger.Warn().Str("customer_id", customerID).Str("type", eventType).Msg("Billing event for unknown customer ignored")
		return Outcome{}, nil
	}

	if err := m.store.SetSubscription(ctx, a.ID, tier, ref); err != nil {
		return Outcome{}, fmt.Errorf("set subscription for account %s: %w", a.ID, err)
	}
	rwmetrics.TierTransitionsTotal.WithLabelValues(string(tier)).Inc()

	logger.Info().
		Str("account_id", a.ID).
		Str("customer_id", customerID).
		Str("type", eventType).
		Str("from", string(a.Tier)).
		Str("to", string(tier)).
		Msg("Account tier updated")

	return Outcome{AccountID: a.ID, Tier: tier, SubscriptionRef: ref, Applied: true}, nil
}

func (m *StateMachine) lookup(ctx context.Context, customerID string) (*registry.Account, error) {
	if !IsSafeStripeID(customerID) {
		return nil, nil
	}
	a, err := m.store.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("lookup account by customer: %w", err)
	}
	return a, nil
}
