package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind identifies which settlement handler a provider event is routed to.
type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventPaymentFailed     EventKind = "payment_failed"
	EventChargeRefunded    EventKind = "charge_refunded"
	EventCheckoutExpired   EventKind = "checkout_expired"
	EventUnknown           EventKind = "unknown"
)

// ProviderEvent is a verified, decoded provider notification.
// Which reference fields are set depends on Kind:
//   - EventCheckoutCompleted: SessionRef, ChargeRef
//   - EventPaymentFailed: ChargeRef, FailureMessage, ReferenceID when the provider echoes it,
//     SessionRef for failures of delayed checkout payments
//   - EventChargeRefunded: ChargeRef, RefundedAmount, PartialRefund
//   - EventCheckoutExpired: SessionRef
//
// Note carries why the decoder left an event as EventUnknown.
type ProviderEvent struct {
	ID             string
	Kind           EventKind
	ProviderType   string
	SessionRef     string
	ChargeRef      string
	ReferenceID    string
	FailureMessage string
	RefundedAmount *decimal.Decimal
	PartialRefund  bool
	Note           string
	Payload        []byte
	ReceivedAt     time.Time
}

// EventOutcome records what settlement did with a provider event.
type EventOutcome string

const (
	OutcomeApplied  EventOutcome = "applied"
	OutcomeNoop     EventOutcome = "noop"
	OutcomeOrphaned EventOutcome = "orphaned"
	OutcomeAnomaly  EventOutcome = "anomaly"
	OutcomeIgnored  EventOutcome = "ignored"
)

// CheckoutSession is what the provider returns for a new checkout.
type CheckoutSession struct {
	ID          string
	RedirectURL string
}

// RefundRecord is the provider's acknowledgement of a refund request.
type RefundRecord struct {
	ID     string
	Status string
}

// NotificationKind selects the user-facing message template.
type NotificationKind string

const (
	NotifyPaymentSucceeded NotificationKind = "payment_succeeded"
	NotifyPaymentFailed    NotificationKind = "payment_failed"
	NotifyPaymentRefunded  NotificationKind = "payment_refunded"
)
