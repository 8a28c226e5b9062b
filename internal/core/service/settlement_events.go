package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
)

// errDuplicateEvent aborts the transaction of an event id that was already processed
var errDuplicateEvent = errors.New("provider event already processed")

// eventHandler applies one event kind inside a ledger transaction
type eventHandler func(ctx context.Context, tx output.LedgerTx, event *core.ProviderEvent) (settlement, error)

// settlement is what a handler decided; notifications are only sent after commit
type settlement struct {
	outcome       core.EventOutcome
	paymentID     *uuid.UUID
	note          string
	notifications []output.Notification
}

// HandleProviderEvent verifies a provider notification and applies it. It returns nil for every
// verified event that was applied, already applied, ignored or referenced an unknown payment, so the
// provider only retries on signature failures (which it should not) and on storage failures.
func (s *SettlementEngine) HandleProviderEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyAndDecode(payload, signature)
	if err != nil {
		return core.InvalidSignature(err)
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}

	log := logger.FromContext(ctx).With("event_id", event.ID, "event_kind", event.Kind, "provider_type", event.ProviderType)

	handle, ok := s.handlers[event.Kind]
	if !ok {
		handle = s.ignored
	}

	var result settlement
	err = s.ledger.WithinTx(uncancellable(ctx), func(tx output.LedgerTx) error {
		if event.ID != "" {
			claimed, err := tx.ClaimEvent(event)
			if err != nil {
				return fmt.Errorf("failed to archive provider event: %w", err)
			}
			if !claimed {
				return errDuplicateEvent
			}
		}

		res, err := handle(ctx, tx, event)
		if err != nil {
			return err
		}
		if event.ID != "" {
			if err := tx.ResolveEvent(event.ID, res.outcome, res.paymentID, res.note); err != nil {
				return fmt.Errorf("failed to resolve provider event: %w", err)
			}
		}
		result = res
		return nil
	})
	if errors.Is(err, errDuplicateEvent) {
		log.Info("provider event already processed")
		return nil
	}
	if err != nil {
		log.Error("failed to apply provider event", "error", err)
		return fmt.Errorf("failed to apply provider event %s: %w", event.ID, err)
	}

	log.Info("provider event settled", "outcome", result.outcome, "payment_id", result.paymentID, "note", result.note)
	s.notify(ctx, result.notifications...)
	return nil
}

func (s *SettlementEngine) onCheckoutCompleted(ctx context.Context, tx output.LedgerTx, event *core.ProviderEvent) (settlement, error) {
	payment, err := tx.LockPaymentBySession(event.SessionRef)
	if errors.Is(err, output.ErrNotFound) {
		return s.orphaned(ctx, event, "no payment for checkout session "+event.SessionRef), nil
	}
	if err != nil {
		return settlement{}, fmt.Errorf("failed to lock payment: %w", err)
	}

	switch payment.Status {
	case core.PaymentStatusSuccess:
		return noop(payment, "payment already succeeded"), nil
	case core.PaymentStatusPending:
	default:
		return s.illegal(ctx, event, payment, core.PaymentStatusSuccess), nil
	}

	now := s.now()
	if event.ChargeRef != "" {
		charge := event.ChargeRef
		payment.ChargeRef = &charge
	}
	if err := payment.TransitionTo(core.PaymentStatusSuccess, now); err != nil {
		return settlement{}, err
	}
	if err := tx.UpdatePayment(payment); err != nil {
		return settlement{}, fmt.Errorf("failed to update payment: %w", err)
	}

	note := ""
	enrollment, err := tx.LockEnrollment(payment.EnrollmentID)
	if err != nil {
		return settlement{}, fmt.Errorf("failed to lock enrollment %s: %w", payment.EnrollmentID, err)
	}
	if err := enrollment.TransitionTo(core.EnrollmentStatusActive, now); err != nil {
		// The charge is real, so the payment still settles; an operator has to sort out the enrollment.
		note = "enrollment was " + string(enrollment.Status) + ", not activated"
		logger.FromContext(ctx).Error("settled payment for an enrollment that is not pending",
			"event_id", event.ID, "payment_id", payment.ID,
			"enrollment_id", enrollment.ID, "enrollment_status", enrollment.Status)
	} else if err := tx.UpdateEnrollment(enrollment); err != nil {
		return settlement{}, fmt.Errorf("failed to activate enrollment: %w", err)
	}

	res := applied(payment, notice(payment, core.NotifyPaymentSucceeded, now))
	res.note = note
	return res, nil
}

func (s *SettlementEngine) onPaymentFailed(ctx context.Context, tx output.LedgerTx, event *core.ProviderEvent) (settlement, error) {
	payment, err := s.lockByChargeOrReference(tx, event)
	if errors.Is(err, output.ErrNotFound) {
		return s.orphaned(ctx, event, "no payment for charge "+event.ChargeRef), nil
	}
	if err != nil {
		return settlement{}, fmt.Errorf("failed to lock payment: %w", err)
	}

	switch payment.Status {
	case core.PaymentStatusFailed:
		return noop(payment, "payment already failed"), nil
	case core.PaymentStatusPending:
	default:
		return s.illegal(ctx, event, payment, core.PaymentStatusFailed), nil
	}

	now := s.now()
	if payment.ChargeRef == nil && event.ChargeRef != "" {
		charge := event.ChargeRef
		payment.ChargeRef = &charge
	}
	if event.FailureMessage != "" {
		msg := event.FailureMessage
		payment.FailureMessage = &msg
	}
	if err := payment.TransitionTo(core.PaymentStatusFailed, now); err != nil {
		return settlement{}, err
	}
	if err := tx.UpdatePayment(payment); err != nil {
		return settlement{}, fmt.Errorf("failed to update payment: %w", err)
	}
	return applied(payment, notice(payment, core.NotifyPaymentFailed, now)), nil
}

// lockByChargeOrReference finds the payment of a failed charge. A charge can fail before checkout
// completes, when the payment does not know its charge yet, so the checkout session and then the
// echoed payment id are the fallbacks.
func (s *SettlementEngine) lockByChargeOrReference(tx output.LedgerTx, event *core.ProviderEvent) (*core.Payment, error) {
	if event.ChargeRef != "" {
		payment, err := tx.LockPaymentByCharge(event.ChargeRef)
		if !errors.Is(err, output.ErrNotFound) {
			return payment, err
		}
	}
	if event.SessionRef != "" {
		payment, err := tx.LockPaymentBySession(event.SessionRef)
		if !errors.Is(err, output.ErrNotFound) {
			return payment, err
		}
	}
	id, err := uuid.Parse(event.ReferenceID)
	if err != nil {
		return nil, output.ErrNotFound
	}
	return tx.LockPaymentByID(id)
}

func (s *SettlementEngine) onChargeRefunded(ctx context.Context, tx output.LedgerTx, event *core.ProviderEvent) (settlement, error) {
	payment, err := tx.LockPaymentByCharge(event.ChargeRef)
	if errors.Is(err, output.ErrNotFound) {
		return s.orphaned(ctx, event, "no payment for charge "+event.ChargeRef), nil
	}
	if err != nil {
		return settlement{}, fmt.Errorf("failed to lock payment: %w", err)
	}

	switch payment.Status {
	case core.PaymentStatusRefunded:
		return noop(payment, "payment already refunded"), nil
	case core.PaymentStatusSuccess:
	default:
		return s.illegal(ctx, event, payment, core.PaymentStatusRefunded), nil
	}

	now := s.now()
	if event.PartialRefund {
		// Access stays granted until the whole charge is returned.
		return s.partiallyRefunded(ctx, tx, event, payment, now)
	}
	if err := payment.TransitionTo(core.PaymentStatusRefunded, now); err != nil {
		return settlement{}, err
	}
	payment.RefundedAt = &now
	if event.RefundedAmount != nil {
		amount := *event.RefundedAmount
		payment.RefundAmount = &amount
	}
	if err := tx.UpdatePayment(payment); err != nil {
		return settlement{}, fmt.Errorf("failed to update payment: %w", err)
	}

	note := ""
	enrollment, err := tx.LockEnrollment(payment.EnrollmentID)
	if err != nil {
		return settlement{}, fmt.Errorf("failed to lock enrollment %s: %w", payment.EnrollmentID, err)
	}
	if err := enrollment.TransitionTo(core.EnrollmentStatusDropped, now); err != nil {
		note = "enrollment was " + string(enrollment.Status) + ", not dropped"
		logger.FromContext(ctx).Warn("refunded payment for an enrollment that is not active",
			"event_id", event.ID, "payment_id", payment.ID,
			"enrollment_id", enrollment.ID, "enrollment_status", enrollment.Status)
	} else if err := tx.UpdateEnrollment(enrollment); err != nil {
		return settlement{}, fmt.Errorf("failed to drop enrollment: %w", err)
	}

	res := applied(payment, notice(payment, core.NotifyPaymentRefunded, now))
	res.note = note
	return res, nil
}

func (s *SettlementEngine) partiallyRefunded(ctx context.Context, tx output.LedgerTx, event *core.ProviderEvent, payment *core.Payment, now time.Time) (settlement, error) {
	if event.RefundedAmount != nil {
		amount := *event.RefundedAmount
		payment.RefundAmount = &amount
	}
	payment.UpdatedAt = now
	if err := tx.UpdatePayment(payment); err != nil {
		return settlement{}, fmt.Errorf("failed to record partial refund: %w", err)
	}
	logger.FromContext(ctx).Info("partial refund recorded, payment stays successful",
		"event_id", event.ID, "payment_id", payment.ID, "refund_amount", payment.RefundAmount)
	return noop(payment, "partial refund recorded"), nil
}

func (s *SettlementEngine) onCheckoutExpired(ctx context.Context, tx output.LedgerTx, event *core.ProviderEvent) (settlement, error) {
	payment, err := tx.LockPaymentBySession(event.SessionRef)
	if errors.Is(err, output.ErrNotFound) {
		return s.orphaned(ctx, event, "no payment for checkout session "+event.SessionRef), nil
	}
	if err != nil {
		return settlement{}, fmt.Errorf("failed to lock payment: %w", err)
	}
	if payment.IsTerminal() {
		return noop(payment, "payment already "+string(payment.Status)), nil
	}

	now := s.now()
	msg := core.ExpiredSessionMessage
	payment.FailureMessage = &msg
	if err := payment.TransitionTo(core.PaymentStatusExpired, now); err != nil {
		return settlement{}, err
	}
	if err := tx.UpdatePayment(payment); err != nil {
		return settlement{}, fmt.Errorf("failed to update payment: %w", err)
	}

	return applied(payment), nil
}

// orphaned logs an event that references no known payment. It is still acknowledged: failing
// the acknowledgment would make the provider retry forever for a record that will never appear.
func (s *SettlementEngine) orphaned(ctx context.Context, event *core.ProviderEvent, note string) settlement {
	logger.FromContext(ctx).Warn("provider event references unknown payment",
		"event_id", event.ID, "event_kind", event.Kind,
		"session_ref", event.SessionRef, "charge_ref", event.ChargeRef, "reference_id", event.ReferenceID)
	return settlement{outcome: core.OutcomeOrphaned, note: note}
}

// illegal logs a transition the state machine does not allow and leaves the payment untouched
func (s *SettlementEngine) illegal(ctx context.Context, event *core.ProviderEvent, payment *core.Payment, target core.PaymentStatus) settlement {
	logger.FromContext(ctx).Warn("illegal payment transition ignored",
		"event_id", event.ID, "event_kind", event.Kind, "payment_id", payment.ID,
		"from", payment.Status, "to", target)
	id := payment.ID
	return settlement{
		outcome:   core.OutcomeAnomaly,
		paymentID: &id,
		note:      fmt.Sprintf("illegal transition %s -> %s", payment.Status, target),
	}
}

// ignored archives an event kind settlement has no handler for
func (s *SettlementEngine) ignored(ctx context.Context, _ output.LedgerTx, event *core.ProviderEvent) (settlement, error) {
	logger.FromContext(ctx).Info("ignoring provider event", "event_id", event.ID, "provider_type", event.ProviderType)
	note := "unhandled event type " + event.ProviderType
	if event.Note != "" {
		note = event.Note
	}
	return settlement{outcome: core.OutcomeIgnored, note: note}, nil
}

func noop(payment *core.Payment, note string) settlement {
	id := payment.ID
	return settlement{outcome: core.OutcomeNoop, paymentID: &id, note: note}
}

func applied(payment *core.Payment, notifications ...output.Notification) settlement {
	id := payment.ID
	return settlement{outcome: core.OutcomeApplied, paymentID: &id, notifications: notifications}
}

func notice(payment *core.Payment, kind core.NotificationKind, at time.Time) output.Notification {
	return output.Notification{
		Kind:       kind,
		Email:      payment.CustomerEmail,
		PaymentID:  payment.ID,
		OccurredAt: at,
	}
}
