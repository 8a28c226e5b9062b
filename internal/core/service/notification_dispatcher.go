package service

import (
	"context"
	"fmt"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/output"
)

// NotificationDispatcher delivers queued notifications on the worker side
type NotificationDispatcher struct {
	sender output.NotificationSender
}

// NewNotificationDispatcher creates a new notification dispatcher
func NewNotificationDispatcher(sender output.NotificationSender) *NotificationDispatcher {
	return &NotificationDispatcher{sender: sender}
}

// Dispatch delivers one notification. Errors wrapping output.ErrUndeliverable must not be retried.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, n output.Notification) error {
	if n.Email == "" {
		return fmt.Errorf("%w: payment %s has no recipient", output.ErrUndeliverable, n.PaymentID)
	}
	switch n.Kind {
	case core.NotifyPaymentSucceeded, core.NotifyPaymentFailed, core.NotifyPaymentRefunded:
	default:
		return fmt.Errorf("%w: unknown kind %q", output.ErrUndeliverable, n.Kind)
	}

	if err := d.sender.Deliver(ctx, n); err != nil {
		return fmt.Errorf("failed to deliver %s for payment %s: %w", n.Kind, n.PaymentID, err)
	}

	logger.FromContext(ctx).Info("notification delivered", "kind", n.Kind, "payment_id", n.PaymentID)
	return nil
}
