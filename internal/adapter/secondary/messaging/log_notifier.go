package messaging

import (
	"context"

	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/output"
)

// LogNotifier writes notifications to the log instead of publishing them. Used when no broker is configured.
type LogNotifier struct{}

var _ output.Notifier = LogNotifier{}

func (LogNotifier) Send(ctx context.Context, n output.Notification) error {
	logger.FromContext(ctx).Info("notification",
		"kind", n.Kind, "email", n.Email, "payment_id", n.PaymentID, "occurred_at", n.OccurredAt)
	return nil
}
