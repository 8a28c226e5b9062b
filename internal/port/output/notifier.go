package output

import (
	"context"
	"errors"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/google/uuid"
)

// Notifier is an output port (secondary port) for user-facing messages.
// Callers treat it as fire-and-forget: a returned error is logged, never propagated.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// Notification is one message to deliver
type Notification struct {
	Kind       core.NotificationKind `json:"kind"`
	Email      string                `json:"email"`
	PaymentID  uuid.UUID             `json:"paymentId"`
	OccurredAt time.Time             `json:"occurredAt"`
}

// ErrUndeliverable marks notifications that can never be delivered; retrying them is pointless
var ErrUndeliverable = errors.New("undeliverable notification")

// NotificationSender is an output port for the channel that finally reaches the user (email)
type NotificationSender interface {
	Deliver(ctx context.Context, notification Notification) error
}
