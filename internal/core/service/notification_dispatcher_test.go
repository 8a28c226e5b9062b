package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type senderFunc func(ctx context.Context, n output.Notification) error

func (f senderFunc) Deliver(ctx context.Context, n output.Notification) error { return f(ctx, n) }

func TestDispatch(t *testing.T) {
	var delivered []output.Notification
	d := NewNotificationDispatcher(senderFunc(func(ctx context.Context, n output.Notification) error {
		delivered = append(delivered, n)
		return nil
	}))

	n := output.Notification{Kind: core.NotifyPaymentSucceeded, Email: "learner@example.com", PaymentID: uuid.New(), OccurredAt: time.Now()}
	require.NoError(t, d.Dispatch(context.Background(), n))
	assert.Equal(t, []output.Notification{n}, delivered)

	err := d.Dispatch(context.Background(), output.Notification{Kind: core.NotifyPaymentFailed, PaymentID: uuid.New()})
	assert.ErrorIs(t, err, output.ErrUndeliverable)

	err = d.Dispatch(context.Background(), output.Notification{Kind: "newsletter", Email: "learner@example.com"})
	assert.ErrorIs(t, err, output.ErrUndeliverable)
	assert.Len(t, delivered, 1)
}

func TestDispatch_SenderFailureIsRetryable(t *testing.T) {
	d := NewNotificationDispatcher(senderFunc(func(context.Context, output.Notification) error {
		return errors.New("421 service not available")
	}))

	err := d.Dispatch(context.Background(), output.Notification{Kind: core.NotifyPaymentRefunded, Email: "a@b.c", PaymentID: uuid.New()})
	require.Error(t, err)
	assert.NotErrorIs(t, err, output.ErrUndeliverable)
}
