package mailer

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
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func newTestSender(d *fakeDialer) *SMTPSender {
	return &SMTPSender{from: "no-reply@courses.local", dialer: d}
}

func TestDeliver_RendersTemplatePerKind(t *testing.T) {
	paymentID := uuid.New()
	subjects := map[core.NotificationKind]string{
		core.NotifyPaymentSucceeded: "Your payment was successful",
		core.NotifyPaymentFailed:    "Your payment failed",
		core.NotifyPaymentRefunded:  "Your payment was refunded",
	}

	for kind, subject := range subjects {
		t.Run(string(kind), func(t *testing.T) {
			d := &fakeDialer{}
			err := newTestSender(d).Deliver(context.Background(), output.Notification{
				Kind:       kind,
				Email:      "learner@example.com",
				PaymentID:  paymentID,
				OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			})
			require.NoError(t, err)
			require.Len(t, d.sent, 1)

			m := d.sent[0]
			assert.Equal(t, []string{"learner@example.com"}, m.GetHeader("To"))
			assert.Equal(t, []string{subject}, m.GetHeader("Subject"))


			_, body, err := render(output.Notification{Kind: kind, PaymentID: paymentID, OccurredAt: time.Now()})
			require.NoError(t, err)
			assert.Contains(t, body, paymentID.String())
		})
	}
}

func TestDeliver_UnknownKindIsUndeliverable(t *testing.T) {
	d := &fakeDialer{}
	err := newTestSender(d).Deliver(context.Background(), output.Notification{Kind: "welcome", Email: "a@b.c"})
	assert.ErrorIs(t, err, output.ErrUndeliverable)
	assert.Empty(t, d.sent)
}

func TestDeliver_SMTPFailureIsRetryable(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	err := newTestSender(d).Deliver(context.Background(), output.Notification{
		Kind: core.NotifyPaymentFailed, Email: "a@b.c", PaymentID: uuid.New(),
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, output.ErrUndeliverable)
}
