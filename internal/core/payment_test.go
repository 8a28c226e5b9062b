package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentTransitions(t *testing.T) {
	all := []PaymentStatus{PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusRefunded}
	legal := map[[2]PaymentStatus]bool{
		{PaymentStatusPending, PaymentStatusSuccess}:  true,
		{PaymentStatusPending, PaymentStatusFailed}:   true,
		{PaymentStatusPending, PaymentStatusExpired}:  true,
		{PaymentStatusSuccess, PaymentStatusRefunded}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := legal[[2]PaymentStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestPayment_TransitionTo(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Payment{ID: uuid.New(), Status: PaymentStatusPending}

	require.NoError(t, p.TransitionTo(PaymentStatusSuccess, at))
	assert.Equal(t, PaymentStatusSuccess, p.Status)
	assert.Equal(t, at, p.UpdatedAt)

	err := p.TransitionTo(PaymentStatusFailed, at.Add(time.Minute))
	assert.True(t, IsKind(err, KindInvalidState))
	assert.Equal(t, PaymentStatusSuccess, p.Status)
	assert.Equal(t, at, p.UpdatedAt)
}

func TestEnrollmentTransitions(t *testing.T) {
	assert.True(t, EnrollmentStatusPending.CanTransitionTo(EnrollmentStatusActive))
	assert.True(t, EnrollmentStatusActive.CanTransitionTo(EnrollmentStatusDropped))
	assert.False(t, EnrollmentStatusPending.CanTransitionTo(EnrollmentStatusDropped))
	assert.False(t, EnrollmentStatusDropped.CanTransitionTo(EnrollmentStatusActive))
	assert.False(t, EnrollmentStatusCompleted.CanTransitionTo(EnrollmentStatusDropped))

	e := &Enrollment{Status: EnrollmentStatusActive}
	assert.Error(t, e.TransitionTo(EnrollmentStatusActive, time.Now()))
}

func TestWithinRefundWindow(t *testing.T) {
	window := 7 * 24 * time.Hour
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"two days old", 2 * 24 * time.Hour, true},
		{"one second inside", window - time.Second, true},
		{"exactly at the edge", window, true},
		{"one second outside", window + time.Second, false},
		{"ten days old", 10 * 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{CreatedAt: now.Add(-tt.age)}
			assert.Equal(t, tt.want, p.WithinRefundWindow(now, window))
		})
	}
}

func TestMinorUnits(t *testing.T) {
	for in, want := range map[string]int64{
		"100":    10000,
		"499.99": 49999,
		"0.5":    50,
		"10.005": 1001,
	} {
		assert.Equal(t, want, MinorUnits(decimal.RequireFromString(in)), in)
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("checkout: %w", UpstreamProviderError("create checkout session", cause))

	assert.Equal(t, KindUpstreamProvider, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Contains(t, NotFound("payment %s not found", "p1").Error(), "payment p1 not found")
}
