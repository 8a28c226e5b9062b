package database

import (
	"errors"
	"testing"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPaymentMapping_RoundTripsOptionalFields(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	session := "cs_1"
	refund := decimal.RequireFromString("25.50")

	payment := &core.Payment{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		EnrollmentID:      uuid.New(),
		Status:            core.PaymentStatusRefunded,
		SessionRef:        &session,
		Amount:            decimal.RequireFromString("100.00"),
		Currency:          core.CurrencyEGP,
		CustomerEmail:     "learner@example.com",
		RefundRequestedAt: &at,
		RefundedAt:        &at,
		RefundAmount:      &refund,
		CreatedAt:         at,
		UpdatedAt:         at,
	}

	row := fromCorePayment(payment)
	assert.Equal(t, "REFUNDED", row.Status)
	assert.Equal(t, "EGP", row.Currency)
	require.True(t, row.RefundAmount.Valid)
	assert.True(t, row.RefundAmount.Decimal.Equal(refund))

	back := toCorePayment(row)
	assert.Equal(t, payment.ID, back.ID)
	assert.Equal(t, payment.Status, back.Status)
	assert.Nil(t, back.ChargeRef)
	require.NotNil(t, back.RefundAmount)
	assert.True(t, back.RefundAmount.Equal(refund))
}

func TestPaymentMapping_NoRefundAmount(t *testing.T) {
	row := fromCorePayment(&core.Payment{ID: uuid.New(), Status: core.PaymentStatusPending})
	assert.False(t, row.RefundAmount.Valid)
	assert.Nil(t, toCorePayment(row).RefundAmount)
}

func TestEnrollmentMapping(t *testing.T) {
	e := &core.Enrollment{ID: uuid.New(), UserID: uuid.New(), CourseID: uuid.New(), Status: core.EnrollmentStatusActive}
	back := toCoreEnrollment(fromCoreEnrollment(e))
	assert.Equal(t, e, back)
}

func TestErrorTranslation(t *testing.T) {
	assert.ErrorIs(t, notFoundOr(gorm.ErrRecordNotFound, "lock payment"), output.ErrNotFound)

	boom := errors.New("connection reset")
	err := notFoundOr(boom, "lock payment")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, output.ErrNotFound)

	assert.ErrorIs(t, duplicateOr(gorm.ErrDuplicatedKey, "create payment"), output.ErrDuplicate)
	assert.NotErrorIs(t, duplicateOr(boom, "create payment"), output.ErrDuplicate)
}

func TestOptional(t *testing.T) {
	assert.Nil(t, optional(""))
	require.NotNil(t, optional("pi_1"))
	assert.Equal(t, "pi_1", *optional("pi_1"))
}
