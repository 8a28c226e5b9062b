package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusExpired  PaymentStatus = "EXPIRED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Valid reports whether s is one of the known payment statuses
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// Currency represents supported currencies
type Currency string

const (
	CurrencyEGP Currency = "EGP"
	CurrencyUSD Currency = "USD"
)

// Valid reports whether c is a supported currency
func (c Currency) Valid() bool {
	return c == CurrencyEGP || c == CurrencyUSD
}

// ExpiredSessionMessage is stored as the failure message of payments whose checkout session expired.
const ExpiredSessionMessage = "Checkout session expired or user cancelled the payment"

// Payment is one attempt to collect funds for an Enrollment.
// SessionRef and ChargeRef are provider references; each is claimed by at most one Payment.
type Payment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	EnrollmentID      uuid.UUID
	Status            PaymentStatus
	SessionRef        *string
	ChargeRef         *string
	Amount            decimal.Decimal
	Currency          Currency
	CustomerEmail     string
	FailureMessage    *string
	RefundRequestedAt *time.Time
	RefundedAt        *time.Time
	RefundAmount      *decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsPending checks if payment is in pending status
func (p *Payment) IsPending() bool {
	return p.Status == PaymentStatusPending
}

// IsTerminal checks if payment has left PENDING
func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// OwnedBy reports whether the payment was made by userID
func (p *Payment) OwnedBy(userID uuid.UUID) bool {
	return p.UserID == userID
}

// WithinRefundWindow reports whether now is at most window after the payment was created.
func (p *Payment) WithinRefundWindow(now time.Time, window time.Duration) bool {
	return !now.After(p.CreatedAt.Add(window))
}

// TransitionTo moves the payment to next if the state machine allows it.
func (p *Payment) TransitionTo(next PaymentStatus, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return InvalidState("payment cannot move from %s to %s", p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = at
	return nil
}

// MinorUnits returns the amount expressed in the currency's minor unit (piastres, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
