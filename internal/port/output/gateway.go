package output

import (
	"context"
	"errors"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/shopspring/decimal"
)

// ErrInvalidSignature is returned by VerifyAndDecode when the payload was not signed by the provider
var ErrInvalidSignature = errors.New("invalid signature")

// ProviderGateway is an output port (secondary port) for the external payment processor.
// Implementations hold no settlement state.
type ProviderGateway interface {
	// CreateCheckoutSession opens a hosted checkout for one payment
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*core.CheckoutSession, error)

	// IssueRefund refunds a confirmed charge. Amount nil refunds the full charge.
	IssueRefund(ctx context.Context, req RefundRequest) (*core.RefundRecord, error)

	// ExpireCheckoutSession closes an open checkout so it can no longer be paid
	ExpireCheckoutSession(ctx context.Context, sessionID string) error

	// VerifyAndDecode checks signature against the untouched request body and decodes it
	VerifyAndDecode(payload []byte, signature string) (*core.ProviderEvent, error)
}

// CheckoutRequest describes the checkout session to open
type CheckoutRequest struct {
	Amount        decimal.Decimal
	Currency      core.Currency
	ReferenceID   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Description   string
}

// RefundRequest describes a refund of a captured charge
type RefundRequest struct {
	ChargeID       string
	Amount         *decimal.Decimal
	Reason         string
	IdempotencyKey string
}
