package input

import (
	"context"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementService is an input port (primary port) for the payment settlement flow
type SettlementService interface {
	// InitiateCheckout opens a provider checkout for a PENDING enrollment owned by user
	InitiateCheckout(ctx context.Context, enrollmentID uuid.UUID, user core.User) (*CheckoutResponse, error)

	// HandleProviderEvent verifies and applies one provider notification.
	// payload must be the raw request body.
	HandleProviderEvent(ctx context.Context, payload []byte, signature string) error

	// RequestRefund asks the provider to refund a successful payment
	RequestRefund(ctx context.Context, req RefundRequest) error
}

// PaymentService is an input port for payment projections and cleanup
type PaymentService interface {
	GetPayment(ctx context.Context, id uuid.UUID, user core.User) (*PaymentResponse, error)
	ListPayments(ctx context.Context, user core.User, query ListPaymentsQuery) (*PaymentListResponse, error)
	DeletePayment(ctx context.Context, id uuid.UUID, user core.User) error
}

// CheckoutResponse carries the created payment and where to send the user
type CheckoutResponse struct {
	PaymentID   uuid.UUID
	CheckoutURL string
}

// RefundRequest represents a user's refund request
type RefundRequest struct {
	PaymentID uuid.UUID
	User      core.User
	Amount    *decimal.Decimal
	Reason    string
}

// ListPaymentsQuery represents the listing parameters accepted from clients
type ListPaymentsQuery struct {
	Page       int
	Limit      int
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Currencies []core.Currency
	Statuses   []core.PaymentStatus
	SortBy     string
	Order      string
}

// PaymentResponse is the public projection of a payment; provider references are never exposed
type PaymentResponse struct {
	ID             uuid.UUID
	Status         core.PaymentStatus
	FailureMessage *string
	RefundedAt     *time.Time
	Amount         decimal.Decimal
	Currency       core.Currency
	EnrollmentID   uuid.UUID
	CreatedAt      time.Time
}

// PaymentListResponse is one page of payments
type PaymentListResponse struct {
	Data  []PaymentResponse
	Page  int
	Limit int
	Total int64
}
