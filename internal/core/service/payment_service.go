package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/input"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 10
)

// PaymentServiceImpl implements the PaymentService input port
type PaymentServiceImpl struct {
	reader         output.PaymentReader
	ledger         output.LedgerStore
	gateway        output.ProviderGateway
	gatewayTimeout time.Duration
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	reader output.PaymentReader,
	ledger output.LedgerStore,
	gateway output.ProviderGateway,
) input.PaymentService {
	return &PaymentServiceImpl{
		reader:         reader,
		ledger:         ledger,
		gateway:        gateway,
		gatewayTimeout: defaultGatewayTimeout,
	}
}

// GetPayment retrieves one of the caller's payments
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, id uuid.UUID, user core.User) (*input.PaymentResponse, error) {
	payment, err := s.reader.GetPayment(ctx, id)
	if errors.Is(err, output.ErrNotFound) {
		return nil, core.NotFound("payment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if !payment.OwnedBy(user.ID) {
		return nil, core.Forbidden("payment %s belongs to another user", id)
	}

	resp := toPaymentResponse(payment)
	return &resp, nil
}

// ListPayments returns one page of the caller's payments
func (s *PaymentServiceImpl) ListPayments(ctx context.Context, user core.User, query input.ListPaymentsQuery) (*input.PaymentListResponse, error) {
	filter, err := buildFilter(user, query)
	if err != nil {
		return nil, err
	}

	payments, total, err := s.reader.ListPayments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	data := make([]input.PaymentResponse, 0, len(payments))
	for i := range payments {
		data = append(data, toPaymentResponse(&payments[i]))
	}
	return &input.PaymentListResponse{
		Data:  data,
		Page:  filter.Offset/filter.Limit + 1,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

func buildFilter(user core.User, q input.ListPaymentsQuery) (output.PaymentFilter, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	filter := output.PaymentFilter{
		UserID:     user.ID,
		MinAmount:  q.MinAmount,
		MaxAmount:  q.MaxAmount,
		Currencies: q.Currencies,
		Statuses:   q.Statuses,
		SortBy:     output.SortByCreatedAt,
		Descending: true,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}

	if q.MinAmount != nil && q.MaxAmount != nil && q.MinAmount.GreaterThan(*q.MaxAmount) {
		return filter, core.ValidationError("minAmount must not exceed maxAmount")
	}
	for _, c := range q.Currencies {
		if !c.Valid() {
			return filter, core.ValidationError("unsupported currency %q", c)
		}
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return filter, core.ValidationError("unknown payment status %q", st)
		}
	}

	switch output.PaymentSortField(q.SortBy) {
	case "", output.SortByCreatedAt:
	case output.SortByAmount, output.SortByCurrency:
		filter.SortBy = output.PaymentSortField(q.SortBy)
	default:
		return filter, core.ValidationError("cannot sort by %q", q.SortBy)
	}

	switch strings.ToUpper(q.Order) {
	case "", "DESC":
	case "ASC":
		filter.Descending = false
	default:
		return filter, core.ValidationError("order must be ASC or DESC")
	}
	return filter, nil
}

// DeletePayment removes one of the caller's PENDING payments after expiring its checkout session,
// so the provider can no longer collect money for a record that is gone.
func (s *PaymentServiceImpl) DeletePayment(ctx context.Context, id uuid.UUID, user core.User) error {
	err := s.ledger.WithinTx(uncancellable(ctx), func(tx output.LedgerTx) error {
		payment, err := tx.LockPaymentByID(id)
		if errors.Is(err, output.ErrNotFound) {
			return core.NotFound("payment %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		if !payment.OwnedBy(user.ID) {
			return core.Forbidden("payment %s belongs to another user", id)
		}
		if !payment.IsPending() {
			return core.InvalidState("payment is %s and is kept as a financial record", payment.Status)
		}

		if payment.SessionRef != nil {
			gctx, cancel := boundedGatewayContext(ctx, s.gatewayTimeout)
			defer cancel()
			if err := s.gateway.ExpireCheckoutSession(gctx, *payment.SessionRef); err != nil {
				return core.UpstreamProviderError("expire checkout session", err)
			}
		}
		if err := tx.DeletePayment(id); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Info("pending payment deleted", "payment_id", id)
	return nil
}

func toPaymentResponse(p *core.Payment) input.PaymentResponse {
	return input.PaymentResponse{
		ID:             p.ID,
		Status:         p.Status,
		FailureMessage: p.FailureMessage,
		RefundedAt:     p.RefundedAt,
		Amount:         p.Amount,
		Currency:       p.Currency,
		EnrollmentID:   p.EnrollmentID,
		CreatedAt:      p.CreatedAt,
	}
}
