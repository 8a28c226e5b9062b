package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/input"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
)

const defaultGatewayTimeout = 20 * time.Second

// SettlementOptions configures a SettlementEngine
type SettlementOptions struct {
	SuccessURL     string
	CancelURL      string
	RefundWindow   time.Duration
	GatewayTimeout time.Duration
	Clock          output.Clock
}

// SettlementEngine applies the payment state machine to checkout requests, refund requests
// and provider events. It keeps no payment state between calls; the ledger is the only source of truth.
type SettlementEngine struct {
	ledger   output.LedgerStore
	gateway  output.ProviderGateway
	notifier output.Notifier
	opts     SettlementOptions
	handlers map[core.EventKind]eventHandler
}

var _ input.SettlementService = (*SettlementEngine)(nil)

// NewSettlementEngine creates a new settlement engine
func NewSettlementEngine(
	ledger output.LedgerStore,
	gateway output.ProviderGateway,
	notifier output.Notifier,
	opts SettlementOptions,
) *SettlementEngine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = defaultGatewayTimeout
	}
	s := &SettlementEngine{
		ledger:   ledger,
		gateway:  gateway,
		notifier: notifier,
		opts:     opts,
	}
	s.handlers = map[core.EventKind]eventHandler{
		core.EventCheckoutCompleted: s.onCheckoutCompleted,
		core.EventPaymentFailed:     s.onPaymentFailed,
		core.EventChargeRefunded:    s.onChargeRefunded,
		core.EventCheckoutExpired:   s.onCheckoutExpired,
	}
	return s
}

func (s *SettlementEngine) now() time.Time {
	return s.opts.Clock().UTC()
}

func (s *SettlementEngine) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundedGatewayContext(ctx, s.opts.GatewayTimeout)
}

// boundedGatewayContext detaches a provider call from the caller's cancellation; only timeout bounds it.
// A provider call that started must not be abandoned halfway.
func boundedGatewayContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// uncancellable keeps a ledger transaction running when the client goes away. Once the provider
// has acted, the local record of it must still commit.
func uncancellable(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// InitiateCheckout creates a PENDING payment for a PENDING enrollment and opens a provider checkout.
// Nothing is persisted unless the provider returned a session.
func (s *SettlementEngine) InitiateCheckout(ctx context.Context, enrollmentID uuid.UUID, user core.User) (*input.CheckoutResponse, error) {
	log := logger.FromContext(ctx)

	var (
		payment *core.Payment
		session *core.CheckoutSession
	)
	err := s.ledger.WithinTx(uncancellable(ctx), func(tx output.LedgerTx) error {
		enrollment, err := tx.LockEnrollment(enrollmentID)
		if errors.Is(err, output.ErrNotFound) {
			return core.NotFound("enrollment %s not found", enrollmentID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock enrollment: %w", err)
		}
		if enrollment.UserID != user.ID || !enrollment.IsPending() {
			return core.NotFound("no pending enrollment %s for this user", enrollmentID)
		}

		pending, err := tx.HasPendingPayment(enrollment.ID)
		if err != nil {
			return fmt.Errorf("failed to check pending payments: %w", err)
		}
		if pending {
			return core.Conflict("enrollment %s already has a pending payment", enrollmentID)
		}

		course, err := tx.GetCourse(enrollment.CourseID)
		if err != nil {
			return fmt.Errorf("failed to load course %s: %w", enrollment.CourseID, err)
		}

		now := s.now()
		payment = &core.Payment{
			ID:            uuid.New(),
			UserID:        user.ID,
			EnrollmentID:  enrollment.ID,
			Status:        core.PaymentStatusPending,
			Amount:        course.Price,
			Currency:      course.Currency,
			CustomerEmail: user.Email,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		gctx, cancel := s.gatewayContext(ctx)
		defer cancel()
		session, err = s.gateway.CreateCheckoutSession(gctx, output.CheckoutRequest{
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			ReferenceID:   payment.ID.String(),
			CustomerEmail: user.Email,
			SuccessURL:    s.opts.SuccessURL,
			CancelURL:     s.opts.CancelURL,
			Description:   fmt.Sprintf("Enrollment for %s", course.Title),
		})
		if err != nil {
			return core.UpstreamProviderError("create checkout session", err)
		}
		payment.SessionRef = &session.ID

		if err := tx.CreatePayment(payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	})
	if err != nil {
		if session != nil {
			s.expireOrphanSession(ctx, session.ID)
		}
		return nil, err
	}

	log.Info("checkout initiated",
		"payment_id", payment.ID,
		"enrollment_id", payment.EnrollmentID,
		"amount", payment.Amount.StringFixed(2),
		"currency", payment.Currency)

	return &input.CheckoutResponse{PaymentID: payment.ID, CheckoutURL: session.RedirectURL}, nil
}

// expireOrphanSession closes a provider session whose payment row never committed
func (s *SettlementEngine) expireOrphanSession(ctx context.Context, sessionID string) {
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()
	if err := s.gateway.ExpireCheckoutSession(gctx, sessionID); err != nil {
		logger.FromContext(ctx).Error("failed to expire orphaned checkout session",
			"session_ref", sessionID, "error", err)
	}
}

// RequestRefund validates eligibility and asks the provider for a refund. The payment stays
// SUCCESS with RefundRequestedAt set; REFUNDED is only recorded once the provider confirms.
func (s *SettlementEngine) RequestRefund(ctx context.Context, req input.RefundRequest) error {
	if req.Amount != nil && !req.Amount.IsPositive() {
		return core.ValidationError("refund amount must be greater than zero")
	}

	var refund *core.RefundRecord
	err := s.ledger.WithinTx(uncancellable(ctx), func(tx output.LedgerTx) error {
		payment, err := tx.LockPaymentByID(req.PaymentID)
		if errors.Is(err, output.ErrNotFound) {
			return core.NotFound("payment %s not found", req.PaymentID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		if !payment.OwnedBy(req.User.ID) {
			return core.Forbidden("payment %s belongs to another user", req.PaymentID)
		}
		if payment.Status != core.PaymentStatusSuccess {
			return core.InvalidState("payment is %s, only successful payments can be refunded", payment.Status)
		}
		if payment.RefundRequestedAt != nil {
			return core.InvalidState("a refund was already requested for payment %s", req.PaymentID)
		}

		now := s.now()
		if !payment.WithinRefundWindow(now, s.opts.RefundWindow) {
			return core.RefundIneligible("payment cannot be refunded more than %s after purchase", s.opts.RefundWindow)
		}
		if req.Amount != nil && req.Amount.GreaterThan(payment.Amount) {
			return core.ValidationError("refund amount exceeds the paid amount %s", payment.Amount.StringFixed(2))
		}
		if payment.ChargeRef == nil {
			return core.InvalidState("payment %s has no confirmed charge", req.PaymentID)
		}

		gctx, cancel := s.gatewayContext(ctx)
		defer cancel()
		refund, err = s.gateway.IssueRefund(gctx, output.RefundRequest{
			ChargeID:       *payment.ChargeRef,
			Amount:         req.Amount,
			Reason:         req.Reason,
			IdempotencyKey: "refund-" + payment.ID.String(),
		})
		if err != nil {
			return core.UpstreamProviderError("issue refund", err)
		}

		amount := payment.Amount
		if req.Amount != nil {
			amount = *req.Amount
		}
		payment.RefundRequestedAt = &now
		payment.RefundAmount = &amount
		payment.UpdatedAt = now
		if err := tx.UpdatePayment(payment); err != nil {
			return fmt.Errorf("failed to record refund request: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Info("refund requested",
		"payment_id", req.PaymentID, "refund_ref", refund.ID, "refund_status", refund.Status)
	return nil
}

// notify delivers notifications after commit. Failures are logged and never reach the caller.
func (s *SettlementEngine) notify(ctx context.Context, notifications ...output.Notification) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range notifications {
		if err := s.notifier.Send(ctx, n); err != nil {
			logger.FromContext(ctx).Warn("failed to send notification",
				"kind", n.Kind, "payment_id", n.PaymentID, "error", err)
		}
	}
}
