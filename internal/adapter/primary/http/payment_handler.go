package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/input"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SignatureHeader carries the provider's webhook signature
const SignatureHeader = "Stripe-Signature"

// PaymentHandler is a primary adapter (HTTP handler)
type PaymentHandler struct {
	settlement input.SettlementService
	payments   input.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(settlement input.SettlementService, payments input.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		settlement: settlement,
		payments:   payments,
	}
}

// CheckoutRequest represents the HTTP request to start a checkout
type CheckoutRequest struct {
	EnrollID string `json:"enrollId" validate:"required,uuid"`
}

// CheckoutResponse tells the client where to pay
type CheckoutResponse struct {
	ID          string `json:"id"`
	CheckOutURL string `json:"checkOutUrl"`
}

// RefundRequest represents the HTTP request to refund a payment
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason" validate:"omitempty,oneof=duplicate fraudulent requested_by_customer"`
}

// PaymentResponse represents the HTTP response for a payment
type PaymentResponse struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	FailureMessage *string `json:"failureMessage"`
	RefundedAt     *string `json:"refundedAt"`
	Amount         string  `json:"amount"`
	Currency       string  `json:"currency"`
	EnrollID       string  `json:"enrollId"`
	CreatedAt      string  `json:"createdAt"`
}

// PageMeta describes the returned page
type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// PaymentListResponse represents one page of payments
type PaymentListResponse struct {
	Data []PaymentResponse `json:"data"`
	Meta PageMeta          `json:"meta"`
}

// Checkout handles POST /payments/checkout
func (h *PaymentHandler) Checkout(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, core.ValidationError("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	enrollmentID, err := uuid.Parse(req.EnrollID)
	if err != nil {
		return respondError(c, core.ValidationError("enrollId must be a UUID"))
	}

	resp, err := h.settlement.InitiateCheckout(c.Request().Context(), enrollmentID, user)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, CheckoutResponse{
		ID:          resp.PaymentID.String(),
		CheckOutURL: resp.CheckoutURL,
	})
}

// Refund handles POST /payments/:id/refund
func (h *PaymentHandler) Refund(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paymentIDParam(c)
	if err != nil {
		return respondError(c, err)
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, core.ValidationError("invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}

	err = h.settlement.RequestRefund(c.Request().Context(), input.RefundRequest{
		PaymentID: id,
		User:      user,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Refund initiated"})
}

// Webhook handles POST /payments/webhook. The body is passed on byte for byte;
// re-encoding it would break the signature.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return respondError(c, core.ValidationError("unreadable request body"))
	}

	err = h.settlement.HandleProviderEvent(c.Request().Context(), payload, c.Request().Header.Get(SignatureHeader))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// ListPayments handles GET /payments
func (h *PaymentHandler) ListPayments(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	query, err := parseListQuery(c)
	if err != nil {
		return respondError(c, err)
	}

	page, err := h.payments.ListPayments(c.Request().Context(), user, query)
	if err != nil {
		return respondError(c, err)
	}

	data := make([]PaymentResponse, 0, len(page.Data))
	for i := range page.Data {
		data = append(data, toHTTPPayment(&page.Data[i]))
	}
	return c.JSON(http.StatusOK, PaymentListResponse{
		Data: data,
		Meta: PageMeta{Page: page.Page, Limit: page.Limit, Total: page.Total},
	})
}

// GetPayment handles GET /payments/:id
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paymentIDParam(c)
	if err != nil {
		return respondError(c, err)
	}

	payment, err := h.payments.GetPayment(c.Request().Context(), id, user)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, toHTTPPayment(payment))
}

// DeletePayment handles DELETE /payments/:id
func (h *PaymentHandler) DeletePayment(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paymentIDParam(c)
	if err != nil {
		return respondError(c, err)
	}

	if err := h.payments.DeletePayment(c.Request().Context(), id, user); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func paymentIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, core.ValidationError("invalid payment ID")
	}
	return id, nil
}

func parseListQuery(c echo.Context) (input.ListPaymentsQuery, error) {
	var q input.ListPaymentsQuery

	for name, dst := range map[string]*int{"page": &q.Page, "limit": &q.Limit} {
		if raw := c.QueryParam(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return q, core.ValidationError("%s must be a positive integer", name)
			}
			*dst = n
		}
	}

	for name, dst := range map[string]**decimal.Decimal{"minAmount": &q.MinAmount, "maxAmount": &q.MaxAmount} {
		if raw := c.QueryParam(name); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil || d.IsNegative() {
				return q, core.ValidationError("%s must be a non-negative number", name)
			}
			*dst = &d
		}
	}

	for _, v := range splitList(c.QueryParam("currency")) {
		q.Currencies = append(q.Currencies, core.Currency(v))
	}
	for _, v := range splitList(c.QueryParam("status")) {
		q.Statuses = append(q.Statuses, core.PaymentStatus(v))
	}
	q.SortBy = c.QueryParam("sortBy")
	q.Order = c.QueryParam("order")
	return q, nil
}

// splitList parses "a,b" query values, upper-cased
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

func toHTTPPayment(p *input.PaymentResponse) PaymentResponse {
	resp := PaymentResponse{
		ID:             p.ID.String(),
		Status:         string(p.Status),
		FailureMessage: p.FailureMessage,
		Amount:         p.Amount.StringFixed(2),
		Currency:       string(p.Currency),
		EnrollID:       p.EnrollmentID.String(),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
	if p.RefundedAt != nil {
		at := p.RefundedAt.Format(time.RFC3339)
		resp.RefundedAt = &at
	}
	return resp
}
