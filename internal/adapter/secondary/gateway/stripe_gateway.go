package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/logger"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// referenceKey is the metadata key that carries our payment id through Stripe objects
const referenceKey = "paymentId"

// StripeConfig holds the Stripe credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base URL; empty means api.stripe.com
	APIURL string
}

// StripeGateway is a secondary adapter that implements the ProviderGateway output port on Stripe Checkout
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

var _ output.ProviderGateway = (*StripeGateway)(nil)

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &StripeGateway{api: api, webhookSecret: cfg.WebhookSecret}
}

// CreateCheckoutSession opens a one-item hosted checkout priced in minor units
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req output.CheckoutRequest) (*core.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.ReferenceID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(string(req.Currency))),
					UnitAmount: stripe.Int64(core.MinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{referenceKey: req.ReferenceID},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(referenceKey, req.ReferenceID)
	params.SetIdempotencyKey("checkout-" + req.ReferenceID)
	params.Context = ctx

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &core.CheckoutSession{ID: session.ID, RedirectURL: session.URL}, nil
}

// IssueRefund refunds the payment intent recorded as the payment's charge reference
func (g *StripeGateway) IssueRefund(ctx context.Context, req output.RefundRequest) (*core.RefundRecord, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ChargeID),
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(core.MinorUnits(*req.Amount))
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create refund: %w", err)
	}
	return &core.RefundRecord{ID: refund.ID, Status: string(refund.Status)}, nil
}

// ExpireCheckoutSession closes an open checkout session
func (g *StripeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session %s: %w", sessionID, err)
	}
	return nil
}

// VerifyAndDecode checks the Stripe-Signature header and maps the event onto a ProviderEvent.
// Event types settlement does not handle decode to core.EventUnknown. Once the signature holds the
// event is always returned, even when its object cannot be decoded, so that it is acknowledged.
func (g *StripeGateway) VerifyAndDecode(payload []byte, signature string) (*core.ProviderEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(output.ErrInvalidSignature, err)
	}

	event := &core.ProviderEvent{
		ID:           ev.ID,
		Kind:         core.EventUnknown,
		ProviderType: string(ev.Type),
		Payload:      payload,
	}
	if ev.Data == nil {
		return event, nil
	}

	switch string(ev.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if !decodeObject(ev, &session, event) {
			break
		}
		event.SessionRef = session.ID
		event.ReferenceID = session.ClientReferenceID
		if session.PaymentIntent != nil {
			event.ChargeRef = session.PaymentIntent.ID
		}
		switch session.PaymentStatus {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
			event.Kind = core.EventCheckoutCompleted
		default:
			// Delayed payment methods complete the session before any money moves.
			event.Note = "checkout completed with payment status " + string(session.PaymentStatus)
		}

	case "checkout.session.async_payment_failed":
		var session stripe.CheckoutSession
		if !decodeObject(ev, &session, event) {
			break
		}
		event.Kind = core.EventPaymentFailed
		event.SessionRef = session.ID
		event.ReferenceID = session.ClientReferenceID
		if session.PaymentIntent != nil {
			event.ChargeRef = session.PaymentIntent.ID
		}
		event.FailureMessage = asyncPaymentFailedMessage

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if !decodeObject(ev, &session, event) {
			break
		}
		event.Kind = core.EventCheckoutExpired
		event.SessionRef = session.ID
		event.ReferenceID = session.ClientReferenceID

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if !decodeObject(ev, &intent, event) {
			break
		}
		event.Kind = core.EventPaymentFailed
		event.ChargeRef = intent.ID
		event.ReferenceID = intent.Metadata[referenceKey]
		if intent.LastPaymentError != nil {
			event.FailureMessage = intent.LastPaymentError.Msg
		}

	case "charge.refunded":
		var charge stripe.Charge
		if !decodeObject(ev, &charge, event) {
			break
		}
		event.Kind = core.EventChargeRefunded
		if charge.PaymentIntent != nil {
			event.ChargeRef = charge.PaymentIntent.ID
		}
		event.ReferenceID = charge.Metadata[referenceKey]
		refunded := decimal.New(charge.AmountRefunded, -2)
		event.RefundedAmount = &refunded
		event.PartialRefund = !charge.Refunded
	}

	return event, nil
}

// asyncPaymentFailedMessage is stored on payments whose delayed payment method failed after checkout
const asyncPaymentFailedMessage = "The delayed payment for this checkout failed"

// decodeObject unmarshals the event's data object into v. On failure the event stays
// core.EventUnknown with a note, since a verified payload will not decode any better on retry.
func decodeObject(ev stripe.Event, v any, event *core.ProviderEvent) bool {
	if err := json.Unmarshal(ev.Data.Raw, v); err != nil {
		logger.Get().Warn("stripe: verified event object could not be decoded",
			"event_id", ev.ID, "event_type", ev.Type, "error", err)
		event.Note = fmt.Sprintf("undecodable %s object: %v", ev.Type, err)
		return false
	}
	return true
}
