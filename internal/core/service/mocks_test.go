package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cashflow/course-payments/internal/adapter/secondary/memory"
	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const validSignature = "sig-ok"

// fakeGateway records every call; the *Err fields make the next calls fail
type fakeGateway struct {
	mu sync.Mutex

	checkouts []output.CheckoutRequest
	refunds   []output.RefundRequest
	expired   []string

	CheckoutErr error
	RefundErr   error
	ExpireErr   error

	// OnRefund and OnExpire run inside the call, with the context the gateway received
	OnRefund func(ctx context.Context)
	OnExpire func(ctx context.Context)
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req output.CheckoutRequest) (*core.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.CheckoutErr != nil {
		return nil, g.CheckoutErr
	}
	g.checkouts = append(g.checkouts, req)
	id := fmt.Sprintf("cs_%d", len(g.checkouts))
	return &core.CheckoutSession{ID: id, RedirectURL: "https://checkout.test/" + id}, nil
}

func (g *fakeGateway) IssueRefund(ctx context.Context, req output.RefundRequest) (*core.RefundRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	g.refunds = append(g.refunds, req)
	if g.OnRefund != nil {
		g.OnRefund(ctx)
	}
	return &core.RefundRecord{ID: fmt.Sprintf("re_%d", len(g.refunds)), Status: "pending"}, nil
}

func (g *fakeGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.OnExpire != nil {
		g.OnExpire(ctx)
	}
	if g.ExpireErr != nil {
		return g.ExpireErr
	}
	g.expired = append(g.expired, sessionID)
	return nil
}

// VerifyAndDecode accepts validSignature and a JSON encoded core.ProviderEvent
func (g *fakeGateway) VerifyAndDecode(payload []byte, signature string) (*core.ProviderEvent, error) {
	if signature != validSignature {
		return nil, output.ErrInvalidSignature
	}
	var ev core.ProviderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}

func (g *fakeGateway) Checkouts() []output.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]output.CheckoutRequest(nil), g.checkouts...)
}

func (g *fakeGateway) Refunds() []output.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]output.RefundRequest(nil), g.refunds...)
}

func (g *fakeGateway) Expired() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.expired...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []output.Notification
	Err  error
}

func (n *fakeNotifier) Send(ctx context.Context, notification output.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *fakeNotifier) Sent() []output.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]output.Notification(nil), n.sent...)
}

// ctxLedger fails a transaction whose context is done by the time it would commit,
// the way a database driver does
type ctxLedger struct {
	*memory.Ledger
}

func (l ctxLedger) WithinTx(ctx context.Context, fn func(tx output.LedgerTx) error) error {
	return l.Ledger.WithinTx(ctx, func(tx output.LedgerTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// fixture is a settlement engine over the memory ledger with one PENDING enrollment
type fixture struct {
	ledger   *memory.Ledger
	gateway  *fakeGateway
	notifier *fakeNotifier
	engine   *SettlementEngine

	mu  sync.Mutex
	now time.Time

	user       core.User
	course     core.Course
	enrollment core.Enrollment
}

const refundWindow = 7 * 24 * time.Hour

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger:   memory.NewLedger(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
		now:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		user:     core.User{ID: uuid.New(), Email: "learner@example.com"},
	}
	f.engine = NewSettlementEngine(ctxLedger{f.ledger}, f.gateway, f.notifier, SettlementOptions{
		SuccessURL:   "https://app.test/success",
		CancelURL:    "https://app.test/cancel",
		RefundWindow: refundWindow,
		Clock:        f.clock,
	})
	f.course = f.addCourse("Go for Payments", "100.00")
	f.enrollment = f.addEnrollment(f.user.ID, f.course.ID)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) addCourse(title, price string) core.Course {
	c := core.Course{ID: uuid.New(), Title: title, Price: decimal.RequireFromString(price), Currency: core.CurrencyEGP}
	f.ledger.AddCourse(c)
	return c
}

func (f *fixture) addEnrollment(userID, courseID uuid.UUID) core.Enrollment {
	e := core.Enrollment{
		ID:        uuid.New(),
		UserID:    userID,
		CourseID:  courseID,
		Status:    core.EnrollmentStatusPending,
		CreatedAt: f.clock(),
		UpdatedAt: f.clock(),
	}
	f.ledger.AddEnrollment(e)
	return e
}

func (f *fixture) deliver(t *testing.T, ev core.ProviderEvent) error {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return f.engine.HandleProviderEvent(context.Background(), payload, validSignature)
}

func (f *fixture) payment(t *testing.T, id uuid.UUID) *core.Payment {
	t.Helper()
	p, err := f.ledger.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) enrollmentStatus(t *testing.T, id uuid.UUID) core.EnrollmentStatus {
	t.Helper()
	e, err := f.ledger.GetEnrollment(context.Background(), id)
	require.NoError(t, err)
	return e.Status
}

func (f *fixture) event(t *testing.T, id string) memory.EventRecord {
	t.Helper()
	for _, e := range f.ledger.Events() {
		if e.Event.ID == id {
			return e
		}
	}
	require.Failf(t, "event not archived", "event %s", id)
	return memory.EventRecord{}
}

// checkout starts a checkout for enrollment and returns the created payment
func (f *fixture) checkout(t *testing.T, enrollmentID uuid.UUID) *core.Payment {
	t.Helper()
	resp, err := f.engine.InitiateCheckout(context.Background(), enrollmentID, f.user)
	require.NoError(t, err)
	return f.payment(t, resp.PaymentID)
}

func completedEvent(id string, p *core.Payment, charge string) core.ProviderEvent {
	return core.ProviderEvent{
		ID:          id,
		Kind:        core.EventCheckoutCompleted,
		SessionRef:  *p.SessionRef,
		ChargeRef:   charge,
		ReferenceID: p.ID.String(),
	}
}

// settled returns a SUCCESS payment for the fixture enrollment
func (f *fixture) settled(t *testing.T) *core.Payment {
	t.Helper()
	p := f.checkout(t, f.enrollment.ID)
	require.NoError(t, f.deliver(t, completedEvent("evt_settle", p, "pi_1")))
	return f.payment(t, p.ID)
}
