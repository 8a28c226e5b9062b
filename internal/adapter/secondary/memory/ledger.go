// Package memory holds an in-process ledger used by tests and by LEDGER_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
)

// EventRecord is an archived provider event and its settlement outcome
type EventRecord struct {
	Event       core.ProviderEvent
	Outcome     core.EventOutcome
	PaymentID   *uuid.UUID
	Note        string
	ProcessedAt *time.Time
}

type state struct {
	courses     map[uuid.UUID]core.Course
	enrollments map[uuid.UUID]core.Enrollment
	payments    map[uuid.UUID]core.Payment
	events      map[string]EventRecord
}

func (s *state) clone() *state {
	c := &state{
		courses:     make(map[uuid.UUID]core.Course, len(s.courses)),
		enrollments: make(map[uuid.UUID]core.Enrollment, len(s.enrollments)),
		payments:    make(map[uuid.UUID]core.Payment, len(s.payments)),
		events:      make(map[string]EventRecord, len(s.events)),
	}
	for k, v := range s.courses {
		c.courses[k] = v
	}
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

// Ledger keeps courses, enrollments, payments and provider events in maps.
// Transactions run one at a time against a private copy that replaces the
// committed state only when the transaction function returns nil.
type Ledger struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state

	failMu sync.RWMutex
	failOn func(op string) error
}

var (
	_ output.LedgerStore     = (*Ledger)(nil)
	_ output.PaymentReader   = (*Ledger)(nil)
	_ output.EnrollmentStore = (*Ledger)(nil)
)

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{st: (&state{}).clone()}
}

// FailOn installs a hook consulted before every write; a non-nil error aborts the write.
// Ops are the LedgerTx method names plus "CreateEnrollment". Pass nil to clear.
func (l *Ledger) FailOn(fn func(op string) error) {
	l.failMu.Lock()
	defer l.failMu.Unlock()
	l.failOn = fn
}

func (l *Ledger) fail(op string) error {
	l.failMu.RLock()
	defer l.failMu.RUnlock()
	if l.failOn == nil {
		return nil
	}
	return l.failOn(op)
}

// AddCourse seeds a course
func (l *Ledger) AddCourse(course core.Course) {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.courses[course.ID] = course
}

// AddEnrollment seeds an enrollment
func (l *Ledger) AddEnrollment(enrollment core.Enrollment) {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.enrollments[enrollment.ID] = enrollment
}

// Payments returns every committed payment, oldest first
func (l *Ledger) Payments() []core.Payment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Payment, 0, len(l.st.payments))
	for _, p := range l.st.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Events returns every archived provider event
func (l *Ledger) Events() []EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]EventRecord, 0, len(l.st.events))
	for _, e := range l.st.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.ReceivedAt.Before(out[j].Event.ReceivedAt) })
	return out
}

// WithinTx runs fn against a private copy of the ledger and commits it if fn succeeds
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx output.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.RLock()
	work := l.st.clone()
	l.mu.RUnlock()

	if err := fn(&ledgerTx{ledger: l, st: work}); err != nil {
		return err
	}

	l.mu.Lock()
	l.st = work
	l.mu.Unlock()
	return nil
}

type ledgerTx struct {
	ledger *Ledger
	st     *state
}

func (t *ledgerTx) LockEnrollment(id uuid.UUID) (*core.Enrollment, error) {
	e, ok := t.st.enrollments[id]
	if !ok {
		return nil, output.ErrNotFound
	}
	return &e, nil
}

func (t *ledgerTx) GetCourse(id uuid.UUID) (*core.Course, error) {
	c, ok := t.st.courses[id]
	if !ok {
		return nil, output.ErrNotFound
	}
	return &c, nil
}

func (t *ledgerTx) HasPendingPayment(enrollmentID uuid.UUID) (bool, error) {
	for _, p := range t.st.payments {
		if p.EnrollmentID == enrollmentID && p.IsPending() {
			return true, nil
		}
	}
	return false, nil
}

func (t *ledgerTx) LockPaymentByID(id uuid.UUID) (*core.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, output.ErrNotFound
	}
	return &p, nil
}

func (t *ledgerTx) LockPaymentBySession(sessionRef string) (*core.Payment, error) {
	return t.findPayment(func(p *core.Payment) bool {
		return p.SessionRef != nil && *p.SessionRef == sessionRef
	})
}

func (t *ledgerTx) LockPaymentByCharge(chargeRef string) (*core.Payment, error) {
	return t.findPayment(func(p *core.Payment) bool {
		return p.ChargeRef != nil && *p.ChargeRef == chargeRef
	})
}

func (t *ledgerTx) findPayment(match func(p *core.Payment) bool) (*core.Payment, error) {
	for _, p := range t.st.payments {
		if match(&p) {
			return &p, nil
		}
	}
	return nil, output.ErrNotFound
}

func (t *ledgerTx) CreatePayment(payment *core.Payment) error {
	if err := t.ledger.fail("CreatePayment"); err != nil {
		return err
	}
	if _, ok := t.st.payments[payment.ID]; ok {
		return output.ErrDuplicate
	}
	if err := t.checkRefs(payment); err != nil {
		return err
	}
	t.st.payments[payment.ID] = *payment
	return nil
}

func (t *ledgerTx) UpdatePayment(payment *core.Payment) error {
	if err := t.ledger.fail("UpdatePayment"); err != nil {
		return err
	}
	if _, ok := t.st.payments[payment.ID]; !ok {
		return output.ErrNotFound
	}
	if err := t.checkRefs(payment); err != nil {
		return err
	}
	t.st.payments[payment.ID] = *payment
	return nil
}

// checkRefs enforces that a provider reference belongs to one payment at most
func (t *ledgerTx) checkRefs(payment *core.Payment) error {
	for id, p := range t.st.payments {
		if id == payment.ID {
			continue
		}
		if sameRef(p.SessionRef, payment.SessionRef) || sameRef(p.ChargeRef, payment.ChargeRef) {
			return output.ErrDuplicate
		}
	}
	return nil
}

func sameRef(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (t *ledgerTx) DeletePayment(id uuid.UUID) error {
	if err := t.ledger.fail("DeletePayment"); err != nil {
		return err
	}
	delete(t.st.payments, id)
	return nil
}

func (t *ledgerTx) UpdateEnrollment(enrollment *core.Enrollment) error {
	if err := t.ledger.fail("UpdateEnrollment"); err != nil {
		return err
	}
	if _, ok := t.st.enrollments[enrollment.ID]; !ok {
		return output.ErrNotFound
	}
	t.st.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (t *ledgerTx) ClaimEvent(event *core.ProviderEvent) (bool, error) {
	if err := t.ledger.fail("ClaimEvent"); err != nil {
		return false, err
	}
	if _, ok := t.st.events[event.ID]; ok {
		return false, nil
	}
	t.st.events[event.ID] = EventRecord{Event: *event, Outcome: "received"}
	return true, nil
}

func (t *ledgerTx) ResolveEvent(eventID string, outcome core.EventOutcome, paymentID *uuid.UUID, note string) error {
	if err := t.ledger.fail("ResolveEvent"); err != nil {
		return err
	}
	rec, ok := t.st.events[eventID]
	if !ok {
		return output.ErrNotFound
	}
	now := time.Now().UTC()
	rec.Outcome = outcome
	rec.PaymentID = paymentID
	rec.Note = note
	rec.ProcessedAt = &now
	t.st.events[eventID] = rec
	return nil
}

// GetPayment returns a committed payment
func (l *Ledger) GetPayment(ctx context.Context, id uuid.UUID) (*core.Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.st.payments[id]
	if !ok {
		return nil, output.ErrNotFound
	}
	return &p, nil
}

// ListPayments filters, sorts and pages committed payments
func (l *Ledger) ListPayments(ctx context.Context, f output.PaymentFilter) ([]core.Payment, int64, error) {
	l.mu.RLock()
	matched := make([]core.Payment, 0)
	for _, p := range l.st.payments {
		if matches(&p, f) {
			matched = append(matched, p)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		c := compare(&matched[i], &matched[j], f.SortBy)
		if c == 0 {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		if f.Descending {
			return c > 0
		}
		return c < 0
	})

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []core.Payment{}, total, nil
	}
	end := len(matched)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func matches(p *core.Payment, f output.PaymentFilter) bool {
	if p.UserID != f.UserID {
		return false
	}
	if f.MinAmount != nil && p.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && p.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if len(f.Currencies) > 0 && !contains(f.Currencies, p.Currency) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, p.Status) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func compare(a, b *core.Payment, field output.PaymentSortField) int {
	switch field {
	case output.SortByAmount:
		return a.Amount.Cmp(b.Amount)
	case output.SortByCurrency:
		switch {
		case a.Currency < b.Currency:
			return -1
		case a.Currency > b.Currency:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// GetCourse returns a committed course
func (l *Ledger) GetCourse(ctx context.Context, id uuid.UUID) (*core.Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.st.courses[id]
	if !ok {
		return nil, output.ErrNotFound
	}
	return &c, nil
}

// CreateEnrollment stores a new enrollment; a second one for the same user and course is a duplicate
func (l *Ledger) CreateEnrollment(ctx context.Context, enrollment *core.Enrollment) error {
	if err := l.fail("CreateEnrollment"); err != nil {
		return err
	}
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.st.enrollments {
		if e.UserID == enrollment.UserID && e.CourseID == enrollment.CourseID {
			return output.ErrDuplicate
		}
	}
	l.st.enrollments[enrollment.ID] = *enrollment
	return nil
}

// GetEnrollment returns a committed enrollment
func (l *Ledger) GetEnrollment(ctx context.Context, id uuid.UUID) (*core.Enrollment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.st.enrollments[id]
	if !ok {
		return nil, output.ErrNotFound
	}
	return &e, nil
}

// ListEnrollmentsByUser lists a user's enrollments, newest first
func (l *Ledger) ListEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]core.Enrollment, error) {
	l.mu.RLock()
	out := make([]core.Enrollment, 0)
	for _, e := range l.st.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
