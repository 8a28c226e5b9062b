package output

import (
	"context"
	"errors"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by stores when a referenced record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by stores when a uniqueness constraint rejects a write
	ErrDuplicate = errors.New("duplicate record")
)

// LedgerStore is an output port (secondary port) for transactional access to payments and enrollments.
// Every Payment/Enrollment transition runs inside WithinTx: fn's writes commit together when it returns
// nil and are discarded together otherwise.
type LedgerStore interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the unit of work handed to WithinTx. Lock* methods hold the row until the
// transaction ends, so read-check-write sequences on the same payment serialize.
type LedgerTx interface {
	// LockEnrollment loads an enrollment for update
	LockEnrollment(id uuid.UUID) (*core.Enrollment, error)
	// GetCourse loads the course an enrollment refers to
	GetCourse(id uuid.UUID) (*core.Course, error)
	// HasPendingPayment reports whether the enrollment already has a PENDING payment
	HasPendingPayment(enrollmentID uuid.UUID) (bool, error)

	LockPaymentByID(id uuid.UUID) (*core.Payment, error)
	LockPaymentBySession(sessionRef string) (*core.Payment, error)
	LockPaymentByCharge(chargeRef string) (*core.Payment, error)

	CreatePayment(payment *core.Payment) error
	UpdatePayment(payment *core.Payment) error
	DeletePayment(id uuid.UUID) error
	UpdateEnrollment(enrollment *core.Enrollment) error

	// ClaimEvent archives a provider event. It returns false when the event id was already claimed.
	ClaimEvent(event *core.ProviderEvent) (bool, error)
	// ResolveEvent records what settlement did with a claimed event
	ResolveEvent(eventID string, outcome core.EventOutcome, paymentID *uuid.UUID, note string) error
}

// PaymentReader is an output port for read-only payment projections
type PaymentReader interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*core.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]core.Payment, int64, error)
}

// PaymentSortField is a column payments can be ordered by
type PaymentSortField string

const (
	SortByCreatedAt PaymentSortField = "createdAt"
	SortByAmount    PaymentSortField = "amount"
	SortByCurrency  PaymentSortField = "currency"
)

// PaymentFilter narrows a payment listing. Zero values mean "no constraint".
type PaymentFilter struct {
	UserID     uuid.UUID
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Currencies []core.Currency
	Statuses   []core.PaymentStatus
	SortBy     PaymentSortField
	Descending bool
	Limit      int
	Offset     int
}

// EnrollmentStore is an output port for the enrollment collaborator
type EnrollmentStore interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*core.Course, error)
	CreateEnrollment(ctx context.Context, enrollment *core.Enrollment) error
	GetEnrollment(ctx context.Context, id uuid.UUID) (*core.Enrollment, error)
	ListEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]core.Enrollment, error)
}

// Clock returns the current time; injected so refund windows can be tested at their edges.
type Clock func() time.Time
