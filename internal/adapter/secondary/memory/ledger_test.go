package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPayment(t *testing.T, l *Ledger, userID uuid.UUID, amount string, currency core.Currency, createdAt time.Time) core.Payment {
	t.Helper()
	session := "cs_" + uuid.NewString()
	p := core.Payment{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     core.PaymentStatusPending,
		SessionRef: &session,
		Amount:     decimal.RequireFromString(amount),
		Currency:   currency,
		CreatedAt:  createdAt,
	}
	require.NoError(t, l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		return tx.CreatePayment(&p)
	}))
	return p
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	l := NewLedger()
	enrollment := core.Enrollment{ID: uuid.New(), UserID: uuid.New(), Status: core.EnrollmentStatusPending}
	l.AddEnrollment(enrollment)

	boom := errors.New("boom")
	err := l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		p := core.Payment{ID: uuid.New(), EnrollmentID: enrollment.ID, Status: core.PaymentStatusPending}
		require.NoError(t, tx.CreatePayment(&p))

		e, err := tx.LockEnrollment(enrollment.ID)
		require.NoError(t, err)
		e.Status = core.EnrollmentStatusActive
		require.NoError(t, tx.UpdateEnrollment(e))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Empty(t, l.Payments())
	got, err := l.GetEnrollment(context.Background(), enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, core.EnrollmentStatusPending, got.Status)
}

func TestWithinTx_FailOnAbortsWrite(t *testing.T) {
	l := NewLedger()
	l.FailOn(func(op string) error {
		if op == "CreatePayment" {
			return errors.New("disk full")
		}
		return nil
	})

	err := l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		return tx.CreatePayment(&core.Payment{ID: uuid.New()})
	})
	assert.EqualError(t, err, "disk full")

	l.FailOn(nil)
	seedPayment(t, l, uuid.New(), "10", core.CurrencyUSD, time.Now())
	assert.Len(t, l.Payments(), 1)
}

func TestProviderRefsAreUnique(t *testing.T) {
	l := NewLedger()
	first := seedPayment(t, l, uuid.New(), "10", core.CurrencyUSD, time.Now())

	err := l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		return tx.CreatePayment(&core.Payment{ID: uuid.New(), SessionRef: first.SessionRef})
	})
	assert.ErrorIs(t, err, output.ErrDuplicate)

	charge := "pi_1"
	require.NoError(t, l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		p, err := tx.LockPaymentByID(first.ID)
		require.NoError(t, err)
		p.ChargeRef = &charge
		return tx.UpdatePayment(p)
	}))

	second := seedPayment(t, l, uuid.New(), "10", core.CurrencyUSD, time.Now())
	err = l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		p, err := tx.LockPaymentByID(second.ID)
		require.NoError(t, err)
		p.ChargeRef = &charge
		return tx.UpdatePayment(p)
	})
	assert.ErrorIs(t, err, output.ErrDuplicate)

	require.NoError(t, l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
		p, err := tx.LockPaymentByCharge(charge)
		require.NoError(t, err)
		assert.Equal(t, first.ID, p.ID)
		return nil
	}))
}

func TestClaimEvent_OnlyOnce(t *testing.T) {
	l := NewLedger()
	event := &core.ProviderEvent{ID: "evt_1", Kind: core.EventCheckoutCompleted, ReceivedAt: time.Now()}

	for i, want := range []bool{true, false} {
		require.NoError(t, l.WithinTx(context.Background(), func(tx output.LedgerTx) error {
			claimed, err := tx.ClaimEvent(event)
			require.NoError(t, err)
			assert.Equal(t, want, claimed, "attempt %d", i)
			if claimed {
				return tx.ResolveEvent(event.ID, core.OutcomeApplied, nil, "")
			}
			return nil
		}))
	}

	events := l.Events()
	require.Len(t, events, 1)
	assert.Equal(t, core.OutcomeApplied, events[0].Outcome)
	assert.NotNil(t, events[0].ProcessedAt)
}

func TestListPayments_FiltersSortsAndPages(t *testing.T) {
	l := NewLedger()
	user := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := seedPayment(t, l, user, "100", core.CurrencyEGP, base)
	b := seedPayment(t, l, user, "250", core.CurrencyUSD, base.Add(time.Hour))
	c := seedPayment(t, l, user, "50", core.CurrencyEGP, base.Add(2*time.Hour))
	seedPayment(t, l, uuid.New(), "75", core.CurrencyEGP, base)

	got, total, err := l.ListPayments(context.Background(), output.PaymentFilter{UserID: user, Descending: true, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []uuid.UUID{c.ID, b.ID, a.ID}, ids(got))

	minAmount := decimal.NewFromInt(60)
	got, total, err = l.ListPayments(context.Background(), output.PaymentFilter{
		UserID:     user,
		MinAmount:  &minAmount,
		Currencies: []core.Currency{core.CurrencyEGP},
		SortBy:     output.SortByAmount,
		Limit:      10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []uuid.UUID{a.ID}, ids(got))

	got, total, err = l.ListPayments(context.Background(), output.PaymentFilter{
		UserID: user, SortBy: output.SortByAmount, Limit: 2, Offset: 2,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Equal(t, []uuid.UUID{b.ID}, ids(got))
}

func TestCreateEnrollment_Duplicate(t *testing.T) {
	l := NewLedger()
	user, course := uuid.New(), uuid.New()

	require.NoError(t, l.CreateEnrollment(context.Background(), &core.Enrollment{ID: uuid.New(), UserID: user, CourseID: course}))
	err := l.CreateEnrollment(context.Background(), &core.Enrollment{ID: uuid.New(), UserID: user, CourseID: course})
	assert.ErrorIs(t, err, output.ErrDuplicate)
}

func ids(payments []core.Payment) []uuid.UUID {
	out := make([]uuid.UUID, len(payments))
	for i, p := range payments {
		out[i] = p.ID
	}
	return out
}
