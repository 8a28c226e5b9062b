package service

import (
	"context"
	"testing"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnroll(t *testing.T) {
	f := newFixture(t)
	svc := NewEnrollmentService(f.ledger, f.clock)
	course := f.addCourse("Distributed Systems", "300")

	e, err := svc.Enroll(context.Background(), course.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, core.EnrollmentStatusPending, e.Status)
	assert.Equal(t, f.clock(), e.CreatedAt)

	_, err = svc.Enroll(context.Background(), course.ID, f.user)
	assert.True(t, core.IsKind(err, core.KindConflict), "%v", err)

	_, err = svc.Enroll(context.Background(), uuid.New(), f.user)
	assert.True(t, core.IsKind(err, core.KindNotFound), "%v", err)

	// a fresh enrollment can be checked out straight away
	resp, err := f.engine.InitiateCheckout(context.Background(), e.ID, f.user)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.PaymentID)
}

func TestGetEnrollment_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	svc := NewEnrollmentService(f.ledger, f.clock)

	got, err := svc.GetEnrollment(context.Background(), f.enrollment.ID, f.user)
	require.NoError(t, err)
	assert.Equal(t, f.enrollment.ID, got.ID)

	_, err = svc.GetEnrollment(context.Background(), f.enrollment.ID, core.User{ID: uuid.New()})
	assert.True(t, core.IsKind(err, core.KindForbidden), "%v", err)

	mine, err := svc.ListMyEnrollments(context.Background(), f.user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
