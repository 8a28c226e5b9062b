package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/input"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
)

// EnrollmentServiceImpl implements the EnrollmentService input port
type EnrollmentServiceImpl struct {
	store output.EnrollmentStore
	clock output.Clock
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(store output.EnrollmentStore, clock output.Clock) input.EnrollmentService {
	if clock == nil {
		clock = time.Now
	}
	return &EnrollmentServiceImpl{store: store, clock: clock}
}

// Enroll starts the purchase flow: a PENDING enrollment the user can check out
func (s *EnrollmentServiceImpl) Enroll(ctx context.Context, courseID uuid.UUID, user core.User) (*core.Enrollment, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, output.ErrNotFound) {
			return nil, core.NotFound("course %s not found", courseID)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	now := s.clock().UTC()
	enrollment := &core.Enrollment{
		ID:        uuid.New(),
		UserID:    user.ID,
		CourseID:  courseID,
		Status:    core.EnrollmentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, output.ErrDuplicate) {
			return nil, core.Conflict("already enrolled in course %s", courseID)
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}
	return enrollment, nil
}

// GetEnrollment retrieves one of the caller's enrollments
func (s *EnrollmentServiceImpl) GetEnrollment(ctx context.Context, id uuid.UUID, user core.User) (*core.Enrollment, error) {
	enrollment, err := s.store.GetEnrollment(ctx, id)
	if errors.Is(err, output.ErrNotFound) {
		return nil, core.NotFound("enrollment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if enrollment.UserID != user.ID {
		return nil, core.Forbidden("enrollment %s belongs to another user", id)
	}
	return enrollment, nil
}

// ListMyEnrollments lists the caller's enrollments, newest first
func (s *EnrollmentServiceImpl) ListMyEnrollments(ctx context.Context, user core.User) ([]core.Enrollment, error) {
	enrollments, err := s.store.ListEnrollmentsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}
