package input

import (
	"context"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/google/uuid"
)

// EnrollmentService is an input port for the enrollment collaborator endpoints
type EnrollmentService interface {
	Enroll(ctx context.Context, courseID uuid.UUID, user core.User) (*core.Enrollment, error)
	GetEnrollment(ctx context.Context, id uuid.UUID, user core.User) (*core.Enrollment, error)
	ListMyEnrollments(ctx context.Context, user core.User) ([]core.Enrollment, error)
}
