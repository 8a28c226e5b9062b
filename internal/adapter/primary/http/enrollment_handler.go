package http

import (
	"net/http"
	"time"

	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/input"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// EnrollmentHandler serves the enrollment endpoints checkout depends on
type EnrollmentHandler struct {
	enrollments input.EnrollmentService
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollments input.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// EnrollmentResponse represents the HTTP response for an enrollment
type EnrollmentResponse struct {
	ID        string `json:"id"`
	CourseID  string `json:"courseId"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// Enroll handles POST /courses/:courseId/enroll
func (h *EnrollmentHandler) Enroll(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		return respondError(c, core.ValidationError("invalid course ID"))
	}

	enrollment, err := h.enrollments.Enroll(c.Request().Context(), courseID, user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toHTTPEnrollment(enrollment))
}

// ListMine handles GET /enrollments/me
func (h *EnrollmentHandler) ListMine(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	enrollments, err := h.enrollments.ListMyEnrollments(c.Request().Context(), user)
	if err != nil {
		return respondError(c, err)
	}

	out := make([]EnrollmentResponse, 0, len(enrollments))
	for i := range enrollments {
		out = append(out, toHTTPEnrollment(&enrollments[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

// GetEnrollment handles GET /enrollments/:id
func (h *EnrollmentHandler) GetEnrollment(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return respondError(c, core.ValidationError("invalid enrollment ID"))
	}

	enrollment, err := h.enrollments.GetEnrollment(c.Request().Context(), id, user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toHTTPEnrollment(enrollment))
}

func toHTTPEnrollment(e *core.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:        e.ID.String(),
		CourseID:  e.CourseID.String(),
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
