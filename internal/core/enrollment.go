package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EnrollmentStatus represents a learner's relationship to a course
type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
)

// Enrollment is a learner's access grant to a course. At most one exists per (user, course).
type Enrollment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	CourseID          uuid.UUID
	Status            EnrollmentStatus
	CompletedAt       *time.Time
	LastAccessedAt    *time.Time
	CertificateEarned bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsPending checks if the enrollment still waits for a successful payment
func (e *Enrollment) IsPending() bool {
	return e.Status == EnrollmentStatusPending
}

// TransitionTo moves the enrollment to next if settlement is allowed to drive that change.
func (e *Enrollment) TransitionTo(next EnrollmentStatus, at time.Time) error {
	if !e.Status.CanTransitionTo(next) {
		return InvalidState("enrollment cannot move from %s to %s", e.Status, next)
	}
	e.Status = next
	e.UpdatedAt = at
	return nil
}

// Course is the priced product an Enrollment grants access to.
type Course struct {
	ID       uuid.UUID
	Title    string
	Price    decimal.Decimal
	Currency Currency
}

// User is the authenticated caller as seen by this service.
type User struct {
	ID    uuid.UUID
	Email string
}
