package database

import (
	"github.com/cashflow/course-payments/internal/constant/model/db"
	"github.com/cashflow/course-payments/internal/core"
	"github.com/shopspring/decimal"
)

// toCorePayment converts db.Payment to core.Payment
func toCorePayment(p *db.Payment) *core.Payment {
	payment := &core.Payment{
		ID:                p.ID,
		UserID:            p.UserID,
		EnrollmentID:      p.EnrollmentID,
		Status:            core.PaymentStatus(p.Status),
		SessionRef:        p.SessionRef,
		ChargeRef:         p.ChargeRef,
		Amount:            p.Amount,
		Currency:          core.Currency(p.Currency),
		CustomerEmail:     p.CustomerEmail,
		FailureMessage:    p.FailureMessage,
		RefundRequestedAt: p.RefundRequestedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.RefundAmount.Valid {
		amount := p.RefundAmount.Decimal
		payment.RefundAmount = &amount
	}
	return payment
}

// fromCorePayment converts core.Payment to db.Payment
func fromCorePayment(p *core.Payment) *db.Payment {
	row := &db.Payment{
		ID:                p.ID,
		UserID:            p.UserID,
		EnrollmentID:      p.EnrollmentID,
		Status:            string(p.Status),
		SessionRef:        p.SessionRef,
		ChargeRef:         p.ChargeRef,
		Amount:            p.Amount,
		Currency:          string(p.Currency),
		CustomerEmail:     p.CustomerEmail,
		FailureMessage:    p.FailureMessage,
		RefundRequestedAt: p.RefundRequestedAt,
		RefundedAt:        p.RefundedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.RefundAmount != nil {
		row.RefundAmount = decimal.NewNullDecimal(*p.RefundAmount)
	}
	return row
}

func toCoreEnrollment(e *db.Enrollment) *core.Enrollment {
	return &core.Enrollment{
		ID:                e.ID,
		UserID:            e.UserID,
		CourseID:          e.CourseID,
		Status:            core.EnrollmentStatus(e.Status),
		CompletedAt:       e.CompletedAt,
		LastAccessedAt:    e.LastAccessedAt,
		CertificateEarned: e.CertificateEarned,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func fromCoreEnrollment(e *core.Enrollment) *db.Enrollment {
	return &db.Enrollment{
		ID:                e.ID,
		UserID:            e.UserID,
		CourseID:          e.CourseID,
		Status:            string(e.Status),
		CompletedAt:       e.CompletedAt,
		LastAccessedAt:    e.LastAccessedAt,
		CertificateEarned: e.CertificateEarned,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toCoreCourse(c *db.Course) *core.Course {
	return &core.Course{
		ID:       c.ID,
		Title:    c.Title,
		Price:    c.Price,
		Currency: core.Currency(c.Currency),
	}
}
