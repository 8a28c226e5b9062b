package database

import (
	"context"
	"fmt"

	"github.com/cashflow/course-payments/internal/constant/model/db"
	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentReader implements the PaymentReader and EnrollmentStore output ports
type GormPaymentReader struct {
	gormDB *gorm.DB
}

// NewGormPaymentReader creates a new GORM-backed reader
func NewGormPaymentReader(gormDB *gorm.DB) *GormPaymentReader {
	return &GormPaymentReader{gormDB: gormDB}
}

var (
	_ output.PaymentReader   = (*GormPaymentReader)(nil)
	_ output.EnrollmentStore = (*GormPaymentReader)(nil)
)

var sortColumns = map[output.PaymentSortField]string{
	output.SortByCreatedAt: "created_at",
	output.SortByAmount:    "amount",
	output.SortByCurrency:  "currency",
}

// GetPayment retrieves a payment by its ID
func (r *GormPaymentReader) GetPayment(ctx context.Context, id uuid.UUID) (*core.Payment, error) {
	var row db.Payment
	if err := r.gormDB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFoundOr(err, "failed to get payment")
	}
	return toCorePayment(&row), nil
}

// ListPayments returns the filtered page and the total number of matching payments
func (r *GormPaymentReader) ListPayments(ctx context.Context, f output.PaymentFilter) ([]core.Payment, int64, error) {
	q := r.gormDB.WithContext(ctx).Model(&db.Payment{}).Where("user_id = ?", f.UserID)

	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if len(f.Currencies) > 0 {
		q = q.Where("currency IN ?", stringsOf(f.Currencies))
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", stringsOf(f.Statuses))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}

	var rows []db.Payment
	err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: f.Descending}).
		Order("id").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	payments := make([]core.Payment, 0, len(rows))
	for i := range rows {
		payments = append(payments, *toCorePayment(&rows[i]))
	}
	return payments, total, nil
}

// GetCourse retrieves a course by its ID
func (r *GormPaymentReader) GetCourse(ctx context.Context, id uuid.UUID) (*core.Course, error) {
	var row db.Course
	if err := r.gormDB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFoundOr(err, "failed to get course")
	}
	return toCoreCourse(&row), nil
}

// CreateEnrollment inserts a new enrollment; a second one for the same (user, course) is a duplicate
func (r *GormPaymentReader) CreateEnrollment(ctx context.Context, enrollment *core.Enrollment) error {
	row := fromCoreEnrollment(enrollment)
	if err := r.gormDB.WithContext(ctx).Omit(clause.Associations).Create(row).Error; err != nil {
		return duplicateOr(err, "failed to create enrollment")
	}
	return nil
}

// GetEnrollment retrieves an enrollment by its ID
func (r *GormPaymentReader) GetEnrollment(ctx context.Context, id uuid.UUID) (*core.Enrollment, error) {
	var row db.Enrollment
	if err := r.gormDB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFoundOr(err, "failed to get enrollment")
	}
	return toCoreEnrollment(&row), nil
}

// ListEnrollmentsByUser lists a user's enrollments, newest first
func (r *GormPaymentReader) ListEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]core.Enrollment, error) {
	var rows []db.Enrollment
	if err := r.gormDB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	enrollments := make([]core.Enrollment, 0, len(rows))
	for i := range rows {
		enrollments = append(enrollments, *toCoreEnrollment(&rows[i]))
	}
	return enrollments, nil
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
