package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashflow/course-payments/internal/constant/model/db"
	"github.com/cashflow/course-payments/internal/core"
	"github.com/cashflow/course-payments/internal/port/output"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger is a secondary adapter that implements the LedgerStore output port on PostgreSQL
type GormLedger struct {
	gormDB *gorm.DB
}

// NewGormLedger creates a new GORM ledger store
func NewGormLedger(gormDB *gorm.DB) *GormLedger {
	return &GormLedger{gormDB: gormDB}
}

var _ output.LedgerStore = (*GormLedger)(nil)

// WithinTx runs fn in one database transaction; any error rolls the whole unit back
func (l *GormLedger) WithinTx(ctx context.Context, fn func(tx output.LedgerTx) error) error {
	return l.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{tx: tx})
	})
}

type gormLedgerTx struct {
	tx *gorm.DB
}

// forUpdate locks the selected rows until the transaction ends (SELECT ... FOR UPDATE)
func (t *gormLedgerTx) forUpdate() *gorm.DB {
	return t.tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormLedgerTx) LockEnrollment(id uuid.UUID) (*core.Enrollment, error) {
	var row db.Enrollment
	if err := t.forUpdate().Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFoundOr(err, "failed to lock enrollment")
	}
	return toCoreEnrollment(&row), nil
}

func (t *gormLedgerTx) GetCourse(id uuid.UUID) (*core.Course, error) {
	var row db.Course
	if err := t.tx.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFoundOr(err, "failed to get course")
	}
	return toCoreCourse(&row), nil
}

func (t *gormLedgerTx) HasPendingPayment(enrollmentID uuid.UUID) (bool, error) {
	var count int64
	if err := t.tx.Model(&db.Payment{}).
		Where("enrollment_id = ? AND status = ?", enrollmentID, core.PaymentStatusPending).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check pending payments: %w", err)
	}
	return count > 0, nil
}

func (t *gormLedgerTx) LockPaymentByID(id uuid.UUID) (*core.Payment, error) {
	return t.lockPayment("id = ?", id)
}

func (t *gormLedgerTx) LockPaymentBySession(sessionRef string) (*core.Payment, error) {
	if sessionRef == "" {
		return nil, output.ErrNotFound
	}
	return t.lockPayment("session_ref = ?", sessionRef)
}

func (t *gormLedgerTx) LockPaymentByCharge(chargeRef string) (*core.Payment, error) {
	if chargeRef == "" {
		return nil, output.ErrNotFound
	}
	return t.lockPayment("charge_ref = ?", chargeRef)
}

func (t *gormLedgerTx) lockPayment(query string, arg any) (*core.Payment, error) {
	var row db.Payment
	if err := t.forUpdate().Where(query, arg).First(&row).Error; err != nil {
		return nil, notFoundOr(err, "failed to lock payment")
	}
	return toCorePayment(&row), nil
}

func (t *gormLedgerTx) CreatePayment(payment *core.Payment) error {
	row := fromCorePayment(payment)
	if err := t.tx.Omit(clause.Associations).Create(row).Error; err != nil {
		return duplicateOr(err, "failed to create payment")
	}
	payment.CreatedAt = row.CreatedAt
	payment.UpdatedAt = row.UpdatedAt
	return nil
}

func (t *gormLedgerTx) UpdatePayment(payment *core.Payment) error {
	if err := t.tx.Omit(clause.Associations).Save(fromCorePayment(payment)).Error; err != nil {
		return duplicateOr(err, "failed to update payment")
	}
	return nil
}

func (t *gormLedgerTx) DeletePayment(id uuid.UUID) error {
	if err := t.tx.Where("id = ?", id).Delete(&db.Payment{}).Error; err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return nil
}

func (t *gormLedgerTx) UpdateEnrollment(enrollment *core.Enrollment) error {
	if err := t.tx.Omit(clause.Associations).Save(fromCoreEnrollment(enrollment)).Error; err != nil {
		return fmt.Errorf("failed to update enrollment: %w", err)
	}
	return nil
}

func (t *gormLedgerTx) ClaimEvent(event *core.ProviderEvent) (bool, error) {
	row := db.ProviderEvent{
		EventID:      event.ID,
		Kind:         string(event.Kind),
		ProviderType: event.ProviderType,
		SessionRef:   optional(event.SessionRef),
		ChargeRef:    optional(event.ChargeRef),
		Payload:      datatypes.JSON(event.Payload),
		Outcome:      "received",
		ReceivedAt:   event.ReceivedAt,
	}
	res := t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to archive provider event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (t *gormLedgerTx) ResolveEvent(eventID string, outcome core.EventOutcome, paymentID *uuid.UUID, note string) error {
	err := t.tx.Model(&db.ProviderEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"outcome":      string(outcome),
			"payment_id":   paymentID,
			"note":         note,
			"processed_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to resolve provider event: %w", err)
	}
	return nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return output.ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func duplicateOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", msg, output.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
