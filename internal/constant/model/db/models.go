package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Course represents a purchasable course in the database
type Course struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Title     string          `gorm:"type:varchar(255);not null" json:"title"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Currency  string          `gorm:"type:varchar(3);not null;default:EGP" json:"currency"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Course) TableName() string {
	return "courses"
}

// Enrollment represents a learner's enrollment in the database.
// (user_id, course_id) is unique: a pair is enrolled at most once.
type Enrollment struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID            uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_enrollments_user_course,priority:1;index:idx_enrollments_user_status,priority:1" json:"user_id"`
	CourseID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_enrollments_user_course,priority:2" json:"course_id"`
	Course            *Course    `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	Status            string     `gorm:"type:varchar(20);not null;default:PENDING;index:idx_enrollments_user_status,priority:2" json:"status"`
	CompletedAt       *time.Time `json:"completed_at"`
	LastAccessedAt    *time.Time `json:"last_accessed_at"`
	CertificateEarned bool       `gorm:"not null;default:false" json:"certificate_earned"`
	CreatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Enrollment) TableName() string {
	return "enrollments"
}

// Payment represents a payment attempt in the database.
// session_ref and charge_ref are unique when present; NULLs do not collide.
type Payment struct {
	ID                uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	UserID            uuid.UUID           `gorm:"type:uuid;not null;index" json:"user_id"`
	EnrollmentID      uuid.UUID           `gorm:"type:uuid;not null;index" json:"enroll_id"`
	Enrollment        *Enrollment         `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"-"`
	Status            string              `gorm:"type:varchar(20);not null;index" json:"status"`
	SessionRef        *string             `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	ChargeRef         *string             `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	Amount            decimal.Decimal     `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency          string              `gorm:"type:varchar(3);not null" json:"currency"`
	CustomerEmail     string              `gorm:"type:varchar(255);not null" json:"-"`
	FailureMessage    *string             `gorm:"type:text" json:"failure_message"`
	RefundRequestedAt *time.Time          `json:"refund_requested_at"`
	RefundedAt        *time.Time          `json:"refunded_at"`
	RefundAmount      decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"refund_amount"`
	CreatedAt         time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a record
func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// ProviderEvent archives a verified provider notification and what settlement did with it.
// event_id is unique, which makes re-deliveries of the same event detectable.
type ProviderEvent struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	EventID      string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"event_id"`
	Kind         string         `gorm:"type:varchar(40);not null;index" json:"kind"`
	ProviderType string         `gorm:"type:varchar(100);not null" json:"provider_type"`
	SessionRef   *string        `gorm:"type:varchar(255)" json:"session_ref"`
	ChargeRef    *string        `gorm:"type:varchar(255)" json:"charge_ref"`
	PaymentID    *uuid.UUID     `gorm:"type:uuid;index" json:"payment_id"`
	Payload      datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	Outcome      string         `gorm:"type:varchar(20);not null;default:received" json:"outcome"`
	Note         string         `gorm:"type:text" json:"note"`
	ReceivedAt   time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt  *time.Time     `json:"processed_at"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName specifies the table name for GORM
func (ProviderEvent) TableName() string {
	return "provider_events"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (e *ProviderEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
