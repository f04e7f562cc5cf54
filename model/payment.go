package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Payment status values. PENDING is the only non-terminal state:
// a payment transitions exactly once to SUCCESS or FAILED.
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusSuccess  = "SUCCESS"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

// Payment represents one purchase attempt for a course
type Payment struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"not null;index" json:"user_id"`
	CourseID         uint            `gorm:"not null;index" json:"course_id"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string          `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Status           string          `gorm:"type:varchar(20);default:'PENDING';index" json:"status"`
	GatewayName      string          `gorm:"type:varchar(50);default:'razorpay'" json:"gateway_name"`
	GatewayOrderID   string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"gateway_order_id"`
	GatewayPaymentID *string         `gorm:"type:varchar(100)" json:"gateway_payment_id,omitempty"`
	FailureReason    *string         `gorm:"type:text" json:"failure_reason,omitempty"`

	// Diagnostic side-channel only; never read back for control flow.
	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether the payment has reached a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}
