package model

import (
	"time"
)

// Ledger source codes. Every entry records why points moved.
const (
	PointsSourceCourseEnrollment = "COURSE_ENROLLMENT"
	PointsSourceCourseCompletion = "COURSE_COMPLETION"
	PointsSourceQuizCompletion   = "QUIZ_COMPLETION"
	PointsSourceAdminGrant       = "ADMIN_GRANT"
	PointsSourceAdminDeduct      = "ADMIN_DEDUCT"
	PointsSourceBonus            = "BONUS"
	PointsSourceReferral         = "REFERRAL"
	PointsSourceEvent            = "EVENT"
)

// PointsLedgerEntry is one immutable signed point delta. Rows are never
// updated or deleted; a correction is always a new entry with an
// opposite-sign delta. A user's total is always the sum of their rows.
type PointsLedgerEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	SourceCode    string    `gorm:"type:varchar(30);not null;index" json:"source_code"`
	Points        int       `gorm:"not null" json:"points"` // signed; deducts are stored negative
	Description   string    `gorm:"type:text" json:"description"`
	ReferenceID   *uint     `json:"reference_id,omitempty"`
	ReferenceType *string   `gorm:"type:varchar(50)" json:"reference_type,omitempty"` // e.g. "enrollment", "payment"
	CreatedAt     time.Time `json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for PointsLedgerEntry
func (PointsLedgerEntry) TableName() string {
	return "points_ledger_entries"
}
