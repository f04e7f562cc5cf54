package model

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment status values
const (
	EnrollmentStatusEnrolled  = "ENROLLED"
	EnrollmentStatusCompleted = "COMPLETED"
)

// Enrollment represents a user's access grant to a course. The composite
// unique index on (user_id, course_id) is the final arbiter against
// concurrent double-settlement.
type Enrollment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;uniqueIndex:idx_enrollments_user_course" json:"user_id"`
	CourseID        uint           `gorm:"not null;uniqueIndex:idx_enrollments_user_course" json:"course_id"`
	Status          string         `gorm:"type:varchar(20);default:'ENROLLED'" json:"status"`
	EnrolledAt      time.Time      `gorm:"not null" json:"enrolled_at"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"` // nil = lifetime access
	ProgressPercent int            `gorm:"default:0" json:"progress_percent"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"course,omitempty"`
}

// TableName specifies the table name for Enrollment
func (Enrollment) TableName() string {
	return "enrollments"
}
