package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Course status values
const (
	CourseStatusDraft     = "DRAFT"
	CourseStatusPublished = "PUBLISHED"
	CourseStatusArchived  = "ARCHIVED"
)

// Course represents a purchasable course in the catalog
type Course struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
	Title       string          `gorm:"not null" json:"title"`
	Slug        string          `gorm:"uniqueIndex;not null" json:"slug"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Currency    string          `gorm:"type:varchar(10);default:'INR'" json:"currency"`
	Status      string          `gorm:"type:varchar(20);default:'DRAFT';index" json:"status"` // DRAFT, PUBLISHED, ARCHIVED
	IsActive    bool            `gorm:"default:true" json:"is_active"`

	// Denormalized counter, only ever incremented inside the settlement
	// transaction so it cannot drift from the enrollments table.
	EnrollmentCount int `gorm:"default:0" json:"enrollment_count"`

	// Relationships
	Enrollments []Enrollment `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
	Payments    []Payment    `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Course
func (Course) TableName() string {
	return "courses"
}

// IsPurchasable reports whether the course can currently accept paid orders.
func (c *Course) IsPurchasable() bool {
	return c.IsActive && c.Status == CourseStatusPublished
}

// IsFree reports whether the course bypasses the payment flow entirely.
func (c *Course) IsFree() bool {
	return !c.Price.IsPositive()
}
