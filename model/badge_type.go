package model

import (
	"time"

	"gorm.io/gorm"
)

// BadgeType is a named, non-overlapping point-range tier. Active tiers
// are expected to partition the non-negative integers; that ordering is
// maintained by configuration, not by the resolver.
type BadgeType struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Name       string         `gorm:"uniqueIndex;not null" json:"name"`
	MinPoints  int            `gorm:"not null" json:"min_points"`        // inclusive
	MaxPoints  *int           `json:"max_points,omitempty"`              // inclusive; nil = unbounded
	LevelOrder int            `gorm:"not null;index" json:"level_order"` // strictly increasing with min_points
	IsActive   bool           `gorm:"default:true" json:"is_active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for BadgeType
func (BadgeType) TableName() string {
	return "badge_types"
}

// Matches reports whether total falls inside this tier's range.
func (b *BadgeType) Matches(total int) bool {
	if total < b.MinPoints {
		return false
	}
	return b.MaxPoints == nil || total <= *b.MaxPoints
}
