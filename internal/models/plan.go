package models

import (
	"time"

	"gorm.io/gorm"
)

// Plan represents a subscription tier. The governor reads
// MaxConcurrentSessions from here; everything else is informational.
type Plan struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name                  string  `gorm:"type:varchar(100);uniqueIndex" json:"name"`
	Description           string  `gorm:"type:text" json:"description"`
	Price                 float64 `gorm:"type:decimal(15,2)" json:"price"`
	MaxConcurrentSessions int     `gorm:"default:1" json:"max_concurrent_sessions"`
	Active                bool    `gorm:"default:true" json:"active"`
}
