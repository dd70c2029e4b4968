package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the type of user
type UserType string

const (
	UserTypeAdmin  UserType = "Admin"
	UserTypeMember UserType = "Member"
)

// User represents a registered marketplace user
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name         string   `gorm:"type:varchar(255)" json:"name"`
	LastName     string   `gorm:"type:varchar(255)" json:"last_name"`
	Email        string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	PasswordHash string   `gorm:"type:varchar(255)" json:"-"`
	Phone        string   `gorm:"type:varchar(50)" json:"phone"`
	UserType     UserType `gorm:"type:varchar(20);default:'Member'" json:"user_type"`
	Active       bool     `gorm:"default:true" json:"active"`

	// PlanID determines the concurrent session cap via the associated Plan
	PlanID uint `gorm:"index;default:1" json:"plan_id"`

	// Relationships
	Plan        Plan         `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Enrollments []Enrollment `gorm:"foreignKey:UserID" json:"enrollments,omitempty"`
	Orders      []Order      `gorm:"foreignKey:UserID" json:"orders,omitempty"`
}
