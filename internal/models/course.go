package models

import (
	"time"

	"gorm.io/gorm"
)

// Course represents a catalog entry. Price changes here never touch
// existing carts or orders, both capture the price at their own time.
type Course struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Title         string  `gorm:"type:varchar(255)" json:"title"`
	Description   string  `gorm:"type:text" json:"description"`
	Instructor    string  `gorm:"type:varchar(255)" json:"instructor"`
	Level         string  `gorm:"type:varchar(50)" json:"level"` // Beginner, Intermediate, Advanced
	DurationHours int     `json:"duration_hours"`
	ImageURL      string  `gorm:"type:varchar(500)" json:"image_url"`
	Price         float64 `gorm:"type:decimal(15,2)" json:"price"`
	Active        bool    `gorm:"default:true" json:"active"`
}

// IsFree reports whether the course enrolls directly without payment
func (c Course) IsFree() bool {
	return c.Price <= 0
}

// Enrollment links a user to a course they own. The (user, course)
// uniqueness is what makes re-running the paid transition harmless.
type Enrollment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID   uint `gorm:"uniqueIndex:idx_enrollments_user_course" json:"user_id"`
	CourseID uint `gorm:"uniqueIndex:idx_enrollments_user_course" json:"course_id"`

	// Relationships
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
