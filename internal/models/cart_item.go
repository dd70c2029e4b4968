package models

import "time"

// CartItem holds one paid course in a user's cart. PriceAtAdd freezes the
// catalog price at insertion time so later edits don't reprice open carts.
// Rows are hard-deleted; a soft delete would block re-adding a course
// after the cart is cleared.
type CartItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID     uint    `gorm:"uniqueIndex:idx_cart_user_course" json:"user_id"`
	CourseID   uint    `gorm:"uniqueIndex:idx_cart_user_course" json:"course_id"`
	PriceAtAdd float64 `gorm:"type:decimal(15,2)" json:"price_at_add"`

	// Relationships
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
