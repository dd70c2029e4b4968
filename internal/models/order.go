package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// OrderPaymentStatus mirrors the payment side of an order
type OrderPaymentStatus string

const (
	OrderPaymentPending   OrderPaymentStatus = "pending"
	OrderPaymentCompleted OrderPaymentStatus = "completed"
	OrderPaymentFailed    OrderPaymentStatus = "failed"
	OrderPaymentRefunded  OrderPaymentStatus = "refunded"
)

// Order is an immutable snapshot of a cart at checkout time. Billing data
// is captured as values, not foreign keys, and totals are computed once at
// creation. Only the status columns ever change afterwards.
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderNumber string `gorm:"type:varchar(30);uniqueIndex" json:"order_number"`
	UserID      uint   `gorm:"index" json:"user_id"`

	BillingName    string `gorm:"type:varchar(255)" json:"billing_name"`
	BillingEmail   string `gorm:"type:varchar(255)" json:"billing_email"`
	BillingPhone   string `gorm:"type:varchar(50)" json:"billing_phone"`
	BillingAddress string `gorm:"type:varchar(500)" json:"billing_address"`
	BillingCity    string `gorm:"type:varchar(100)" json:"billing_city"`
	BillingCountry string `gorm:"type:varchar(100)" json:"billing_country"`
	CustomerNote   string `gorm:"type:text" json:"customer_note"`

	Subtotal float64 `gorm:"type:decimal(15,2)" json:"subtotal"`
	Tax      float64 `gorm:"type:decimal(15,2)" json:"tax"`
	Discount float64 `gorm:"type:decimal(15,2)" json:"discount"`
	Total    float64 `gorm:"type:decimal(15,2)" json:"total"`

	Status        OrderStatus        `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	PaymentStatus OrderPaymentStatus `gorm:"type:varchar(20);default:'pending'" json:"payment_status"`

	// Relationships
	User           User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Lines          []OrderLine     `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
	PaymentIntents []PaymentIntent `gorm:"foreignKey:OrderID" json:"payment_intents,omitempty"`
}

// OrderLine is a frozen copy of one cart line. Title and price are
// detached from the live Course so catalog edits cannot rewrite history.
type OrderLine struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderID     uint    `gorm:"index" json:"order_id"`
	CourseID    uint    `gorm:"index" json:"course_id"`
	CourseTitle string  `gorm:"type:varchar(255)" json:"course_title"`
	UnitPrice   float64 `gorm:"type:decimal(15,2)" json:"unit_price"`
	Quantity    int     `gorm:"default:1" json:"quantity"`
	Subtotal    float64 `gorm:"type:decimal(15,2)" json:"subtotal"`
}
