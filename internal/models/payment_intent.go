package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentGateway identifies the processor behind a payment attempt
type PaymentGateway string

const (
	PaymentGatewayMidtrans PaymentGateway = "midtrans"
	PaymentGatewayManual   PaymentGateway = "manual"
)

// PaymentIntentStatus is a strict one-way function: once completed or
// failed the intent is terminal and further events are no-ops.
type PaymentIntentStatus string

const (
	PaymentIntentPending   PaymentIntentStatus = "pending"
	PaymentIntentCompleted PaymentIntentStatus = "completed"
	PaymentIntentFailed    PaymentIntentStatus = "failed"
)

// Terminal reports whether the status accepts no further transitions
func (s PaymentIntentStatus) Terminal() bool {
	return s == PaymentIntentCompleted || s == PaymentIntentFailed
}

// PaymentIntent records one attempt to collect money for an order. The
// correlation token is the gateway-facing order id; every event from
// either reconciliation channel is keyed on it.
type PaymentIntent struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint `gorm:"index" json:"order_id"`
	UserID  uint `gorm:"index" json:"user_id"`

	Amount   float64        `gorm:"type:decimal(15,2)" json:"amount"`
	Currency string         `gorm:"type:varchar(10)" json:"currency"`
	Gateway  PaymentGateway `gorm:"type:varchar(50);default:'midtrans'" json:"gateway"`

	CorrelationToken string `gorm:"type:varchar(100);uniqueIndex" json:"correlation_token"`
	CheckoutToken    string `gorm:"type:varchar(255)" json:"checkout_token"`
	RedirectURL      string `gorm:"type:varchar(500)" json:"redirect_url"`

	// SettlementID is populated exactly once, on completion
	SettlementID string `gorm:"type:varchar(100)" json:"settlement_id"`
	PaymentType  string `gorm:"type:varchar(100)" json:"payment_type"`

	Status       PaymentIntentStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ErrorMessage string              `gorm:"type:text" json:"error_message"`
	CompletedAt  *time.Time          `json:"completed_at"`

	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata,omitempty"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata,omitempty"`

	// Relationships
	Order Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

// PaymentNotification keeps the raw payload of every gateway callback
// received, verified or not handled alike, for auditing
type PaymentNotification struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Gateway          PaymentGateway  `gorm:"type:varchar(50);not null" json:"gateway"`
	CorrelationToken string          `gorm:"type:varchar(100);index" json:"correlation_token"`
	TransactionState string          `gorm:"type:varchar(50)" json:"transaction_state"`
	Payload          json.RawMessage `gorm:"type:jsonb" json:"payload"`
	CreatedAt        time.Time       `json:"created_at"`
}
