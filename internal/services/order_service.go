package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

var (
	ErrCartEmpty         = errors.New("cart is empty")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrOrderNotFound     = errors.New("order not found")
)

const orderNumberPrefix = "ORD"

// orderNumberAttempts bounds the retry loop for suffix collisions under
// concurrent checkouts on the same date.
const orderNumberAttempts = 5

// legal transitions out of each order status; absent means terminal
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending: {models.OrderStatusPaid, models.OrderStatusFailed, models.OrderStatusCancelled},
	models.OrderStatusPaid:    {models.OrderStatusRefunded},
}

// BillingInfo carries the billing fields captured on an order as values
type BillingInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Note    string `json:"note"`
}

// OrderService creates immutable order snapshots and guards every status
// write against the legal transition table.
type OrderService struct {
	db *gorm.DB
}

// NewOrderService creates a new OrderService
func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// CreateOrder turns a non-empty cart snapshot into an order with frozen
// lines, all inside one transaction. The order number suffix is derived
// from the day's current maximum; a concurrent checkout racing to the
// same suffix hits the unique index and the whole attempt is retried with
// a fresh derivation.
func (s *OrderService) CreateOrder(userID uint, billing BillingInfo, items []models.CartItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	var subtotal float64
	for _, item := range items {
		subtotal += item.PriceAtAdd
	}
	// Flat sum: no tax or discount computation in this marketplace
	tax := 0.0
	discount := 0.0
	total := subtotal + tax - discount

	var created *models.Order
	var lastErr error

	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := s.nextOrderNumber(time.Now())
		if err != nil {
			return nil, err
		}

		order := models.Order{
			OrderNumber:    number,
			UserID:         userID,
			BillingName:    billing.Name,
			BillingEmail:   billing.Email,
			BillingPhone:   billing.Phone,
			BillingAddress: billing.Address,
			BillingCity:    billing.City,
			BillingCountry: billing.Country,
			CustomerNote:   billing.Note,
			Subtotal:       subtotal,
			Tax:            tax,
			Discount:       discount,
			Total:          total,
			Status:         models.OrderStatusPending,
			PaymentStatus:  models.OrderPaymentPending,
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&order).Error; err != nil {
				return err
			}
			for _, item := range items {
				line := models.OrderLine{
					OrderID:     order.ID,
					CourseID:    item.CourseID,
					CourseTitle: item.Course.Title,
					UnitPrice:   item.PriceAtAdd,
					Quantity:    1,
					Subtotal:    item.PriceAtAdd,
				}
				if err := tx.Create(&line).Error; err != nil {
					return err
				}
				order.Lines = append(order.Lines, line)
			}
			return nil
		})

		if err == nil {
			created = &order
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			lastErr = err
			continue
		}
		return nil, err
	}

	if created == nil {
		return nil, fmt.Errorf("order number allocation exhausted after %d attempts: %w", orderNumberAttempts, lastErr)
	}
	return created, nil
}

// Transition moves an order to a new status if the transition table
// allows it. The status check is part of the UPDATE itself so two racing
// writers cannot both win.
func (s *OrderService) Transition(orderID uint, to models.OrderStatus, payment models.OrderPaymentStatus) error {
	return TransitionOrder(s.db, orderID, to, payment)
}

// TransitionOrder is the transaction-friendly form of Transition
func TransitionOrder(tx *gorm.DB, orderID uint, to models.OrderStatus, payment models.OrderPaymentStatus) error {
	var from []models.OrderStatus
	for src, dsts := range orderTransitions {
		for _, dst := range dsts {
			if dst == to {
				from = append(from, src)
			}
		}
	}
	if len(from) == 0 {
		return fmt.Errorf("%w: no state may enter %q", ErrIllegalTransition, to)
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(map[string]interface{}{
			"status":         to,
			"payment_status": payment,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order %d is not in a state that allows %q", ErrIllegalTransition, orderID, to)
	}
	return nil
}

// Get returns an order with its lines and payment intents
func (s *OrderService) Get(orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Lines").Preload("PaymentIntents").First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetForUser returns an order only if it belongs to the user
func (s *OrderService) GetForUser(orderID, userID uint) (*models.Order, error) {
	order, err := s.Get(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListForUser returns the user's orders, newest first
func (s *OrderService) ListForUser(userID uint, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	var orders []models.Order
	err := s.db.Preload("Lines").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// nextOrderNumber derives ORD-YYYYMMDD-NNNN from the highest suffix
// already issued for the date.
func (s *OrderService) nextOrderNumber(now time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", orderNumberPrefix, now.Format("20060102"))

	var last models.Order
	err := s.db.
		Where("order_number LIKE ?", prefix+"%").
		Order("order_number desc").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	next := 1
	if last.OrderNumber != "" {
		suffix := strings.TrimPrefix(last.OrderNumber, prefix)
		if n, convErr := strconv.Atoi(suffix); convErr == nil {
			next = n + 1
		}
	}

	return fmt.Sprintf("%s%04d", prefix, next), nil
}
