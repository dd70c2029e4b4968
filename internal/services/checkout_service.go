package services

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

// CheckoutService turns a cart into an order with a hosted payment
// session. Repeating a checkout while a matching attempt is still pending
// resumes that attempt instead of opening a second gateway session for
// the same purchase.
type CheckoutService struct {
	db      *gorm.DB
	orders  *OrderService
	carts   *CartService
	gateway CheckoutCreator
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(db *gorm.DB, orders *OrderService, carts *CartService, gateway CheckoutCreator) *CheckoutService {
	return &CheckoutService{
		db:      db,
		orders:  orders,
		carts:   carts,
		gateway: gateway,
	}
}

// CheckoutResult holds what the client needs to pay
type CheckoutResult struct {
	OrderID     uint   `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	IsExisting  bool   `json:"is_existing"`
}

// BeginCheckout starts or resumes a payment attempt for the user's cart.
// An open attempt is resumed only when the cart still matches the order
// it froze; a changed cart, or forceNew, supersedes it and starts over.
// The cart itself is left intact until a settlement confirms the payment.
func (s *CheckoutService) BeginCheckout(userID uint, billing BillingInfo, forceNew bool, finishURL string) (*CheckoutResult, error) {
	items, err := s.carts.Items(userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	var cartTotal float64
	for _, item := range items {
		cartTotal += item.PriceAtAdd
	}

	existing, err := s.findOpenIntent(userID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		order, err := s.orders.Get(existing.OrderID)
		if err != nil {
			return nil, err
		}

		matches := order.Total == cartTotal && sameCourses(order.Lines, items)
		if matches && !forceNew {
			return &CheckoutResult{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Token:       existing.CheckoutToken,
				RedirectURL: existing.RedirectURL,
				IsExisting:  true,
			}, nil
		}

		if err := s.supersede(existing); err != nil {
			return nil, err
		}
	}

	order, err := s.orders.CreateOrder(userID, billing, items)
	if err != nil {
		return nil, err
	}

	correlationToken := fmt.Sprintf("order-%d-%d", order.ID, time.Now().Unix())

	checkoutItems := make([]CheckoutItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		checkoutItems = append(checkoutItems, CheckoutItem{
			ID:    fmt.Sprintf("course-%d", line.CourseID),
			Name:  line.CourseTitle,
			Price: int64(math.Round(line.UnitPrice)),
			Qty:   int32(line.Quantity),
		})
	}

	req := &CheckoutRequest{
		CorrelationToken: correlationToken,
		Amount:           int64(math.Round(order.Total)),
		CustomerName:     billing.Name,
		CustomerEmail:    billing.Email,
		Items:            checkoutItems,
		FinishURL:        finishURL,
	}

	session, err := s.gateway.CreateCheckout(req)
	if err != nil {
		// The snapshot is unusable without a gateway session; cancel it so
		// the user can retry from the same cart.
		if cancelErr := s.orders.Transition(order.ID, models.OrderStatusCancelled, models.OrderPaymentFailed); cancelErr != nil {
			return nil, fmt.Errorf("cancel order after gateway failure: %v (gateway: %v)", cancelErr, err)
		}
		return nil, fmt.Errorf("open checkout session: %w", err)
	}

	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(session)

	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "IDR"
	}

	intent := models.PaymentIntent{
		OrderID:          order.ID,
		UserID:           userID,
		Amount:           order.Total,
		Currency:         currency,
		Gateway:          models.PaymentGatewayMidtrans,
		CorrelationToken: correlationToken,
		CheckoutToken:    session.Token,
		RedirectURL:      session.RedirectURL,
		Status:           models.PaymentIntentPending,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	if err := s.db.Create(&intent).Error; err != nil {
		// Without the intent row nothing can ever settle this order; the
		// repoll sweep is keyed on intents. Retire both sides so the user
		// can retry from the intact cart.
		if cancelErr := s.gateway.CancelCheckout(correlationToken); cancelErr != nil {
			log.Printf("cancel orphaned checkout %s: %v", correlationToken, cancelErr)
		}
		if cancelErr := s.orders.Transition(order.ID, models.OrderStatusCancelled, models.OrderPaymentFailed); cancelErr != nil {
			return nil, fmt.Errorf("cancel order after intent write failure: %v (intent: %v)", cancelErr, err)
		}
		return nil, fmt.Errorf("record payment intent: %w", err)
	}

	return &CheckoutResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Token:       session.Token,
		RedirectURL: session.RedirectURL,
		IsExisting:  false,
	}, nil
}

// sameCourses reports whether the frozen order lines cover exactly the
// courses now in the cart. Totals alone are not enough; two different
// carts can price the same.
func sameCourses(lines []models.OrderLine, items []models.CartItem) bool {
	if len(lines) != len(items) {
		return false
	}
	inCart := make(map[uint]bool, len(items))
	for _, item := range items {
		inCart[item.CourseID] = true
	}
	for _, line := range lines {
		if !inCart[line.CourseID] {
			return false
		}
	}
	return true
}

// findOpenIntent returns the user's latest pending intent whose order is
// still pending, or nil when no attempt is open.
func (s *CheckoutService) findOpenIntent(userID uint) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := s.db.
		Joins("JOIN orders ON orders.id = payment_intents.order_id").
		Where("payment_intents.user_id = ? AND payment_intents.status = ? AND orders.status = ?",
			userID, models.PaymentIntentPending, models.OrderStatusPending).
		Order("payment_intents.created_at desc").
		First(&intent).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &intent, nil
}

// supersede retires an open attempt: the gateway session is cancelled
// best-effort, the intent fails, and its order is cancelled. A settlement
// racing in for the same intent loses to the terminal-state guard either
// way, so this cannot double-settle.
func (s *CheckoutService) supersede(intent *models.PaymentIntent) error {
	if err := s.gateway.CancelCheckout(intent.CorrelationToken); err != nil {
		// The gateway session may already be expired or settled; the
		// local state transition below is what actually retires it.
		log.Printf("cancel superseded checkout %s: %v", intent.CorrelationToken, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.PaymentIntentPending).
			Updates(map[string]interface{}{
				"status":        models.PaymentIntentFailed,
				"error_message": "superseded by a new checkout",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Settled while we were cancelling; leave the order alone
			return nil
		}
		return TransitionOrder(tx, intent.OrderID, models.OrderStatusCancelled, models.OrderPaymentFailed)
	})
}
