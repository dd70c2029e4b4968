package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
)

type fakeGateway struct {
	createCalls int
	cancelled   []string
	failCreate  bool
}

func (f *fakeGateway) CreateCheckout(req *CheckoutRequest) (*CheckoutSession, error) {
	f.createCalls++
	if f.failCreate {
		return nil, errors.New("gateway unavailable")
	}
	return &CheckoutSession{
		Token:       fmt.Sprintf("snap-token-%d", f.createCalls),
		RedirectURL: fmt.Sprintf("https://pay.example.com/%d", f.createCalls),
	}, nil
}

func (f *fakeGateway) CancelCheckout(correlationToken string) error {
	f.cancelled = append(f.cancelled, correlationToken)
	return nil
}

func newCheckoutFixture(t *testing.T) (*gorm.DB, *CheckoutService, *CartService, *fakeGateway, *models.User) {
	t.Helper()

	db := newTestDB(t)
	carts := NewCartService(db)
	orders := NewOrderService(db)
	gateway := &fakeGateway{}
	checkout := NewCheckoutService(db, orders, carts, gateway)
	user := seedUser(t, db, "checkout@example.com")
	return db, checkout, carts, gateway, user
}

func fillCart(t *testing.T, db *gorm.DB, carts *CartService, userID uint, prices ...float64) {
	t.Helper()
	for i, price := range prices {
		course := seedCourse(t, db, fmt.Sprintf("Checkout Course %d-%d", len(prices), i), price)
		if _, err := carts.Add(userID, course.ID); err != nil {
			t.Fatalf("fill cart: %v", err)
		}
	}
}

var testBilling = BillingInfo{Name: "Buyer", Email: "buyer@example.com"}

func TestBeginCheckoutCreatesOrderAndIntent(t *testing.T) {
	db, checkout, carts, _, user := newCheckoutFixture(t)
	fillCart(t, db, carts, user.ID, 100000, 50000)

	result, err := checkout.BeginCheckout(user.ID, testBilling, false, "https://shop.example.com/done")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.IsExisting {
		t.Error("first checkout should not report an existing attempt")
	}
	if result.Token == "" || result.RedirectURL == "" {
		t.Error("checkout should return gateway token and redirect URL")
	}

	var intent models.PaymentIntent
	if err := db.Where("order_id = ?", result.OrderID).First(&intent).Error; err != nil {
		t.Fatalf("load intent: %v", err)
	}
	if intent.Status != models.PaymentIntentPending {
		t.Errorf("intent status = %s; want pending", intent.Status)
	}
	if intent.Amount != 150000 {
		t.Errorf("intent amount = %v; want 150000", intent.Amount)
	}

	// Starting a checkout must not touch the cart
	count, _ := carts.Count(user.ID)
	if count != 2 {
		t.Errorf("cart lines after checkout = %d; want 2", count)
	}
}

func TestBeginCheckoutResumesPendingAttempt(t *testing.T) {
	db, checkout, carts, gateway, user := newCheckoutFixture(t)
	fillCart(t, db, carts, user.ID, 100000)

	first, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}

	if !second.IsExisting {
		t.Error("second checkout should resume the pending attempt")
	}
	if second.Token != first.Token || second.OrderID != first.OrderID {
		t.Error("resumed checkout should return the original token and order")
	}
	if gateway.createCalls != 1 {
		t.Errorf("gateway sessions opened = %d; want 1", gateway.createCalls)
	}

	var orderCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	if orderCount != 1 {
		t.Errorf("orders = %d; want 1", orderCount)
	}
}

func TestBeginCheckoutForceNewSupersedes(t *testing.T) {
	db, checkout, carts, gateway, user := newCheckoutFixture(t)
	fillCart(t, db, carts, user.ID, 100000)

	first, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := checkout.BeginCheckout(user.ID, testBilling, true, "")
	if err != nil {
		t.Fatalf("forced checkout: %v", err)
	}

	if second.IsExisting {
		t.Error("forced checkout should not resume")
	}
	if second.OrderID == first.OrderID {
		t.Error("forced checkout should create a fresh order")
	}
	if len(gateway.cancelled) != 1 {
		t.Errorf("cancelled gateway sessions = %d; want 1", len(gateway.cancelled))
	}

	var firstIntent models.PaymentIntent
	db.Where("order_id = ?", first.OrderID).First(&firstIntent)
	if firstIntent.Status != models.PaymentIntentFailed {
		t.Errorf("superseded intent = %s; want failed", firstIntent.Status)
	}

	var firstOrder models.Order
	db.First(&firstOrder, first.OrderID)
	if firstOrder.Status != models.OrderStatusCancelled {
		t.Errorf("superseded order = %s; want cancelled", firstOrder.Status)
	}
}

func TestBeginCheckoutChangedCartSupersedes(t *testing.T) {
	db, checkout, carts, _, user := newCheckoutFixture(t)
	fillCart(t, db, carts, user.ID, 100000)

	first, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	// The cart grows, so the frozen order no longer matches it
	fillCart(t, db, carts, user.ID, 25000)

	second, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if second.IsExisting {
		t.Error("a changed cart should start a fresh attempt")
	}
	if second.OrderID == first.OrderID {
		t.Error("changed cart should create a new order")
	}

	var secondOrder models.Order
	db.Preload("Lines").First(&secondOrder, second.OrderID)
	if secondOrder.Total != 125000 || len(secondOrder.Lines) != 2 {
		t.Errorf("new order total/lines = %v/%d; want 125000/2", secondOrder.Total, len(secondOrder.Lines))
	}
}

func TestBeginCheckoutEqualTotalDifferentCartSupersedes(t *testing.T) {
	db, checkout, carts, _, user := newCheckoutFixture(t)

	courseA := seedCourse(t, db, "Original Course", 100000)
	if _, err := carts.Add(user.ID, courseA.ID); err != nil {
		t.Fatalf("add course A: %v", err)
	}

	first, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}

	// Swap the cart for a different course at the same price; total and
	// line count match the frozen order but the contents do not
	if err := carts.Remove(user.ID, courseA.ID); err != nil {
		t.Fatalf("remove course A: %v", err)
	}
	courseB := seedCourse(t, db, "Replacement Course", 100000)
	if _, err := carts.Add(user.ID, courseB.ID); err != nil {
		t.Fatalf("add course B: %v", err)
	}

	second, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if second.IsExisting {
		t.Error("a swapped cart should not resume the old attempt")
	}
	if second.OrderID == first.OrderID {
		t.Error("swapped cart should create a new order")
	}

	var secondOrder models.Order
	db.Preload("Lines").First(&secondOrder, second.OrderID)
	if len(secondOrder.Lines) != 1 || secondOrder.Lines[0].CourseID != courseB.ID {
		t.Errorf("new order should freeze the replacement course, got %+v", secondOrder.Lines)
	}
}

func TestBeginCheckoutIntentWriteFailureCancelsOrder(t *testing.T) {
	db, checkout, carts, gateway, user := newCheckoutFixture(t)
	fillCart(t, db, carts, user.ID, 100000)

	// Occupy every correlation token the checkout could mint in the next
	// few seconds so the intent insert hits the unique index. The blockers
	// are failed intents of another user, invisible to the resume lookup.
	stranger := seedUser(t, db, "blocker@example.com")
	expectedOrderID := uint(1)
	now := time.Now().Unix()
	for offset := int64(0); offset < 3; offset++ {
		blocker := models.PaymentIntent{
			OrderID:          expectedOrderID,
			UserID:           stranger.ID,
			CorrelationToken: fmt.Sprintf("order-%d-%d", expectedOrderID, now+offset),
			Status:           models.PaymentIntentFailed,
		}
		if err := db.Create(&blocker).Error; err != nil {
			t.Fatalf("seed blocker intent: %v", err)
		}
	}

	_, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err == nil {
		t.Fatal("checkout should fail when the intent cannot be recorded")
	}

	var order models.Order
	if err := db.Order("id desc").First(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("order after intent write failure = %s; want cancelled", order.Status)
	}

	// The opened gateway session is voided so the user cannot pay into
	// an order nothing can settle
	if len(gateway.cancelled) != 1 {
		t.Errorf("cancelled gateway sessions = %d; want 1", len(gateway.cancelled))
	}

	count, _ := carts.Count(user.ID)
	if count != 1 {
		t.Errorf("cart lines = %d; want 1", count)
	}
}

func TestBeginCheckoutGatewayFailureCancelsOrder(t *testing.T) {
	db, checkout, carts, gateway, user := newCheckoutFixture(t)
	fillCart(t, db, carts, user.ID, 100000)
	gateway.failCreate = true

	_, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if err == nil {
		t.Fatal("checkout should fail when the gateway is down")
	}

	var order models.Order
	if err := db.Order("id desc").First(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("order after gateway failure = %s; want cancelled", order.Status)
	}

	// The cart survives, so the user can retry
	count, _ := carts.Count(user.ID)
	if count != 1 {
		t.Errorf("cart lines = %d; want 1", count)
	}

	var intentCount int64
	db.Model(&models.PaymentIntent{}).Count(&intentCount)
	if intentCount != 0 {
		t.Errorf("intents = %d; want 0", intentCount)
	}
}

func TestBeginCheckoutEmptyCart(t *testing.T) {
	_, checkout, _, _, user := newCheckoutFixture(t)

	_, err := checkout.BeginCheckout(user.ID, testBilling, false, "")
	if !errors.Is(err, ErrCartEmpty) {
		t.Errorf("BeginCheckout = %v; want ErrCartEmpty", err)
	}
}
