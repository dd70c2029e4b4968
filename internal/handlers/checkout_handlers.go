package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"edumarket_echo/internal/models"
	"edumarket_echo/internal/services"
)

// statusCheckTimeout bounds the synchronous gateway status check behind
// the confirmation page. On expiry the payment is reported as still
// processing, never as failed.
const statusCheckTimeout = 8 * time.Second

// CheckoutHandler starts payment attempts and serves the confirmation
// endpoint the gateway redirects back to.
type CheckoutHandler struct {
	checkout   *services.CheckoutService
	reconciler *services.PaymentReconciler
}

// NewCheckoutHandler creates a new CheckoutHandler
func NewCheckoutHandler(checkout *services.CheckoutService, reconciler *services.PaymentReconciler) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, reconciler: reconciler}
}

type checkoutRequest struct {
	Billing  services.BillingInfo `json:"billing"`
	ForceNew bool                 `json:"force_new"`
}

// HandleCheckout freezes the cart into an order and opens a hosted
// payment session. A pending attempt for the same cart is resumed unless
// force_new asks for a fresh one.
func (h *CheckoutHandler) HandleCheckout(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Billing.Name == "" || req.Billing.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Billing name and email are required")
	}

	finishURL := os.Getenv("PAYMENT_FINISH_URL")
	result, err := h.checkout.BeginCheckout(userID, req.Billing, req.ForceNew, finishURL)
	if err != nil {
		if errors.Is(err, services.ErrCartEmpty) {
			return echo.NewHTTPError(http.StatusBadRequest, "Cart is empty")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start checkout")
	}

	status := http.StatusCreated
	if result.IsExisting {
		status = http.StatusOK
	}
	return c.JSON(status, result)
}

// HandleConfirm is the landing endpoint after the hosted payment page.
// It reports the recorded state of the attempt; when that state is still
// pending it asks the gateway directly, so a user arriving before the
// webhook still sees the settled result.
func (h *CheckoutHandler) HandleConfirm(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	// Ownership first: other users' payments look nonexistent
	if _, err := h.reconciler.GetByTokenForUser(token, userID); err != nil {
		if errors.Is(err, services.ErrIntentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Payment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch payment")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), statusCheckTimeout)
	defer cancel()

	intent, err := h.reconciler.VerifyPending(ctx, token)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to verify payment")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"order_id": intent.OrderID,
		"status":   confirmStatus(intent),
		"payment":  intent,
	})
}

// confirmStatus maps the stored intent state to what the confirmation
// page shows.
func confirmStatus(intent *models.PaymentIntent) string {
	switch intent.Status {
	case models.PaymentIntentCompleted:
		return "paid"
	case models.PaymentIntentFailed:
		return "failed"
	default:
		return "processing"
	}
}
