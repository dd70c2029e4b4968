package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"edumarket_echo/internal/models"
	"edumarket_echo/internal/services"
)

// WebhookHandler receives gateway payment notifications
type WebhookHandler struct {
	verifier   services.NotificationVerifier
	reconciler *services.PaymentReconciler
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(verifier services.NotificationVerifier, reconciler *services.PaymentReconciler) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, reconciler: reconciler}
}

// HandlePaymentNotification processes one gateway delivery. The payload
// is authenticated before anything else touches it; an inauthentic one
// gets a bare 400. Authentic deliveries are recorded and folded in, and
// anything already settled or not ours is acknowledged so the gateway
// stops redelivering.
func (h *WebhookHandler) HandlePaymentNotification(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	event, err := h.verifier.VerifyNotification(payload)
	if err != nil {
		// No detail on why; a forger learns nothing
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification")
	}

	h.reconciler.RecordNotification(models.PaymentGatewayMidtrans, event.CorrelationToken, event.RawStatus, payload)

	if err := h.reconciler.Apply(event); err != nil {
		if errors.Is(err, services.ErrIntentNotFound) {
			// Authentic but not ours (gateway test pings, stale tokens);
			// a 4xx here would only cause pointless redelivery
			return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process notification")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
