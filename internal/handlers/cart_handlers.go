package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"edumarket_echo/internal/services"
)

// CartHandler exposes the pre-checkout cart
type CartHandler struct {
	carts *services.CartService
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type addToCartRequest struct {
	CourseID uint `json:"course_id"`
}

// ViewCart returns the cart lines and their frozen total
func (h *CartHandler) ViewCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	items, err := h.carts.Items(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch cart")
	}
	total, err := h.carts.Total(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch cart")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

// CartCount returns just the number of cart lines, for badge displays
func (h *CartHandler) CartCount(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	count, err := h.carts.Count(userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to count cart")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": count,
	})
}

// AddToCart puts a paid course in the cart at its current price
func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req addToCartRequest
	if err := c.Bind(&req); err != nil || req.CourseID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "course_id is required")
	}

	item, err := h.carts.Add(userID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCourseNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Course not found")
		case errors.Is(err, services.ErrNotPurchasable):
			return echo.NewHTTPError(http.StatusBadRequest, "Free courses are enrolled directly")
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return echo.NewHTTPError(http.StatusConflict, "You already own this course")
		case errors.Is(err, services.ErrAlreadyInCart):
			return echo.NewHTTPError(http.StatusConflict, "Course is already in your cart")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to add to cart")
		}
	}

	return c.JSON(http.StatusCreated, item)
}

// RemoveFromCart drops one course from the cart
func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	courseID, err := paramID(c, "course_id")
	if err != nil {
		return err
	}

	if err := h.carts.Remove(userID, courseID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to remove from cart")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "removed"})
}

// ClearCart empties the cart
func (h *CartHandler) ClearCart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	if err := h.carts.Clear(userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to clear cart")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}
