package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// SessionCookieName is the cookie carrying the opaque session token
const SessionCookieName = "session"

// currentUserID reads the authenticated user id placed in the context by
// the auth middleware.
func currentUserID(c echo.Context) (uint, error) {
	val := c.Get("userID")
	id, ok := val.(uint)
	if !ok || id == 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "Please log in to continue")
	}
	return id, nil
}

// currentSessionToken reads the session token placed in the context by
// the auth middleware. Empty when the request is unauthenticated.
func currentSessionToken(c echo.Context) string {
	if val, ok := c.Get("sessionToken").(string); ok {
		return val
	}
	return ""
}

// paramID parses a numeric path parameter
func paramID(c echo.Context, name string) (uint, error) {
	val, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || val == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(val), nil
}
