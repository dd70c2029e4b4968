package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"edumarket_echo/internal/services"
)

const sessionCookieName = "session"

// RequireAuth returns a middleware that validates the session cookie
// against the governor. Every authenticated request refreshes the
// session's activity clock; a stale or evicted session clears the cookie
// and gets a 401.
func RequireAuth(governor *services.SessionGovernor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Please log in to continue")
			}

			session, ok := governor.Touch(cookie.Value)
			if !ok {
				clearCookie := &http.Cookie{
					Name:     sessionCookieName,
					Value:    "",
					MaxAge:   -1,
					HttpOnly: true,
					Path:     "/",
				}
				c.SetCookie(clearCookie)
				return echo.NewHTTPError(http.StatusUnauthorized, "Session expired, please log in again")
			}

			c.Set("userID", session.UserID)
			c.Set("sessionToken", session.Token)

			return next(c)
		}
	}
}
