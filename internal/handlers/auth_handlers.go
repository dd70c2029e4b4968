package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"edumarket_echo/internal/models"
	"edumarket_echo/internal/services"
)

// AuthHandler handles registration, login and logout
type AuthHandler struct {
	db       *gorm.DB
	governor *services.SessionGovernor
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(db *gorm.DB, governor *services.SessionGovernor) *AuthHandler {
	return &AuthHandler{db: db, governor: governor}
}

type registerRequest struct {
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a member account on the default plan
func (h *AuthHandler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and email are required")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "Password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process password")
	}

	user := models.User{
		Name:         req.Name,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Phone:        req.Phone,
		UserType:     models.UserTypeMember,
		Active:       true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusConflict, "Email is already registered")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create account")
	}

	return c.JSON(http.StatusCreated, user)
}

// HandleLogin authenticates credentials and opens a session under the
// user's plan cap. When the cap is full the governor makes room, so a
// valid login never fails because of other devices.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	var user models.User
	err := h.db.Preload("Plan").
		Where("email = ? AND active = ?", strings.ToLower(strings.TrimSpace(req.Email)), true).
		First(&user).Error
	if err != nil {
		// Same answer for unknown email and bad password
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	session, err := h.governor.StartSession(
		c.Request().Context(),
		user.ID,
		user.Plan.MaxConcurrentSessions,
		c.RealIP(),
		c.Request().UserAgent(),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to start session")
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   os.Getenv("ENV") == "production",
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"user":   user,
	})
}

// HandleLogout ends the current session and clears the cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	if token := currentSessionToken(c); token != "" {
		if err := h.governor.EndSession(token); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to end session")
		}
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]string{
		"status": "logged out",
	})
}
