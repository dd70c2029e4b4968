package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"edumarket_echo/internal/handlers"
	appMiddleware "edumarket_echo/internal/middleware"
	"edumarket_echo/internal/services"
)

// defaultIdleTimeout is how long a session may sit without a request
// before it stops counting against the plan cap.
const defaultIdleTimeout = 30 * time.Minute

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis; without it the server falls back to in-process
	// locking and an uncached catalog, which only suits a single instance.
	var cache *services.RedisCache
	var locker services.UserLocker
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close()
		locker = services.NewRedisLocker(cache)
	} else {
		log.Println("Warning: REDIS_URL not set, using in-process locks")
		locker = services.NewLocalLocker()
	}

	// Core services
	governor := services.NewSessionGovernor(db, locker, defaultIdleTimeout)
	gateway := services.NewMidtransGateway()
	carts := services.NewCartService(db)
	orders := services.NewOrderService(db)
	checkout := services.NewCheckoutService(db, orders, carts, gateway)
	reconciler := services.NewPaymentReconciler(db, gateway, services.NewEmailService())

	// Create Echo instance
	e := echo.New()
	e.HTTPErrorHandler = appMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, governor)
	sessionHandler := handlers.NewSessionHandler(governor)
	courseHandler := handlers.NewCourseHandler(db, cache)
	cartHandler := handlers.NewCartHandler(carts)
	checkoutHandler := handlers.NewCheckoutHandler(checkout, reconciler)
	orderHandler := handlers.NewOrderHandler(orders)
	webhookHandler := handlers.NewWebhookHandler(gateway, reconciler)

	// Public routes
	e.POST("/auth/register", authHandler.HandleRegister)
	e.POST("/auth/login", authHandler.HandleLogin)
	e.GET("/courses", courseHandler.ListCourses)
	e.GET("/courses/:id", courseHandler.GetCourse)

	// Gateway callbacks are authenticated by signature, not by session
	e.POST("/webhooks/payment", webhookHandler.HandlePaymentNotification)

	// Protected routes
	protected := e.Group("")
	protected.Use(appMiddleware.RequireAuth(governor))

	protected.POST("/auth/logout", authHandler.HandleLogout)
	protected.GET("/sessions", sessionHandler.ListSessions)
	protected.DELETE("/sessions/:id", sessionHandler.EndSession)

	protected.POST("/courses/:id/enroll", courseHandler.EnrollFree)
	protected.GET("/enrollments", courseHandler.ListEnrollments)

	protected.GET("/cart", cartHandler.ViewCart)
	protected.GET("/cart/count", cartHandler.CartCount)
	protected.POST("/cart/items", cartHandler.AddToCart)
	protected.DELETE("/cart/items/:course_id", cartHandler.RemoveFromCart)
	protected.DELETE("/cart", cartHandler.ClearCart)

	protected.POST("/checkout", checkoutHandler.HandleCheckout)
	protected.GET("/payments/confirm", checkoutHandler.HandleConfirm)

	protected.GET("/orders", orderHandler.ListOrders)
	protected.GET("/orders/:id", orderHandler.GetOrder)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	e.Logger.Fatal(e.Start(":" + port))
}
