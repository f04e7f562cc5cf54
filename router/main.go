package router

import (
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/handlers"
	auth_handlers "github.com/sahilchouksey/learnhub-api/handlers/auth"
	badge_handlers "github.com/sahilchouksey/learnhub-api/handlers/badge"
	course_handlers "github.com/sahilchouksey/learnhub-api/handlers/course"
	enrollment_handlers "github.com/sahilchouksey/learnhub-api/handlers/enrollment"
	notification_handlers "github.com/sahilchouksey/learnhub-api/handlers/notification"
	payment_handlers "github.com/sahilchouksey/learnhub-api/handlers/payment"
	points_handlers "github.com/sahilchouksey/learnhub-api/handlers/points"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/services/gateway"
	"github.com/sahilchouksey/learnhub-api/utils/auth"
	"github.com/sahilchouksey/learnhub-api/utils/cache"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
)

func SetupRoutes(app *fiber.App, store database.Storage, env *config.EnviornmentVariable) {
	// Get JWT secret from environment
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "learnhub-api"
	}

	// Initialize JWT manager with config
	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	// Initialize Redis cache for brute force protection
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection will be disabled.", err)
	}

	// Initialize brute force protection
	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	// Initialize auth middleware with DB for blacklist checking
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	// Payment gateway client. Orders cannot be created without valid
	// credentials, so fail fast instead of serving a half-working API.
	gatewayClient, err := gateway.NewClient(gateway.Config{
		KeyID:     env.RAZORPAY_KEY_ID,
		KeySecret: env.RAZORPAY_KEY_SECRET,
	})
	if err != nil {
		log.Fatalf("Failed to initialize payment gateway client: %v", err)
	}

	// Initialize services
	notificationService := services.NewNotificationService(db)
	pointsService := services.NewPointsService(db)
	enrollmentService := services.NewEnrollmentService(db, notificationService, env.ENROLLMENT_BONUS_POINTS)
	paymentService := services.NewPaymentService(db, gatewayClient, enrollmentService, env.PAYMENT_PENDING_TTL)

	// Initialize handlers
	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, pointsService, bruteForceProtection)
	courseHandler := course_handlers.NewCourseHandler(db)
	paymentHandler := payment_handlers.NewPaymentHandler(db, paymentService)
	pointsHandler := points_handlers.NewPointsHandler(db, pointsService, redisCache)
	enrollmentHandler := enrollment_handlers.NewEnrollmentHandler(db, enrollmentService)
	badgeHandler := badge_handlers.NewBadgeHandler(db)
	notificationHandler := notification_handlers.NewNotificationHandler(notificationService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", handlers.HandleCheckHealth(store))

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.RefreshToken)

	// Protected auth routes
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)

	// Profile routes (protected)
	profileGroup := api.Group("/profile", authMiddleware.Required())
	profileGroup.Get("/", authHandler.GetProfile)
	profileGroup.Put("/", authHandler.UpdateProfile)

	// Courses routes
	courses := api.Group("/courses")
	courses.Get("/", courseHandler.ListCourses)                                       // Public: List published courses
	courses.Get("/:id", courseHandler.GetCourse)                                      // Public: Get course by ID
	courses.Post("/", authMiddleware.RequireAdmin(), middleware.AdminAuditLog(db, "course_create", "courses"), courseHandler.CreateCourse)
	courses.Put("/:id", authMiddleware.RequireAdmin(), middleware.AdminAuditLog(db, "course_update", "courses"), courseHandler.UpdateCourse)
	courses.Delete("/:id", authMiddleware.RequireAdmin(), middleware.AdminAuditLog(db, "course_delete", "courses"), courseHandler.DeleteCourse)

	// Payment routes (protected)
	payments := api.Group("/payments", authMiddleware.Required())
	payments.Post("/orders", paymentHandler.CreateOrder) // Create gateway order for a course
	payments.Post("/verify", paymentHandler.VerifyOrder) // Verify signature and settle
	payments.Get("/", paymentHandler.ListPayments)       // Payment history for current user

	// Enrollment routes (protected)
	enrollments := api.Group("/enrollments", authMiddleware.Required())
	enrollments.Get("/", enrollmentHandler.ListEnrollments)

	// Leaderboard is public; personal totals and history require auth
	api.Get("/leaderboard", pointsHandler.GetLeaderboard)

	points := api.Group("/points", authMiddleware.Required())
	points.Get("/total", pointsHandler.GetTotal)
	points.Get("/badge", pointsHandler.GetBadge)
	points.Get("/history", pointsHandler.GetHistory)

	// Badge tiers: listing is public, configuration is admin-only below
	api.Get("/badges", badgeHandler.ListBadges)

	// Notification routes (protected)
	notifications := api.Group("/notifications", authMiddleware.Required())
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Put("/:id/read", notificationHandler.MarkAsRead)
	notifications.Put("/read-all", notificationHandler.MarkAllAsRead)

	// Admin routes
	adminGroup := api.Group("/admin", authMiddleware.RequireAdmin())
	adminGroup.Post("/points/grant", pointsHandler.GrantPoints)
	adminGroup.Post("/points/deduct", pointsHandler.DeductPoints)
	adminGroup.Post("/enrollments", enrollmentHandler.ManualEnroll)
	adminGroup.Get("/badges", badgeHandler.ListBadges)
	adminGroup.Post("/badges", middleware.AdminAuditLog(db, "badge_create", "badges"), badgeHandler.CreateBadge)
	adminGroup.Put("/badges/:id", middleware.AdminAuditLog(db, "badge_update", "badges"), badgeHandler.UpdateBadge)
}
