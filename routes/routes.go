package routes

import (
	"time"

	"dumplinghouse-backend/config"
	"dumplinghouse-backend/firebase"
	"dumplinghouse-backend/handlers"
	"dumplinghouse-backend/middleware"
	"dumplinghouse-backend/services/ledger"
	"dumplinghouse-backend/services/receipts"
	"dumplinghouse-backend/services/redemptions"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the shared services the handlers are built from. main wires
// the real implementations; tests substitute mocks for Analyzer and Storage.
type Deps struct {
	DB          *gorm.DB
	Ledger      *ledger.Service
	Guard       *receipts.Guard
	Analyzer    receipts.Analyzer
	Redemptions *redemptions.Service
	Storage     firebase.StorageClient
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	authHandler := &handlers.AuthHandler{DB: deps.DB}
	receiptHandler := &handlers.ReceiptHandler{DB: deps.DB, Guard: deps.Guard, Analyzer: deps.Analyzer, Storage: deps.Storage}
	redemptionHandler := &handlers.RedemptionHandler{DB: deps.DB, Service: deps.Redemptions}
	rewardHandler := &handlers.RewardHandler{DB: deps.DB, Storage: deps.Storage}
	menuItemHandler := &handlers.MenuItemHandler{DB: deps.DB}
	pointsHandler := &handlers.PointsHandler{DB: deps.DB}
	adminHandler := &handlers.AdminHandler{DB: deps.DB, Ledger: deps.Ledger}

	// Auth endpoints get a tight limiter to slow credential stuffing; the
	// scan limiter throttles receipt farming per IP.
	authLimiter := middleware.NewRateLimiter(config.AuthRateLimit(), time.Minute)
	scanLimiter := middleware.NewRateLimiter(config.ScanRateLimit(), time.Minute)

	// Public routes
	api := r.Group("/api")
	{
		api.POST("/auth/register", authLimiter.Middleware(), authHandler.Register)
		api.POST("/auth/login", authLimiter.Middleware(), authHandler.Login)
		api.POST("/auth/forgot-password", authLimiter.Middleware(), authHandler.ForgotPassword)
		api.POST("/auth/reset-password", authLimiter.Middleware(), authHandler.ResetPassword)
		api.POST("/auth/refresh", authHandler.RefreshTokenHandler)

		// Reward catalog is browsable without an account
		api.GET("/rewards", rewardHandler.GetRewards)
		api.GET("/rewards/:id", rewardHandler.GetReward)
		api.GET("/rewards/:id/eligible-items", rewardHandler.GetEligibleItems)
	}

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(deps.DB))
	{
		protected.GET("/auth/profile", authHandler.GetProfile)
		protected.PUT("/auth/profile", authHandler.UpdateProfile)
		protected.POST("/auth/change-password", authHandler.ChangePassword)

		protected.POST("/receipts/scan", scanLimiter.Middleware(), receiptHandler.ScanReceipt)

		protected.GET("/points/balance", pointsHandler.GetBalance)
		protected.GET("/points/history", pointsHandler.GetHistory)

		protected.POST("/redemptions", redemptionHandler.CreateRedemption)
		protected.GET("/redemptions/active", redemptionHandler.GetActiveRedemption)
		protected.DELETE("/redemptions/active", redemptionHandler.CancelRedemption)
		protected.POST("/redemptions/refund", redemptionHandler.RefundRedemption)
	}

	// Staff routes (employee or admin) cover the counter-side flow
	staff := api.Group("/staff")
	staff.Use(middleware.AuthMiddleware(deps.DB))
	staff.Use(middleware.StaffMiddleware())
	{
		staff.POST("/redemptions/:code/fulfill", redemptionHandler.FulfillRedemption)
	}

	// Admin routes (require admin role)
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(deps.DB))
	admin.Use(middleware.AdminMiddleware())
	{
		// User management
		admin.GET("/users", adminHandler.ListUsers)
		admin.GET("/users/:id", adminHandler.GetUser)
		admin.PUT("/users/:id", adminHandler.UpdateUser)
		admin.POST("/users/:id/points", adminHandler.AdjustPoints)
		admin.GET("/users/:id/history", adminHandler.GetUserHistory)

		// Fraud review queue
		admin.GET("/flags", adminHandler.ListSuspiciousFlags)
		admin.POST("/flags/:id/review", adminHandler.ReviewSuspiciousFlag)

		// Reward catalog management
		admin.GET("/rewards", rewardHandler.GetAllRewards)
		admin.POST("/rewards", rewardHandler.CreateReward)
		admin.PUT("/rewards/:id", rewardHandler.UpdateReward)
		admin.DELETE("/rewards/:id", rewardHandler.DeleteReward)

		// Menu items back the eligible-item lists
		admin.GET("/menu-items", menuItemHandler.GetMenuItems)
		admin.POST("/menu-items", menuItemHandler.CreateMenuItem)
		admin.PUT("/menu-items/:id", menuItemHandler.UpdateMenuItem)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
