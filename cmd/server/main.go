package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging

	"github.com/pramodshanmugam/perksway/internal/api"        // Custom package for API handlers
	"github.com/pramodshanmugam/perksway/internal/config"     // Custom package for configuration
	"github.com/pramodshanmugam/perksway/internal/groups"     // Group membership workflow
	"github.com/pramodshanmugam/perksway/internal/ledger"     // Wallet ledger service
	"github.com/pramodshanmugam/perksway/internal/middleware" // Custom package for middleware
	"github.com/pramodshanmugam/perksway/internal/purchase"   // Purchase approval workflow

	// For loading .env files
	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Core services built on the shared DB handle
	ldg := ledger.NewService(db)
	purchases := purchase.NewWorkflow(db, ldg)
	groupFlow := groups.NewWorkflow(db, cfg.BulkGroupLimit)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Auth routes
	r.POST("/user", api.RegisterHandler(db))            // Registration endpoint
	r.GET("/user", api.LoginHandler(db, cfg.JWTSecret)) // Login endpoint

	// Class routes (protected by JWT)
	classGroup := r.Group("/class")
	classGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	classGroup.GET("", api.ListClassesHandler(db))                                                        // Classes visible to the caller
	classGroup.GET("/:class_id/groups", api.ListGroupsHandler(db))                                        // Groups of a class
	classGroup.GET("/:class_id/items", api.ListItemsHandler(db))                                          // Store items of a class
	classGroup.GET("/:class_id/items/:item_id", api.ItemDetailHandler(db))                                // Single item endpoint
	classGroup.GET("/:class_id/wallet", api.WalletBalanceHandler(db, ldg, redisClient))                   // Wallet balance endpoint
	classGroup.GET("/:class_id/wallet/transactions", api.TransactionHistoryHandler(db, ldg, redisClient)) // Transaction history endpoint
	classGroup.POST("/:class_id/items/:item_id/purchase", api.RequestPurchaseHandler(purchases))          // Request a purchase
	classGroup.GET("/:class_id/purchases/mine", api.MyPurchasesHandler(purchases))                        // Caller's own requests

	// Enrollment routes (protected by JWT)
	enrollGroup := r.Group("/enrollment")
	enrollGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	enrollGroup.GET("", api.EnrolledClassesHandler(db))             // Enrolled classes endpoint
	enrollGroup.POST("/:class_code", api.JoinClassHandler(db, ldg)) // Join class by code

	// Group routes (protected by JWT)
	groupGroup := r.Group("/group")
	groupGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	groupGroup.GET("/:group_id", api.GroupDetailHandler(db, groupFlow))              // Group with members
	groupGroup.POST("/:group_id/join", api.JoinGroupHandler(groupFlow, redisClient)) // Join or request to join

	// Teacher routes (protected, teachers only)
	teacherGroup := r.Group("/teacher")
	teacherGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.TeacherOnlyMiddleware(db))
	teacherGroup.POST("/class", api.CreateClassHandler(db))                                                        // Create class endpoint
	teacherGroup.GET("/class/:class_id/students", api.ClassStudentsHandler(db, ldg))                               // Roster with balances
	teacherGroup.POST("/class/:class_id/wallet", api.WalletUpdateHandler(db, ldg, redisClient))                    // Credit or debit a student
	teacherGroup.GET("/class/:class_id/transactions", api.ClassTransactionsHandler(db, redisClient))               // Class ledger report
	teacherGroup.POST("/class/:class_id/items", api.CreateItemHandler(db))                                         // Create store item
	teacherGroup.PUT("/class/:class_id/items/:item_id", api.UpdateItemHandler(db))                                 // Edit store item
	teacherGroup.DELETE("/class/:class_id/items/:item_id", api.DeleteItemHandler(db))                              // Remove store item
	teacherGroup.GET("/class/:class_id/purchases", api.ListPurchasesHandler(purchases, false))                     // All purchase requests
	teacherGroup.GET("/class/:class_id/purchases/pending", api.ListPurchasesHandler(purchases, true))              // Undecided requests
	teacherGroup.POST("/class/:class_id/purchases/:request_id", api.DecidePurchaseHandler(purchases, redisClient)) // Approve or decline
	teacherGroup.POST("/group", api.CreateGroupHandler(db))                                                        // Create group endpoint
	teacherGroup.POST("/class/:class_id/groups/bulk", api.BulkCreateGroupsHandler(groupFlow))                      // Bulk create groups
	teacherGroup.PUT("/group/:group_id", api.UpdateGroupHandler(db))                                               // Edit group endpoint
	teacherGroup.DELETE("/group/:group_id", api.DeleteGroupHandler(db))                                            // Delete group endpoint
	teacherGroup.GET("/group/:group_id/pending", api.PendingApprovalsHandler(groupFlow, redisClient))              // Pending join requests
	teacherGroup.POST("/group/:group_id/decide", api.DecideJoinHandler(groupFlow, redisClient))                    // Decide one join request
	teacherGroup.POST("/group/:group_id/decide/bulk", api.BulkDecideHandler(groupFlow, redisClient))               // Decide many join requests

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
