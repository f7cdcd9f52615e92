package api

import (
	"context"  // Context for Redis operations
	"errors"   // Error comparisons
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"github.com/pramodshanmugam/perksway/internal/domain" // Importing domain models
	"github.com/pramodshanmugam/perksway/internal/ledger" // Wallet ledger
	"github.com/pramodshanmugam/perksway/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library

	"github.com/sirupsen/logrus" // Logging library
)

// balanceCacheKey is the redis key for a cached wallet balance
func balanceCacheKey(userID, classID uint) string {
	return "wallet:user:" + strconv.Itoa(int(userID)) + ":class:" + strconv.Itoa(int(classID))
}

// walletCacheScopes lists the key prefixes a wallet mutation makes stale: the
// owner's transaction history pages and the class-wide ledger reports
func walletCacheScopes(userID, classID uint) []string {
	return []string{
		"txhistory:user:" + strconv.Itoa(int(userID)) + ":class:" + strconv.Itoa(int(classID)),
		classReportCachePrefix(classID),
	}
}

// invalidateWalletCache drops the cached balance and every cached page under
// the mutation's stale scopes
func invalidateWalletCache(ctx context.Context, rdb *redis.Client, userID, classID uint) {
	_ = utils.DeleteCache(ctx, rdb, balanceCacheKey(userID, classID))
	for _, prefix := range walletCacheScopes(userID, classID) {
		_ = utils.DeleteCacheByPrefix(ctx, rdb, prefix)
	}
}

// WalletBalanceHandler returns the caller's wallet balance for a class
func WalletBalanceHandler(db *gorm.DB, ldg *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		var class domain.Class
		if err := db.First(&class, classID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
			return
		}
		// Students must be enrolled; the teacher of the class may also look
		if class.TeacherID != userID {
			var enrolled int64
			if err := db.Model(&domain.Enrollment{}).
				Where("class_id = ? AND user_id = ?", classID, userID).
				Count(&enrolled).Error; err != nil || enrolled == 0 {
				c.JSON(http.StatusForbidden, gin.H{"error": "User is not a student in this class"})
				return
			}
		}
		ctx := context.Background()
		cacheKey := balanceCacheKey(userID, classID)
		var cached struct {
			Balance string `json:"balance"`
		}
		// Try the cache first
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"balance": cached.Balance, "cached": true})
			return
		}
		balance, err := ldg.Balance(c.Request.Context(), userID, classID)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found for this class"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch balance"})
			return
		}
		cached.Balance = balance.StringFixed(2)
		_ = utils.SetCache(ctx, rdb, cacheKey, cached, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, gin.H{"balance": cached.Balance, "cached": false})
	}
}

// WalletUpdateRequest represents a teacher adjusting a student's wallet
type WalletUpdateRequest struct {
	Email       string `json:"email" binding:"required"`  // Student email
	Amount      string `json:"amount" binding:"required"` // Decimal amount as a string
	Type        string `json:"type"`                      // credit (default) or debit
	Description string `json:"description"`               // Optional transaction description
}

// WalletUpdateHandler credits or debits a named student's wallet within a
// class. Teacher-of-class only; the wallet is created lazily on first
// credit. Malformed amounts are rejected before any ledger mutation.
func WalletUpdateHandler(db *gorm.DB, ldg *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		teacherID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		var req WalletUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing email or amount"})
			return
		}
		var class domain.Class
		if err := db.First(&class, classID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
			return
		}
		if class.TeacherID != teacherID {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not the teacher of this class"})
			return
		}
		// Amount must parse cleanly before anything is written
		amount, err := utils.ParseAmount(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount format. Please provide a valid number"})
			return
		}
		txType := req.Type
		if txType == "" {
			txType = domain.TransactionTypeCredit
		}
		if txType != domain.TransactionTypeCredit && txType != domain.TransactionTypeDebit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Type must be credit or debit"})
			return
		}
		// The student must be enrolled in this class
		var student domain.User
		err = db.Model(&domain.User{}).
			Joins("JOIN enrollments ON enrollments.user_id = users.id").
			Where("enrollments.class_id = ? AND users.email = ?", classID, strings.ToLower(req.Email)).
			First(&student).Error
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found in this class"})
			return
		}
		wallet, err := ldg.GetOrCreateWallet(c.Request.Context(), student.ID, classID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to access wallet"})
			return
		}
		description := req.Description
		if description == "" {
			description = "Teacher adjustment"
		}
		if txType == domain.TransactionTypeCredit {
			wallet, err = ldg.Credit(c.Request.Context(), wallet.ID, amount, description)
		} else {
			wallet, err = ldg.Debit(c.Request.Context(), wallet.ID, amount, description)
		}
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Student does not have enough balance"})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"teacher_id": teacherID,
				"student_id": student.ID,
				"class_id":   classID,
				"error":      err.Error(),
			}).Error("Wallet update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update wallet"})
			return
		}
		invalidateWalletCache(context.Background(), rdb, student.ID, classID)
		c.JSON(http.StatusOK, gin.H{
			"message":     "Wallet updated successfully.",
			"new_balance": wallet.Balance.StringFixed(2),
		})
	}
}

// TransactionHistoryHandler returns the caller's transaction history for a
// class, newest first, with pagination and a short-lived cache
func TransactionHistoryHandler(db *gorm.DB, ldg *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		wallet, err := ldg.Wallet(c.Request.Context(), userID, classID)
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found for this class"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallet"})
			return
		}
		page := 1      // Default page
		pageSize := 20 // Default page size
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v
			}
		}
		if ps := c.Query("page_size"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v
			}
		}
		cacheKey := "txhistory:user:" + strconv.Itoa(int(userID)) + ":class:" + strconv.Itoa(int(classID)) +
			":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		ctx := context.Background()
		var cached struct {
			Transactions []domain.Transaction `json:"transactions"` // List of transactions
			Page         int                  `json:"page"`         // Current page
			PageSize     int                  `json:"page_size"`    // Page size
			Total        int64                `json:"total"`        // Total transactions
			TotalPages   int                  `json:"total_pages"`  // Total pages
		}
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions,
				"page":         cached.Page,
				"page_size":    cached.PageSize,
				"total":        cached.Total,
				"total_pages":  cached.TotalPages,
				"cached":       true,
			})
			return
		}
		txs, total, err := ldg.History(c.Request.Context(), wallet.ID, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"transactions": txs,
			"page":         page,
			"page_size":    pageSize,
			"total":        total,
			"total_pages":  totalPages,
			"cached":       false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)
	}
}
