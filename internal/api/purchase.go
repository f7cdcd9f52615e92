package api

import (
	"context"  // Context for Redis operations
	"errors"   // Error comparisons
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/pramodshanmugam/perksway/internal/domain"   // Importing domain models
	"github.com/pramodshanmugam/perksway/internal/ledger"   // Ledger errors
	"github.com/pramodshanmugam/perksway/internal/purchase" // Purchase workflow

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// PurchaseRequestResponse is the serialized purchase request
type PurchaseRequestResponse struct {
	ID        uint   `json:"id"`           // Request ID
	Student   string `json:"student"`      // Student email
	Item      string `json:"item"`         // Item name
	Amount    string `json:"amount"`       // Price snapshot
	Status    string `json:"status"`       // pending, approved or declined
	Requested int64  `json:"requested_at"` // Creation timestamp (ms)
}

// purchaseResponse maps a request (with Student/Item preloaded) to its
// response form
func purchaseResponse(req domain.PurchaseRequest) PurchaseRequestResponse {
	return PurchaseRequestResponse{
		ID:        req.ID,
		Student:   req.Student.Email,
		Item:      req.Item.Name,
		Amount:    req.Amount.StringFixed(2),
		Status:    req.Status,
		Requested: req.CreatedAt,
	}
}

// purchaseError maps workflow errors to HTTP responses
func purchaseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, purchase.ErrNotEnrolled):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not enrolled in this class"})
	case errors.Is(err, purchase.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
	case errors.Is(err, purchase.ErrClassNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
	case errors.Is(err, purchase.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase request not found"})
	case errors.Is(err, purchase.ErrNotClassTeacher):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not authorized to approve or decline this purchase"})
	case errors.Is(err, purchase.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action. Use 'approve' or 'decline'"})
	case errors.Is(err, purchase.ErrRequestClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Purchase request has already been decided"})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance to make this purchase"})
	case errors.Is(err, ledger.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found for this class"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Purchase operation failed"})
	}
}

// RequestPurchaseHandler creates a pending purchase request for an item
func RequestPurchaseHandler(w *purchase.Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		itemID, ok := itemIDParam(c)
		if !ok {
			return
		}
		req, err := w.Request(c.Request.Context(), userID, classID, itemID)
		if err != nil {
			purchaseError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"request": gin.H{
			"id":           req.ID,
			"amount":       req.Amount.StringFixed(2),
			"status":       req.Status,
			"requested_at": req.CreatedAt,
		}})
	}
}

// ListPurchasesHandler lists a class's purchase requests for its teacher.
// With pendingOnly set the listing is restricted to undecided requests.
func ListPurchasesHandler(w *purchase.Workflow, pendingOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		reqs, err := w.List(c.Request.Context(), userID, classID, pendingOnly)
		if err != nil {
			purchaseError(c, err)
			return
		}
		resp := make([]PurchaseRequestResponse, len(reqs))
		for i, r := range reqs {
			resp[i] = purchaseResponse(r)
		}
		c.JSON(http.StatusOK, gin.H{"requests": resp})
	}
}

// MyPurchasesHandler lists the caller's own purchase requests in a class
func MyPurchasesHandler(w *purchase.Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		reqs, err := w.ListForStudent(c.Request.Context(), userID, classID)
		if err != nil {
			purchaseError(c, err)
			return
		}
		type ownRequest struct {
			ID        uint   `json:"id"`
			Item      string `json:"item"`
			Amount    string `json:"amount"`
			Status    string `json:"status"`
			Requested int64  `json:"requested_at"`
		}
		resp := make([]ownRequest, len(reqs))
		for i, r := range reqs {
			resp[i] = ownRequest{
				ID:        r.ID,
				Item:      r.Item.Name,
				Amount:    r.Amount.StringFixed(2),
				Status:    r.Status,
				Requested: r.CreatedAt,
			}
		}
		c.JSON(http.StatusOK, gin.H{"requests": resp})
	}
}

// DecideRequest represents an approve/decline decision payload
type DecideRequest struct {
	Action string `json:"action" binding:"required"` // approve or decline
}

// DecidePurchaseHandler applies a teacher's decision to a purchase request
func DecidePurchaseHandler(w *purchase.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		requestID, err := strconv.ParseUint(c.Param("request_id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
			return
		}
		var req DecideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		decided, err := w.Decide(c.Request.Context(), userID, uint(requestID), req.Action)
		if err != nil {
			purchaseError(c, err)
			return
		}
		if decided.Status == domain.PurchaseStatusApproved {
			// The debit changed the student's balance; drop stale cache entries
			invalidateWalletCache(context.Background(), rdb, decided.StudentID, decided.ClassID)
			c.JSON(http.StatusOK, gin.H{"message": "Purchase approved and wallet updated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Purchase request declined"})
	}
}
