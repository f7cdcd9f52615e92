package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/pramodshanmugam/perksway/internal/domain" // Importing domain models
	"github.com/pramodshanmugam/perksway/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// ItemRequest represents item create/update payloads
type ItemRequest struct {
	Name        string `json:"name"`        // Item name
	Description string `json:"description"` // Optional description
	Price       string `json:"price"`       // Decimal price as a string
	ImageURL    string `json:"image_url"`   // Optional image link
}

// itemIDParam parses the :item_id path parameter
func itemIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("item_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return 0, false
	}
	return uint(id), true
}

// requireClassTeacher loads a class and checks the caller owns it. Writes
// the error response and returns false when the check fails.
func requireClassTeacher(c *gin.Context, db *gorm.DB, classID, userID uint) bool {
	var class domain.Class
	if err := db.First(&class, classID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return false
	}
	if class.TeacherID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not the teacher of this class"})
		return false
	}
	return true
}

// ListItemsHandler lists the item catalog of a class
func ListItemsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUserID(c); !ok {
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
		var items []domain.Item
		if err := db.Where("class_id = ?", classID).Order("id asc").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch items"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

// CreateItemHandler adds an item to a class catalog (teacher only)
func CreateItemHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		if !requireClassTeacher(c, db, classID, userID) {
			return
		}
		var req ItemRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		price, err := utils.ParseAmount(req.Price)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid price"})
			return
		}
		item := domain.Item{
			ClassID:     classID,
			Name:        req.Name,
			Description: req.Description,
			Price:       price,
			ImageURL:    req.ImageURL,
		}
		if err := db.Create(&item).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create item"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"item": item})
	}
}

// ItemDetailHandler returns a single item scoped to its class
func ItemDetailHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUserID(c); !ok {
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
		var item domain.Item
		if err := db.Where("id = ? AND class_id = ?", itemID, classID).First(&item).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item})
	}
}

// UpdateItemHandler edits an item (teacher only). Editing the price never
// changes the amount of purchase requests already created for the item.
func UpdateItemHandler(db *gorm.DB) gin.HandlerFunc {
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
		if !requireClassTeacher(c, db, classID, userID) {
			return
		}
		var item domain.Item
		if err := db.Where("id = ? AND class_id = ?", itemID, classID).First(&item).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		var req ItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.Name != "" {
			item.Name = req.Name
		}
		if req.Description != "" {
			item.Description = req.Description
		}
		if req.ImageURL != "" {
			item.ImageURL = req.ImageURL
		}
		if req.Price != "" {
			price, err := utils.ParseAmount(req.Price)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid price"})
				return
			}
			item.Price = price
		}
		if err := db.Save(&item).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update item"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item})
	}
}

// DeleteItemHandler removes an item from a class catalog (teacher only)
func DeleteItemHandler(db *gorm.DB) gin.HandlerFunc {
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
		if !requireClassTeacher(c, db, classID, userID) {
			return
		}
		res := db.Where("id = ? AND class_id = ?", itemID, classID).Delete(&domain.Item{})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete item"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Item deleted successfully"})
	}
}
