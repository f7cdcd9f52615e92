package api

import (
	"context"  // Context for Redis operations
	"errors"   // Error comparisons
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Cache TTLs

	"github.com/pramodshanmugam/perksway/internal/domain" // Importing domain models
	"github.com/pramodshanmugam/perksway/internal/groups" // Group workflow
	"github.com/pramodshanmugam/perksway/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// groupIDParam parses the :group_id path parameter
func groupIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("group_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group id"})
		return 0, false
	}
	return uint(id), true
}

// pendingCacheKey is the redis key for a group's cached pending approvals
func pendingCacheKey(groupID uint) string {
	return "group:pending:" + strconv.Itoa(int(groupID))
}

// groupError maps workflow errors to HTTP responses. GroupFull keeps the
// 403 the original API used.
func groupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, groups.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
	case errors.Is(err, groups.ErrClassNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
	case errors.Is(err, groups.ErrNotClassTeacher):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
	case errors.Is(err, groups.ErrAlreadyGrouped):
		c.JSON(http.StatusConflict, gin.H{"error": "Already in another group in this class"})
	case errors.Is(err, groups.ErrGroupFull):
		c.JSON(http.StatusForbidden, gin.H{"error": "Group is full"})
	case errors.Is(err, groups.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
	case errors.Is(err, groups.ErrNoPendingRequest):
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending join request for this user"})
	case errors.Is(err, groups.ErrTooManyGroups):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many groups requested"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Group operation failed"})
	}
}

// CreateGroupRequest represents a group creation payload
type CreateGroupRequest struct {
	Name             string `json:"name" binding:"required"`      // Group name
	Description      string `json:"description"`                  // Optional description
	ClassID          uint   `json:"class_ref" binding:"required"` // Owning class
	MaxStudents      uint   `json:"max_students"`                 // 0 means unlimited
	RequiresApproval bool   `json:"requires_approval"`            // Approval gating
}

// CreateGroupHandler creates one group in a class (teacher only)
func CreateGroupHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req CreateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if !requireClassTeacher(c, db, req.ClassID, userID) {
			return
		}
		group := domain.Group{
			Name:             req.Name,
			Description:      req.Description,
			ClassID:          req.ClassID,
			CreatorID:        userID,
			MaxStudents:      req.MaxStudents,
			RequiresApproval: req.RequiresApproval,
		}
		if err := db.Create(&group).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"group": group})
	}
}

// ListGroupsHandler lists all groups of a class. Only the class teacher and
// enrolled students may look.
func ListGroupsHandler(db *gorm.DB) gin.HandlerFunc {
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
		if class.TeacherID != userID {
			var enrolled int64
			if err := db.Model(&domain.Enrollment{}).
				Where("class_id = ? AND user_id = ?", classID, userID).
				Count(&enrolled).Error; err != nil || enrolled == 0 {
				c.JSON(http.StatusForbidden, gin.H{"error": "You are not a member of this class"})
				return
			}
		}
		var groupList []domain.Group
		if err := db.Where("class_id = ?", classID).Order("id asc").Find(&groupList).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groupList})
	}
}

// GroupDetailHandler returns a group with its confirmed members
func GroupDetailHandler(db *gorm.DB, w *groups.Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUserID(c); !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		var group domain.Group
		if err := db.First(&group, groupID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
		members, err := w.Members(c.Request.Context(), groupID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
			return
		}
		type memberRow struct {
			ID        uint   `json:"id"`
			Email     string `json:"email"`
			FirstName string `json:"firstname"`
			LastName  string `json:"lastname"`
		}
		rows := make([]memberRow, len(members))
		for i, m := range members {
			rows[i] = memberRow{ID: m.ID, Email: m.Email, FirstName: m.FirstName, LastName: m.LastName}
		}
		c.JSON(http.StatusOK, gin.H{"group": group, "students": rows})
	}
}

// UpdateGroupRequest represents a partial group update
type UpdateGroupRequest struct {
	Name             *string `json:"name"`              // New name
	Description      *string `json:"description"`       // New description
	MaxStudents      *uint   `json:"max_students"`      // New capacity
	RequiresApproval *bool   `json:"requires_approval"` // New approval gating
}

// UpdateGroupHandler edits a group (teacher of the owning class only)
func UpdateGroupHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		var group domain.Group
		if err := db.Preload("Class").First(&group, groupID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
		if group.Class.TeacherID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not authorized to update this group"})
			return
		}
		var req UpdateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.Name != nil {
			group.Name = *req.Name
		}
		if req.Description != nil {
			group.Description = *req.Description
		}
		if req.MaxStudents != nil {
			group.MaxStudents = *req.MaxStudents
		}
		if req.RequiresApproval != nil {
			group.RequiresApproval = *req.RequiresApproval
		}
		if err := db.Save(&group).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"group": group})
	}
}

// DeleteGroupHandler removes a group and, via cascade, its memberships
func DeleteGroupHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		var group domain.Group
		if err := db.Preload("Class").First(&group, groupID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
			return
		}
		if group.Class.TeacherID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied. You are not the creator of this group"})
			return
		}
		if err := db.Delete(&group).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Group deleted successfully"})
	}
}

// JoinGroupHandler lets a student join (or request to join) a group
func JoinGroupHandler(w *groups.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		result, err := w.Join(c.Request.Context(), userID, groupID)
		if err != nil {
			groupError(c, err)
			return
		}
		_ = utils.DeleteCache(context.Background(), rdb, pendingCacheKey(groupID))
		if result == groups.AwaitingApproval {
			c.JSON(http.StatusOK, gin.H{"message": "Join request submitted for approval"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Successfully joined the group"})
	}
}

// PendingApprovalsHandler lists a group's pending join requests for its
// teacher. ?count=true returns only the number, served from cache when warm.
func PendingApprovalsHandler(w *groups.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		countOnly := c.Query("count") != "" && c.Query("count") != "false"
		ctx := context.Background()
		if countOnly {
			var cached struct {
				Count int `json:"count"`
			}
			if found, err := utils.GetCache(ctx, rdb, pendingCacheKey(groupID), &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{"count": cached.Count, "cached": true})
				return
			}
		}
		pending, err := w.PendingApprovals(c.Request.Context(), userID, groupID)
		if err != nil {
			groupError(c, err)
			return
		}
		if countOnly {
			_ = utils.SetCache(ctx, rdb, pendingCacheKey(groupID), gin.H{"count": len(pending)}, 30*time.Second)
			c.JSON(http.StatusOK, gin.H{"count": len(pending)})
			return
		}
		type pendingRow struct {
			ID        uint   `json:"id"`
			FirstName string `json:"firstname"`
			LastName  string `json:"lastname"`
		}
		rows := make([]pendingRow, len(pending))
		for i, u := range pending {
			rows[i] = pendingRow{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
		}
		c.JSON(http.StatusOK, gin.H{"pending_approvals": rows, "count": len(rows)})
	}
}

// DecideJoinRequest represents a single join decision payload
type DecideJoinRequest struct {
	UserID uint   `json:"user_id" binding:"required"` // Student to decide on
	Action string `json:"action" binding:"required"`  // approve or decline
}

// DecideJoinHandler applies a teacher's decision to one pending join request
func DecideJoinHandler(w *groups.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		var req DecideJoinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := w.Decide(c.Request.Context(), userID, groupID, req.UserID, req.Action); err != nil {
			groupError(c, err)
			return
		}
		_ = utils.DeleteCache(context.Background(), rdb, pendingCacheKey(groupID))
		if req.Action == groups.ActionApprove {
			c.JSON(http.StatusOK, gin.H{"message": "Student approved to join"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Student request declined"})
	}
}

// BulkDecideRequest represents a bulk join decision payload
type BulkDecideRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"` // Students to decide on
	Action  string `json:"action" binding:"required"`   // approve or decline
}

// BulkDecideHandler applies one decision to a set of pending join requests
func BulkDecideHandler(w *groups.Workflow, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		groupID, ok := groupIDParam(c)
		if !ok {
			return
		}
		var req BulkDecideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		decided, err := w.DecideBulk(c.Request.Context(), userID, groupID, req.UserIDs, req.Action)
		if err != nil {
			groupError(c, err)
			return
		}
		_ = utils.DeleteCache(context.Background(), rdb, pendingCacheKey(groupID))
		if req.Action == groups.ActionApprove {
			c.JSON(http.StatusOK, gin.H{"message": "Students approved to join", "decided": decided})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Student requests declined", "decided": decided})
	}
}

// BulkCreateGroupsRequest represents a bulk group creation payload
type BulkCreateGroupsRequest struct {
	NumberOfGroups   int    `json:"number_of_groups" binding:"required,gt=0"` // How many groups
	GroupNamePrefix  string `json:"group_name_prefix" binding:"required"`     // Name prefix
	MaxStudents      uint   `json:"max_students"`                             // Capacity per group
	RequiresApproval bool   `json:"requires_approval"`                        // Approval gating per group
}

// BulkCreateGroupsHandler creates "{prefix} 1".."{prefix} N" in a class
func BulkCreateGroupsHandler(w *groups.Workflow) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		classID, ok := classIDParam(c)
		if !ok {
			return
		}
		var req BulkCreateGroupsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		created, err := w.CreateBulk(c.Request.Context(), userID, classID,
			req.NumberOfGroups, req.GroupNamePrefix, req.MaxStudents, req.RequiresApproval)
		if err != nil {
			groupError(c, err)
			return
		}
		names := make([]string, len(created))
		for i, g := range created {
			names[i] = g.Name
		}
		c.JSON(http.StatusCreated, gin.H{
			"message": strconv.Itoa(len(created)) + " groups created successfully",
			"groups":  names,
		})
	}
}
