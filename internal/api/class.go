package api

import (
	"errors"   // Error comparisons
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/pramodshanmugam/perksway/internal/domain" // Importing domain models
	"github.com/pramodshanmugam/perksway/internal/ledger" // Wallet ledger
	"github.com/pramodshanmugam/perksway/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// CreateClassRequest represents a class creation request
type CreateClassRequest struct {
	Name        string `json:"name" binding:"required"` // Class name
	Description string `json:"description"`             // Optional description
}

// ClassResponse is the serialized class returned to clients
type ClassResponse struct {
	ID          uint   `json:"id"`          // Class ID
	Name        string `json:"name"`        // Class name
	Description string `json:"description"` // Description
	Code        string `json:"class_code"`  // Join code
	Teacher     string `json:"teacher"`     // Teacher email
}

// classResponse maps a class (with Teacher preloaded) to its response form
func classResponse(class domain.Class) ClassResponse {
	return ClassResponse{
		ID:          class.ID,
		Name:        class.Name,
		Description: class.Description,
		Code:        class.Code,
		Teacher:     class.Teacher.Email,
	}
}

// classIDParam parses the :class_id path parameter
func classIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("class_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid class id"})
		return 0, false
	}
	return uint(id), true
}

// CreateClassHandler creates a class owned by the calling teacher, with a
// freshly generated join code
func CreateClassHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		teacherID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req CreateClassRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Retry code generation on the (rare) unique-index collision
		var class domain.Class
		for attempt := 0; attempt < 3; attempt++ {
			code, err := utils.GenerateClassCode(8)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate class code"})
				return
			}
			class = domain.Class{
				Name:        req.Name,
				Description: req.Description,
				Code:        code,
				TeacherID:   teacherID,
			}
			if err := db.Create(&class).Error; err == nil {
				break
			} else if attempt == 2 {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create class"})
				return
			}
		}
		logrus.WithFields(logrus.Fields{
			"class_id":   class.ID,
			"teacher_id": teacherID,
			"code":       class.Code,
		}).Info("Class created")
		c.JSON(http.StatusCreated, gin.H{"message": "Class created", "class": gin.H{
			"id":          class.ID,
			"name":        class.Name,
			"description": class.Description,
			"class_code":  class.Code,
		}})
	}
}

// ListClassesHandler lists classes scoped by role: teachers see the classes
// they own, students the classes they are enrolled in
func ListClassesHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var user domain.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var classes []domain.Class
		var err error
		if user.IsTeacher() {
			err = db.Preload("Teacher").Where("teacher_id = ?", userID).Find(&classes).Error
		} else {
			err = db.Preload("Teacher").
				Joins("JOIN enrollments ON enrollments.class_id = classes.id").
				Where("enrollments.user_id = ?", userID).
				Find(&classes).Error
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch classes"})
			return
		}
		resp := make([]ClassResponse, len(classes))
		for i, class := range classes {
			resp[i] = classResponse(class)
		}
		c.JSON(http.StatusOK, gin.H{"classes": resp})
	}
}

// EnrolledClassesHandler returns the classes the caller belongs to: owned
// classes for a teacher, enrolled classes for a student. Students in several
// classes see all of them.
func EnrolledClassesHandler(db *gorm.DB) gin.HandlerFunc {
	return ListClassesHandler(db)
}

// JoinClassHandler enrolls a student into a class by its join code and
// lazily creates the student's wallet for that class
func JoinClassHandler(db *gorm.DB, ldg *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var user domain.User
		if err := db.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// Only students can join classes
		if user.Role != domain.RoleStudent {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only students can join classes"})
			return
		}
		var class domain.Class
		if err := db.Where("code = ?", c.Param("class_code")).First(&class).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
			return
		}
		// Duplicate enrollment is a conflict; the unique index backs this up
		enrollment := domain.Enrollment{ClassID: class.ID, UserID: userID}
		if err := db.Create(&enrollment).Error; err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "You are already enrolled in this class"})
			return
		}
		// Create a wallet for the student for this class
		if _, err := ldg.GetOrCreateWallet(c.Request.Context(), userID, class.ID); err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":  userID,
				"class_id": class.ID,
				"error":    err.Error(),
			}).Error("Wallet creation on class join failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create wallet"})
			return
		}
		logrus.WithFields(logrus.Fields{
			"user_id":  userID,
			"class_id": class.ID,
		}).Info("Student joined class")
		c.JSON(http.StatusOK, gin.H{"message": "Joined class successfully and wallet created"})
	}
}

// ClassStudentsHandler returns the roster of a class with wallet balances,
// paginated. Only the owning teacher may call it.
func ClassStudentsHandler(db *gorm.DB, ldg *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		teacherID, ok := currentUserID(c)
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
		if class.TeacherID != teacherID {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not the teacher of this class"})
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
		var total int64
		if err := db.Model(&domain.Enrollment{}).Where("class_id = ?", classID).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count students"})
			return
		}
		var students []domain.User
		err := db.Model(&domain.User{}).
			Joins("JOIN enrollments ON enrollments.user_id = users.id").
			Where("enrollments.class_id = ?", classID).
			Order("enrollments.id asc").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&students).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch students"})
			return
		}
		type studentRow struct {
			ID        uint   `json:"id"`
			Email     string `json:"email"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Balance   string `json:"balance"`
		}
		rows := make([]studentRow, len(students))
		for i, s := range students {
			row := studentRow{ID: s.ID, Email: s.Email, FirstName: s.FirstName, LastName: s.LastName}
			balance, err := ldg.Balance(c.Request.Context(), s.ID, classID)
			if err == nil {
				row.Balance = balance.StringFixed(2)
			} else if errors.Is(err, ledger.ErrWalletNotFound) {
				row.Balance = "0.00" // No wallet yet: nothing has been credited
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch balances"})
				return
			}
			rows[i] = row
		}
		totalPages := (int(total) + pageSize - 1) / pageSize
		c.JSON(http.StatusOK, gin.H{
			"students":    rows,
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": totalPages,
		})
	}
}
