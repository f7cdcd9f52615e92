package middleware

import (
	"net/http" // HTTP status codes

	"github.com/pramodshanmugam/perksway/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// TeacherOnlyMiddleware checks the user's role from the database on each
// request. The DB read, rather than trusting the token claim, means a role
// change takes effect immediately.
func TeacherOnlyMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.First(&user, userID).Error; err != nil {
			// If user not found or any error, abort with forbidden status
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Teacher access required"})
			return
		}
		// Check if user role is teacher
		if user.Role != domain.RoleTeacher {
			// If not a teacher, abort with forbidden status
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Teacher access required"})
			return
		}
		// If teacher, proceed to the next handler
		c.Next()
	}
}
