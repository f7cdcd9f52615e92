package domain

// User roles
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User Model
type User struct {
	ID        uint   `gorm:"primaryKey"`                    // Primary key
	Email     string `gorm:"uniqueIndex;size:255;not null"` // Unique email, used for login
	Password  string `gorm:"not null"`                      // Hashed password
	FirstName string `gorm:"size:100"`                      // First name
	LastName  string `gorm:"size:100"`                      // Last name
	Role      string `gorm:"size:10;default:student"`       // Role: teacher or student
}

// IsTeacher reports whether the user holds the teacher role
func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}
