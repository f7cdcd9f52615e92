package domain

// Class Model. A class owns its groups, items, wallets and purchase
// requests; deleting a class cascades down to all of them.
type Class struct {
	ID          uint   `gorm:"primaryKey"`                                        // Primary key
	Name        string `gorm:"size:100;not null"`                                 // Display name
	Description string `gorm:"size:255"`                                          // Optional description
	Code        string `gorm:"size:10;uniqueIndex;not null"`                      // Unique join code
	TeacherID   uint   `gorm:"not null;index"`                                    // Foreign key to the owning teacher
	Teacher     User   `gorm:"foreignKey:TeacherID;constraint:OnDelete:CASCADE;"` // Owning teacher
	CreatedAt   int64  `gorm:"autoCreateTime:milli"`                              // Timestamp of creation in milliseconds
	UpdatedAt   int64  `gorm:"autoUpdateTime:milli"`                              // Timestamp of last update
}

// Enrollment Model. One row per (class, student); replaces set-valued
// membership so enrollment checks are indexed lookups.
type Enrollment struct {
	ID        uint  `gorm:"primaryKey"`                                      // Primary key
	ClassID   uint  `gorm:"not null;uniqueIndex:idx_enrollment_class_user"`  // Foreign key to Class
	UserID    uint  `gorm:"not null;uniqueIndex:idx_enrollment_class_user"`  // Foreign key to User
	Class     Class `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE;"` // Enrolled class
	User      User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`  // Enrolled student
	CreatedAt int64 `gorm:"autoCreateTime:milli"`                            // Timestamp of creation in milliseconds
}
