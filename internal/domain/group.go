package domain

// Membership statuses
const (
	MembershipMember  = "member"
	MembershipPending = "pending"
)

// Group Model
type Group struct {
	ID               uint   `gorm:"primaryKey"`                                        // Primary key
	Name             string `gorm:"size:100;not null"`                                 // Display name
	Description      string `gorm:"size:255"`                                          // Optional description
	ClassID          uint   `gorm:"not null;index"`                                    // Foreign key to Class
	Class            Class  `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE;"`   // Owning class
	CreatorID        uint   `gorm:"not null"`                                          // Foreign key to the creating teacher
	Creator          User   `gorm:"foreignKey:CreatorID;constraint:OnDelete:CASCADE;"` // Creating teacher
	MaxStudents      uint   `gorm:"not null;default:0"`                                // Capacity, 0 means unlimited
	RequiresApproval bool   `gorm:"not null;default:false"`                            // Whether joins need teacher approval
	CreatedAt        int64  `gorm:"autoCreateTime:milli"`                              // Timestamp of creation in milliseconds
	UpdatedAt        int64  `gorm:"autoUpdateTime:milli"`                              // Timestamp of last update
}

// GroupMembership Model. One row per (group, user) with a status column, so
// a user can never be a confirmed member and a pending applicant of the same
// group at the same time.
type GroupMembership struct {
	ID        uint   `gorm:"primaryKey"`                                      // Primary key
	GroupID   uint   `gorm:"not null;uniqueIndex:idx_membership_group_user"`  // Foreign key to Group
	UserID    uint   `gorm:"not null;uniqueIndex:idx_membership_group_user"`  // Foreign key to User
	Group     Group  `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE;"` // Owning group
	User      User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`  // Member or applicant
	Status    string `gorm:"size:10;not null"`                                // member or pending
	CreatedAt int64  `gorm:"autoCreateTime:milli"`                            // Timestamp of creation in milliseconds
}
