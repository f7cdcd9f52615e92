package groups

import (
	"context" // Context for DB operations
	"errors"  // Error values
	"fmt"     // Group name formatting
	"time"    // Lock timestamps

	"github.com/pramodshanmugam/perksway/internal/domain" // Domain models

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Decision actions
const (
	ActionApprove = "approve"
	ActionDecline = "decline"
)

// Join results
type JoinResult string

const (
	Joined           JoinResult = "joined"            // Added directly to the member set
	AwaitingApproval JoinResult = "awaiting_approval" // Added to the pending set
)

// Workflow errors
var (
	ErrGroupNotFound    = errors.New("group not found")
	ErrClassNotFound    = errors.New("class not found")
	ErrNotClassTeacher  = errors.New("caller is not the teacher of this class")
	ErrAlreadyGrouped   = errors.New("user already belongs to a group in this class")
	ErrGroupFull        = errors.New("group is full")
	ErrInvalidAction    = errors.New("action must be 'approve' or 'decline'")
	ErrNoPendingRequest = errors.New("user has no pending join request for this group")
	ErrTooManyGroups    = errors.New("too many groups requested")
)

// Workflow drives group membership through the same pending -> decision
// shape as purchases, applied to seats instead of money. Capacity checks run
// under a write lock on the group row, so concurrent joins cannot jointly
// exceed MaxStudents.
type Workflow struct {
	db        *gorm.DB
	bulkLimit int
}

// NewWorkflow creates a group workflow. bulkLimit caps bulk group creation.
func NewWorkflow(db *gorm.DB, bulkLimit int) *Workflow {
	return &Workflow{db: db, bulkLimit: bulkLimit}
}

// lockGroup serializes writers on one group. The touch-update takes the row
// write lock in the enclosing transaction without dialect-specific SQL.
func lockGroup(tx *gorm.DB, groupID uint) error {
	return tx.Model(&domain.Group{}).
		Where("id = ?", groupID).
		Update("updated_at", time.Now().UnixMilli()).Error
}

// memberCount counts confirmed members of a group
func memberCount(tx *gorm.DB, groupID uint) (int64, error) {
	var n int64
	err := tx.Model(&domain.GroupMembership{}).
		Where("group_id = ? AND status = ?", groupID, domain.MembershipMember).
		Count(&n).Error
	return n, err
}

// classMembershipQuery selects the membership rows a user holds across all
// groups of a class, pending included. The group filter is a model subquery
// rather than a raw join: GROUPS is a reserved word in MySQL 8, so the table
// name must go through the dialect quoter.
func classMembershipQuery(tx *gorm.DB, classID, userID uint) *gorm.DB {
	groupIDs := tx.Session(&gorm.Session{NewDB: true}).
		Model(&domain.Group{}).
		Select("id").
		Where("class_id = ?", classID)
	return tx.Model(&domain.GroupMembership{}).
		Where("user_id = ? AND group_id IN (?)", userID, groupIDs)
}

// Join adds a user to a group, or to its pending set when the group
// requires approval. A user can hold at most one membership row (member or
// pending) across all groups of a class.
func (w *Workflow) Join(ctx context.Context, userID, groupID uint) (JoinResult, error) {
	var group domain.Group
	err := w.db.WithContext(ctx).First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrGroupNotFound
	}
	if err != nil {
		return "", err
	}

	result := Joined
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, groupID); err != nil {
			return err
		}
		// One group per class, pending requests included
		var existing int64
		err := classMembershipQuery(tx, group.ClassID, userID).Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyGrouped
		}
		if group.MaxStudents > 0 {
			n, err := memberCount(tx, groupID)
			if err != nil {
				return err
			}
			if n >= int64(group.MaxStudents) {
				return ErrGroupFull
			}
		}
		status := domain.MembershipMember
		if group.RequiresApproval {
			status = domain.MembershipPending
			result = AwaitingApproval
		}
		return tx.Create(&domain.GroupMembership{
			GroupID: groupID,
			UserID:  userID,
			Status:  status,
		}).Error
	})
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"group_id": groupID,
		"user_id":  userID,
		"result":   string(result),
	}).Info("Group join")
	return result, nil
}

// loadGroupForTeacher fetches a group and checks the caller owns its class
func (w *Workflow) loadGroupForTeacher(ctx context.Context, teacherID, groupID uint) (*domain.Group, error) {
	var group domain.Group
	err := w.db.WithContext(ctx).Preload("Class").First(&group, groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if group.Class.TeacherID != teacherID {
		return nil, ErrNotClassTeacher
	}
	return &group, nil
}

// decideOne applies one approve/decline inside its own transaction. Approval
// re-checks capacity at decision time under the group lock.
func (w *Workflow) decideOne(ctx context.Context, group *domain.Group, userID uint, action string) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, group.ID); err != nil {
			return err
		}
		var membership domain.GroupMembership
		err := tx.Where("group_id = ? AND user_id = ? AND status = ?",
			group.ID, userID, domain.MembershipPending).
			First(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoPendingRequest
		}
		if err != nil {
			return err
		}
		if action == ActionDecline {
			return tx.Delete(&membership).Error
		}
		if group.MaxStudents > 0 {
			n, err := memberCount(tx, group.ID)
			if err != nil {
				return err
			}
			if n >= int64(group.MaxStudents) {
				return ErrGroupFull
			}
		}
		return tx.Model(&membership).Update("status", domain.MembershipMember).Error
	})
}

// Decide applies a teacher's decision to a single pending join request
func (w *Workflow) Decide(ctx context.Context, teacherID, groupID, userID uint, action string) error {
	if action != ActionApprove && action != ActionDecline {
		return ErrInvalidAction
	}
	group, err := w.loadGroupForTeacher(ctx, teacherID, groupID)
	if err != nil {
		return err
	}
	if err := w.decideOne(ctx, group, userID, action); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"group_id": groupID,
		"user_id":  userID,
		"action":   action,
	}).Info("Join request decided")
	return nil
}

// DecideBulk applies the same decision to a set of users in order. Users
// without a pending request are skipped; each decision commits on its own,
// so a capacity failure partway through leaves the already-approved prefix
// in place and reports ErrGroupFull for the remainder.
func (w *Workflow) DecideBulk(ctx context.Context, teacherID, groupID uint, userIDs []uint, action string) (int, error) {
	if action != ActionApprove && action != ActionDecline {
		return 0, ErrInvalidAction
	}
	group, err := w.loadGroupForTeacher(ctx, teacherID, groupID)
	if err != nil {
		return 0, err
	}
	decided := 0
	for _, userID := range userIDs {
		err := w.decideOne(ctx, group, userID, action)
		if errors.Is(err, ErrNoPendingRequest) {
			continue // Unknown or already-handled user IDs are skipped
		}
		if err != nil {
			return decided, err
		}
		decided++
	}
	logrus.WithFields(logrus.Fields{
		"group_id": groupID,
		"action":   action,
		"decided":  decided,
	}).Info("Bulk join decision")
	return decided, nil
}

// CreateBulk creates count groups named "{prefix} {i}" in one class. Each
// group commits independently, so a failure partway through leaves a
// well-defined prefix of created groups.
func (w *Workflow) CreateBulk(ctx context.Context, teacherID, classID uint, count int, prefix string, maxStudents uint, requiresApproval bool) ([]domain.Group, error) {
	if count < 1 || count > w.bulkLimit {
		return nil, ErrTooManyGroups
	}
	var class domain.Class
	err := w.db.WithContext(ctx).First(&class, classID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, err
	}
	if class.TeacherID != teacherID {
		return nil, ErrNotClassTeacher
	}
	created := make([]domain.Group, 0, count)
	for i := 1; i <= count; i++ {
		group := domain.Group{
			Name:             fmt.Sprintf("%s %d", prefix, i),
			ClassID:          classID,
			CreatorID:        teacherID,
			MaxStudents:      maxStudents,
			RequiresApproval: requiresApproval,
		}
		if err := w.db.WithContext(ctx).Create(&group).Error; err != nil {
			return created, err
		}
		created = append(created, group)
	}
	logrus.WithFields(logrus.Fields{
		"class_id": classID,
		"count":    count,
		"prefix":   prefix,
	}).Info("Bulk group creation")
	return created, nil
}

// PendingApprovals returns the users awaiting approval for a group
func (w *Workflow) PendingApprovals(ctx context.Context, teacherID, groupID uint) ([]domain.User, error) {
	if _, err := w.loadGroupForTeacher(ctx, teacherID, groupID); err != nil {
		return nil, err
	}
	var users []domain.User
	err := w.db.WithContext(ctx).Model(&domain.User{}).
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ? AND group_memberships.status = ?",
			groupID, domain.MembershipPending).
		Order("group_memberships.id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Members returns the confirmed members of a group
func (w *Workflow) Members(ctx context.Context, groupID uint) ([]domain.User, error) {
	var users []domain.User
	err := w.db.WithContext(ctx).Model(&domain.User{}).
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ? AND group_memberships.status = ?",
			groupID, domain.MembershipMember).
		Order("group_memberships.id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
