package purchase

import (
	"context" // Context for DB operations
	"errors"  // Error values

	"github.com/pramodshanmugam/perksway/internal/domain" // Domain models
	"github.com/pramodshanmugam/perksway/internal/ledger" // Wallet ledger

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Decision actions
const (
	ActionApprove = "approve"
	ActionDecline = "decline"
)

// Workflow errors
var (
	ErrNotEnrolled     = errors.New("student is not enrolled in this class")
	ErrClassNotFound   = errors.New("class not found")
	ErrItemNotFound    = errors.New("item not found in this class")
	ErrRequestNotFound = errors.New("purchase request not found")
	ErrNotClassTeacher = errors.New("caller is not the teacher of this class")
	ErrInvalidAction   = errors.New("action must be 'approve' or 'decline'")
	ErrRequestClosed   = errors.New("purchase request has already been decided")
)

// Workflow drives purchase requests through their lifecycle:
// pending -> approved | declined, both terminal. Approval is the only path
// that touches the ledger, and it debits the student's wallet exactly once.
type Workflow struct {
	db     *gorm.DB
	ledger *ledger.Service
}

// NewWorkflow creates a purchase workflow
func NewWorkflow(db *gorm.DB, ledger *ledger.Service) *Workflow {
	return &Workflow{db: db, ledger: ledger}
}

// Request creates a pending purchase request for an item. The balance check
// here is a pre-check only, not a hold: the wallet can still be drained
// before the teacher decides, which approval re-validates.
func (w *Workflow) Request(ctx context.Context, studentID, classID, itemID uint) (*domain.PurchaseRequest, error) {
	var enrolled int64
	if err := w.db.WithContext(ctx).Model(&domain.Enrollment{}).
		Where("class_id = ? AND user_id = ?", classID, studentID).
		Count(&enrolled).Error; err != nil {
		return nil, err
	}
	if enrolled == 0 {
		return nil, ErrNotEnrolled
	}

	var item domain.Item
	err := w.db.WithContext(ctx).
		Where("id = ? AND class_id = ?", itemID, classID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	balance, err := w.ledger.Balance(ctx, studentID, classID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(item.Price) {
		return nil, ledger.ErrInsufficientBalance
	}

	req := domain.PurchaseRequest{
		StudentID: studentID,
		ItemID:    item.ID,
		ClassID:   classID,
		Amount:    item.Price, // Snapshot: later price edits do not affect this request
		Status:    domain.PurchaseStatusPending,
	}
	if err := w.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"request_id": req.ID,
		"student_id": studentID,
		"item_id":    item.ID,
		"amount":     req.Amount.String(),
	}).Info("Purchase requested")
	return &req, nil
}

// Decide applies a teacher's approve/decline decision to a pending request.
// The status transition is claimed with a conditional UPDATE keyed on the
// pending status, so a second decision on the same request fails with
// ErrRequestClosed instead of double-debiting. An approval whose debit hits
// an insufficient balance rolls the claim back and leaves the request
// pending, so it can be retried once the wallet is topped up.
func (w *Workflow) Decide(ctx context.Context, teacherID, requestID uint, action string) (*domain.PurchaseRequest, error) {
	if action != ActionApprove && action != ActionDecline {
		return nil, ErrInvalidAction
	}

	var req domain.PurchaseRequest
	err := w.db.WithContext(ctx).First(&req, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	// Authorization before any side effect: caller must own the class
	var class domain.Class
	if err := w.db.WithContext(ctx).First(&class, req.ClassID).Error; err != nil {
		return nil, err
	}
	if class.TeacherID != teacherID {
		return nil, ErrNotClassTeacher
	}

	newStatus := domain.PurchaseStatusDeclined
	if action == ActionApprove {
		newStatus = domain.PurchaseStatusApproved
	}

	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Claim the transition; zero rows means another decision got there first
		res := tx.Model(&domain.PurchaseRequest{}).
			Where("id = ? AND status = ?", requestID, domain.PurchaseStatusPending).
			Update("status", newStatus)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRequestClosed
		}
		if action != ActionApprove {
			return nil // Decline never touches the ledger
		}
		wallet, err := w.ledger.WithTx(tx).Wallet(ctx, req.StudentID, req.ClassID)
		if err != nil {
			return err
		}
		var item domain.Item
		if err := tx.First(&item, req.ItemID).Error; err != nil {
			return err
		}
		_, err = w.ledger.WithTx(tx).Debit(ctx, wallet.ID, req.Amount, "Purchase: "+item.Name)
		return err
	})
	if err != nil {
		return nil, err
	}

	req.Status = newStatus
	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"teacher_id": teacherID,
		"action":     action,
		"amount":     req.Amount.String(),
	}).Info("Purchase decided")
	return &req, nil
}

// List returns a teacher's view of the purchase requests in a class,
// optionally restricted to the pending ones.
func (w *Workflow) List(ctx context.Context, teacherID, classID uint, pendingOnly bool) ([]domain.PurchaseRequest, error) {
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
	q := w.db.WithContext(ctx).
		Preload("Student").Preload("Item").
		Where("class_id = ?", classID)
	if pendingOnly {
		q = q.Where("status = ?", domain.PurchaseStatusPending)
	}
	var reqs []domain.PurchaseRequest
	if err := q.Order("id desc").Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

// ListForStudent returns a student's own purchase requests in a class
func (w *Workflow) ListForStudent(ctx context.Context, studentID, classID uint) ([]domain.PurchaseRequest, error) {
	var reqs []domain.PurchaseRequest
	err := w.db.WithContext(ctx).
		Preload("Item").
		Where("class_id = ? AND student_id = ?", classID, studentID).
		Order("id desc").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}
