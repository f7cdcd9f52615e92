package purchase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/pramodshanmugam/perksway/internal/db"
	"github.com/pramodshanmugam/perksway/internal/domain"
	"github.com/pramodshanmugam/perksway/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// classroom bundles the rows most scenarios need: a teacher, an enrolled
// student with a funded wallet, and one store item.
type classroom struct {
	conn    *gorm.DB
	ledger  *ledger.Service
	flow    *Workflow
	teacher uint
	student uint
	class   uint
	wallet  uint
	item    uint
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(db.Models()...))
	return conn
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newClassroom seeds a class whose student holds `balance` and whose store
// sells one item at `price`.
func newClassroom(t *testing.T, balance, price string) *classroom {
	t.Helper()
	conn := newTestDB(t)
	ldg := ledger.NewService(conn)
	ctx := context.Background()

	teacher := domain.User{Email: "teacher@school.test", Password: "hashed", Role: domain.RoleTeacher}
	require.NoError(t, conn.Create(&teacher).Error)
	student := domain.User{Email: "student@school.test", Password: "hashed", Role: domain.RoleStudent}
	require.NoError(t, conn.Create(&student).Error)

	class := domain.Class{Name: "Homeroom", Code: "ROOM1234", TeacherID: teacher.ID}
	require.NoError(t, conn.Create(&class).Error)
	require.NoError(t, conn.Create(&domain.Enrollment{ClassID: class.ID, UserID: student.ID}).Error)

	wallet, err := ldg.GetOrCreateWallet(ctx, student.ID, class.ID)
	require.NoError(t, err)
	if balance != "0" {
		_, err = ldg.Credit(ctx, wallet.ID, amount(balance), "Seed")
		require.NoError(t, err)
	}

	item := domain.Item{ClassID: class.ID, Name: "Homework pass", Price: amount(price)}
	require.NoError(t, conn.Create(&item).Error)

	return &classroom{
		conn:    conn,
		ledger:  ldg,
		flow:    NewWorkflow(conn, ldg),
		teacher: teacher.ID,
		student: student.ID,
		class:   class.ID,
		wallet:  wallet.ID,
		item:    item.ID,
	}
}

func TestRequestAndApprove(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	ctx := context.Background()

	req, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusPending, req.Status)
	assert.True(t, req.Amount.Equal(amount("20.00")))

	decided, err := cr.flow.Decide(ctx, cr.teacher, req.ID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusApproved, decided.Status)

	balance, err := cr.ledger.Balance(ctx, cr.student, cr.class)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("30.00")), "balance %s", balance)

	// The debit carries the item name in its audit record
	var tx domain.Transaction
	require.NoError(t, cr.conn.Where("wallet_id = ? AND type = ?", cr.wallet, domain.TransactionTypeDebit).First(&tx).Error)
	assert.Equal(t, "Purchase: Homework pass", tx.Description)
}

func TestRequestRequiresEnrollment(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	outsider := domain.User{Email: "other@school.test", Password: "hashed", Role: domain.RoleStudent}
	require.NoError(t, cr.conn.Create(&outsider).Error)

	_, err := cr.flow.Request(context.Background(), outsider.ID, cr.class, cr.item)
	assert.ErrorIs(t, err, ErrNotEnrolled)
}

func TestRequestUnknownItem(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	_, err := cr.flow.Request(context.Background(), cr.student, cr.class, 999)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRequestInsufficientBalance(t *testing.T) {
	cr := newClassroom(t, "5.00", "20.00")
	_, err := cr.flow.Request(context.Background(), cr.student, cr.class, cr.item)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestAmountSnapshotSurvivesPriceEdit(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	ctx := context.Background()

	req, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)

	// Price edit after the request must not change what gets debited
	require.NoError(t, cr.conn.Model(&domain.Item{}).
		Where("id = ?", cr.item).
		Update("price", amount("45.00")).Error)

	_, err = cr.flow.Decide(ctx, cr.teacher, req.ID, ActionApprove)
	require.NoError(t, err)

	balance, err := cr.ledger.Balance(ctx, cr.student, cr.class)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("30.00")), "balance %s", balance)
}

func TestDeclineLeavesLedgerUntouched(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	ctx := context.Background()

	req, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)

	decided, err := cr.flow.Decide(ctx, cr.teacher, req.ID, ActionDecline)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusDeclined, decided.Status)

	balance, err := cr.ledger.Balance(ctx, cr.student, cr.class)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("50.00")))
	var debits int64
	require.NoError(t, cr.conn.Model(&domain.Transaction{}).
		Where("wallet_id = ? AND type = ?", cr.wallet, domain.TransactionTypeDebit).
		Count(&debits).Error)
	assert.Zero(t, debits)
}

func TestSecondDecisionFails(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	ctx := context.Background()

	req, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)
	_, err = cr.flow.Decide(ctx, cr.teacher, req.ID, ActionApprove)
	require.NoError(t, err)

	// Both a repeat approval and a late decline bounce off the closed request
	_, err = cr.flow.Decide(ctx, cr.teacher, req.ID, ActionApprove)
	assert.ErrorIs(t, err, ErrRequestClosed)
	_, err = cr.flow.Decide(ctx, cr.teacher, req.ID, ActionDecline)
	assert.ErrorIs(t, err, ErrRequestClosed)

	// Debited exactly once
	balance, err := cr.ledger.Balance(ctx, cr.student, cr.class)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount("30.00")), "balance %s", balance)
}

func TestDecideValidation(t *testing.T) {
	cr := newClassroom(t, "50.00", "20.00")
	ctx := context.Background()

	req, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)

	_, err = cr.flow.Decide(ctx, cr.teacher, req.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = cr.flow.Decide(ctx, cr.teacher, 999, ActionApprove)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	other := domain.User{Email: "other@school.test", Password: "hashed", Role: domain.RoleTeacher}
	require.NoError(t, cr.conn.Create(&other).Error)
	_, err = cr.flow.Decide(ctx, other.ID, req.ID, ActionApprove)
	assert.ErrorIs(t, err, ErrNotClassTeacher)

	// None of the rejected calls moved the request
	var current domain.PurchaseRequest
	require.NoError(t, cr.conn.First(&current, req.ID).Error)
	assert.Equal(t, domain.PurchaseStatusPending, current.Status)
}

func TestApproveAfterBalanceDropStaysPending(t *testing.T) {
	cr := newClassroom(t, "20.00", "20.00")
	ctx := context.Background()

	req, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)

	// The wallet drains between request and decision
	_, err = cr.ledger.Debit(ctx, cr.wallet, amount("10.00"), "Spent elsewhere")
	require.NoError(t, err)

	_, err = cr.flow.Decide(ctx, cr.teacher, req.ID, ActionApprove)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// The claim rolled back: the request is still pending and retryable
	var current domain.PurchaseRequest
	require.NoError(t, cr.conn.First(&current, req.ID).Error)
	assert.Equal(t, domain.PurchaseStatusPending, current.Status)

	// Top up and retry
	_, err = cr.ledger.Credit(ctx, cr.wallet, amount("10.00"), "Top up")
	require.NoError(t, err)
	decided, err := cr.flow.Decide(ctx, cr.teacher, req.ID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseStatusApproved, decided.Status)
}

func TestListViews(t *testing.T) {
	cr := newClassroom(t, "50.00", "10.00")
	ctx := context.Background()

	first, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)
	second, err := cr.flow.Request(ctx, cr.student, cr.class, cr.item)
	require.NoError(t, err)
	_, err = cr.flow.Decide(ctx, cr.teacher, first.ID, ActionDecline)
	require.NoError(t, err)

	all, err := cr.flow.List(ctx, cr.teacher, cr.class, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := cr.flow.List(ctx, cr.teacher, cr.class, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, "Homework pass", pending[0].Item.Name)

	mine, err := cr.flow.ListForStudent(ctx, cr.student, cr.class)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = cr.flow.List(ctx, cr.student, cr.class, false)
	assert.ErrorIs(t, err, ErrNotClassTeacher)
	_, err = cr.flow.List(ctx, cr.teacher, 999, false)
	assert.ErrorIs(t, err, ErrClassNotFound)
}
