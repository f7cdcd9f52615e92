package groups

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pramodshanmugam/perksway/internal/db"
	"github.com/pramodshanmugam/perksway/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

// newFileTestDB backs the database with a real file so concurrent writers see
// SQLITE_BUSY, which the busy timeout retries. Shared-cache in-memory databases
// fail those writes with SQLITE_LOCKED instead, which is not retried.
func newFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", filepath.Join(t.TempDir(), "test.db"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(db.Models()...))
	return conn
}

func seedTeacherAndClass(t *testing.T, conn *gorm.DB) (uint, uint) {
	t.Helper()
	teacher := domain.User{Email: "teacher@school.test", Password: "hashed", Role: domain.RoleTeacher}
	require.NoError(t, conn.Create(&teacher).Error)
	class := domain.Class{Name: "Homeroom", Code: "ROOM1234", TeacherID: teacher.ID}
	require.NoError(t, conn.Create(&class).Error)
	return teacher.ID, class.ID
}

func seedStudent(t *testing.T, conn *gorm.DB, email string) uint {
	t.Helper()
	u := domain.User{Email: email, Password: "hashed", Role: domain.RoleStudent}
	require.NoError(t, conn.Create(&u).Error)
	return u.ID
}

func seedGroup(t *testing.T, conn *gorm.DB, classID, creatorID uint, maxStudents uint, requiresApproval bool) uint {
	t.Helper()
	g := domain.Group{
		Name:             "Reading circle",
		ClassID:          classID,
		CreatorID:        creatorID,
		MaxStudents:      maxStudents,
		RequiresApproval: requiresApproval,
	}
	require.NoError(t, conn.Create(&g).Error)
	return g.ID
}

func TestJoinOpenGroup(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 0, false)
	student := seedStudent(t, conn, "student@school.test")
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	result, err := w.Join(ctx, student, group)
	require.NoError(t, err)
	assert.Equal(t, Joined, result)

	members, err := w.Members(ctx, group)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, student, members[0].ID)
}

func TestJoinGatedGroupAwaitsApproval(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 0, true)
	student := seedStudent(t, conn, "student@school.test")
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	result, err := w.Join(ctx, student, group)
	require.NoError(t, err)
	assert.Equal(t, AwaitingApproval, result)

	// Pending, not a member yet
	members, err := w.Members(ctx, group)
	require.NoError(t, err)
	assert.Empty(t, members)
	pending, err := w.PendingApprovals(ctx, teacher, group)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, student, pending[0].ID)
}

func TestOneGroupPerClass(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	first := seedGroup(t, conn, class, teacher, 0, false)
	second := seedGroup(t, conn, class, teacher, 0, false)
	gated := seedGroup(t, conn, class, teacher, 0, true)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	member := seedStudent(t, conn, "member@school.test")
	_, err := w.Join(ctx, member, first)
	require.NoError(t, err)

	// A confirmed member cannot join or re-join anything in the class
	_, err = w.Join(ctx, member, second)
	assert.ErrorIs(t, err, ErrAlreadyGrouped)
	_, err = w.Join(ctx, member, first)
	assert.ErrorIs(t, err, ErrAlreadyGrouped)

	// A pending request blocks other joins in the class too
	waiting := seedStudent(t, conn, "waiting@school.test")
	_, err = w.Join(ctx, waiting, gated)
	require.NoError(t, err)
	_, err = w.Join(ctx, waiting, second)
	assert.ErrorIs(t, err, ErrAlreadyGrouped)
}

func TestJoinFullGroup(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 2, false)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		s := seedStudent(t, conn, fmt.Sprintf("student%d@school.test", i))
		_, err := w.Join(ctx, s, group)
		require.NoError(t, err)
	}

	late := seedStudent(t, conn, "late@school.test")
	_, err := w.Join(ctx, late, group)
	assert.ErrorIs(t, err, ErrGroupFull)
}

func TestConcurrentJoinsHonorCapacity(t *testing.T) {
	conn := newFileTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 1, false)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	const racers = 4
	students := make([]uint, racers)
	for i := range students {
		students[i] = seedStudent(t, conn, fmt.Sprintf("racer%d@school.test", i))
	}

	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for _, s := range students {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := w.Join(ctx, userID, group)
			errs <- err
		}(s)
	}
	wg.Wait()
	close(errs)

	var joined, full int
	for err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrGroupFull):
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, racers-1, full)

	// The single seat is never overfilled
	members, err := w.Members(ctx, group)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

// The group filter must render through the dialect quoter: GROUPS is a
// reserved word in MySQL 8 and a bare raw-SQL mention of the table is a
// syntax error there.
func TestMembershipLookupQuotesGroupTable(t *testing.T) {
	conn := newTestDB(t)
	dry := conn.Session(&gorm.Session{DryRun: true})

	var n int64
	stmt := classMembershipQuery(dry, 1, 2).Count(&n).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "`groups`")
	assert.NotContains(t, sql, "JOIN groups")
}

func TestDecideJoinRequest(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 0, true)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	approved := seedStudent(t, conn, "approved@school.test")
	declined := seedStudent(t, conn, "declined@school.test")
	for _, s := range []uint{approved, declined} {
		_, err := w.Join(ctx, s, group)
		require.NoError(t, err)
	}

	require.NoError(t, w.Decide(ctx, teacher, group, approved, ActionApprove))
	require.NoError(t, w.Decide(ctx, teacher, group, declined, ActionDecline))

	members, err := w.Members(ctx, group)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, approved, members[0].ID)

	// A declined student may ask again
	result, err := w.Join(ctx, declined, group)
	require.NoError(t, err)
	assert.Equal(t, AwaitingApproval, result)
}

func TestDecideValidation(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 0, true)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	student := seedStudent(t, conn, "student@school.test")
	_, err := w.Join(ctx, student, group)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Decide(ctx, teacher, group, student, "maybe"), ErrInvalidAction)
	assert.ErrorIs(t, w.Decide(ctx, teacher, 999, student, ActionApprove), ErrGroupNotFound)
	assert.ErrorIs(t, w.Decide(ctx, teacher, group, 999, ActionApprove), ErrNoPendingRequest)

	other := seedStudent(t, conn, "other@school.test")
	assert.ErrorIs(t, w.Decide(ctx, other, group, student, ActionApprove), ErrNotClassTeacher)

	// Approving twice fails the second time: the request is gone
	require.NoError(t, w.Decide(ctx, teacher, group, student, ActionApprove))
	assert.ErrorIs(t, w.Decide(ctx, teacher, group, student, ActionApprove), ErrNoPendingRequest)
}

func TestApprovalRechecksCapacity(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 1, true)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	first := seedStudent(t, conn, "first@school.test")
	second := seedStudent(t, conn, "second@school.test")
	for _, s := range []uint{first, second} {
		_, err := w.Join(ctx, s, group)
		require.NoError(t, err)
	}

	require.NoError(t, w.Decide(ctx, teacher, group, first, ActionApprove))
	// The seat is taken; the second approval must not overfill the group
	assert.ErrorIs(t, w.Decide(ctx, teacher, group, second, ActionApprove), ErrGroupFull)

	// The losing request is still pending, so it can be declined cleanly
	require.NoError(t, w.Decide(ctx, teacher, group, second, ActionDecline))
}

func TestDecideBulk(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 0, true)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 3; i++ {
		s := seedStudent(t, conn, fmt.Sprintf("student%d@school.test", i))
		_, err := w.Join(ctx, s, group)
		require.NoError(t, err)
		ids = append(ids, s)
	}

	// Unknown IDs in the batch are skipped, not fatal
	decided, err := w.DecideBulk(ctx, teacher, group, append(ids, 999), ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, 3, decided)

	members, err := w.Members(ctx, group)
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestDecideBulkStopsAtCapacity(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	group := seedGroup(t, conn, class, teacher, 2, true)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	var ids []uint
	for i := 0; i < 3; i++ {
		s := seedStudent(t, conn, fmt.Sprintf("student%d@school.test", i))
		_, err := w.Join(ctx, s, group)
		require.NoError(t, err)
		ids = append(ids, s)
	}

	decided, err := w.DecideBulk(ctx, teacher, group, ids, ActionApprove)
	assert.ErrorIs(t, err, ErrGroupFull)
	// The prefix that fit stays approved
	assert.Equal(t, 2, decided)
	members, err := w.Members(ctx, group)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestCreateBulk(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	w := NewWorkflow(conn, 100)
	ctx := context.Background()

	created, err := w.CreateBulk(ctx, teacher, class, 3, "Team", 4, true)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, "Team 1", created[0].Name)
	assert.Equal(t, "Team 3", created[2].Name)
	assert.EqualValues(t, 4, created[1].MaxStudents)
	assert.True(t, created[1].RequiresApproval)
}

func TestCreateBulkValidation(t *testing.T) {
	conn := newTestDB(t)
	teacher, class := seedTeacherAndClass(t, conn)
	w := NewWorkflow(conn, 10)
	ctx := context.Background()

	_, err := w.CreateBulk(ctx, teacher, class, 0, "Team", 0, false)
	assert.ErrorIs(t, err, ErrTooManyGroups)
	_, err = w.CreateBulk(ctx, teacher, class, 11, "Team", 0, false)
	assert.ErrorIs(t, err, ErrTooManyGroups)
	_, err = w.CreateBulk(ctx, teacher, 999, 2, "Team", 0, false)
	assert.ErrorIs(t, err, ErrClassNotFound)

	student := seedStudent(t, conn, "student@school.test")
	_, err = w.CreateBulk(ctx, student, class, 2, "Team", 0, false)
	assert.ErrorIs(t, err, ErrNotClassTeacher)
}
