package learning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/learning"
	"github.com/warp/course-ledger/ledger"
	"github.com/warp/course-ledger/ledger/store"
	"github.com/warp/course-ledger/store/sqldb"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testStore is what both store implementations provide.
type testStore interface {
	ledger.TxStore
	ledger.CatalogWriter
}

func newMemoryStore(t *testing.T) testStore {
	return store.NewMemory()
}

func newSQLiteStore(t *testing.T) testStore {
	s, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// eachStore runs fn against the memory store and SQLite.
func eachStore(t *testing.T, fn func(t *testing.T, s testStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryStore(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

// clock ticks one second per call so every write gets a distinct timestamp.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newEngine(s ledger.TxStore, opts ...learning.Option) *learning.Engine {
	return learning.NewEngine(s, append([]learning.Option{learning.WithClock(newClock().Now)}, opts...)...)
}

func createUser(t *testing.T, s testStore, email string, points ledger.Points) ledger.UserID {
	t.Helper()
	u := &ledger.User{Email: email, FullName: "Test User", Role: ledger.RoleLearner, Points: points}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u.ID
}

type courseSpec struct {
	title     string
	cost      ledger.Points
	reward    ledger.Points
	lessons   int
	published bool
}

func createCourse(t *testing.T, s testStore, spec courseSpec) (ledger.CourseID, []ledger.LessonID) {
	t.Helper()
	ctx := context.Background()
	if spec.title == "" {
		spec.title = "Go Basics"
	}

	c := &ledger.Course{
		Title:           spec.title,
		DifficultyLevel: "beginner",
		IsPublished:     spec.published,
		PointsCost:      spec.cost,
		PointsReward:    spec.reward,
	}
	require.NoError(t, s.CreateCourse(ctx, c))

	var ids []ledger.LessonID
	for i := 1; i <= spec.lessons; i++ {
		ids = append(ids, addLesson(t, s, c.ID, i))
	}
	return c.ID, ids
}

func addLesson(t *testing.T, s testStore, courseID ledger.CourseID, order int) ledger.LessonID {
	t.Helper()
	l := &ledger.Lesson{CourseID: courseID, Title: "Lesson", Order: order, DurationMinutes: 10}
	require.NoError(t, s.CreateLesson(context.Background(), l))
	return l.ID
}

func balance(t *testing.T, s ledger.Store, userID ledger.UserID) ledger.Points {
	t.Helper()
	b, err := s.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func history(t *testing.T, s ledger.Store, userID ledger.UserID) []ledger.PointTransaction {
	t.Helper()
	txs, err := s.Transactions(context.Background(), userID, 100, 0)
	require.NoError(t, err)
	return txs
}

// =============================================================================
// FAILURE INJECTION
// =============================================================================

var errInjected = errors.New("injected storage failure")

// failingStore wraps a store so the Store handed to WithTx fails on a chosen
// method after the preceding writes of the unit have already run.
type failingStore struct {
	testStore
	failSeed   bool
	failAppend bool
}

func (f *failingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.testStore.WithTx(ctx, func(s ledger.Store) error {
		return fn(&failingTx{Store: s, parent: f})
	})
}

type failingTx struct {
	ledger.Store
	parent *failingStore
}

func (f *failingTx) SeedProgress(ctx context.Context, rows []ledger.LessonProgress) (int, error) {
	if f.parent.failSeed {
		return 0, errInjected
	}
	return f.Store.SeedProgress(ctx, rows)
}

func (f *failingTx) AppendTransaction(ctx context.Context, tx ledger.PointTransaction) error {
	if f.parent.failAppend {
		return errInjected
	}
	return f.Store.AppendTransaction(ctx, tx)
}
