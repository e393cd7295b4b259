package learning_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/learning"
	"github.com/warp/course-ledger/ledger"
	"go.uber.org/mock/gomock"
)

func TestBalance_ReadThroughCache(t *testing.T) {
	// GIVEN: An empty cache in front of a user with 200 points
	// WHEN: Reading the balance twice
	// THEN: The first read populates the cache, the second is served from it

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	cache := NewMockBalanceCache(ctrl)
	s := newMemoryStore(t)
	userID := createUser(t, s, "cached@example.com", 200)
	engine := newEngine(s, learning.WithBalanceCache(cache))

	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), userID).Return(ledger.Points(0), false, nil),
		cache.EXPECT().Generation(gomock.Any(), userID).Return(uint64(3), nil),
		cache.EXPECT().Set(gomock.Any(), userID, ledger.Points(200), uint64(3)).Return(nil),
		cache.EXPECT().Get(gomock.Any(), userID).Return(ledger.Points(200), true, nil),
	)

	for i := 0; i < 2; i++ {
		bal, err := engine.Balance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Points(200), bal)
	}
}

func TestBalance_CacheFailureFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	cache := NewMockBalanceCache(ctrl)
	s := newMemoryStore(t)
	userID := createUser(t, s, "flaky-cache@example.com", 70)
	engine := newEngine(s, learning.WithBalanceCache(cache))

	cache.EXPECT().Get(gomock.Any(), userID).Return(ledger.Points(0), false, errors.New("connection refused"))
	cache.EXPECT().Generation(gomock.Any(), userID).Return(uint64(0), nil)
	cache.EXPECT().Set(gomock.Any(), userID, ledger.Points(70), uint64(0)).Return(errors.New("connection refused"))

	bal, err := engine.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(70), bal)
}

func TestBalance_NoGenerationSkipsCacheWrite(t *testing.T) {
	// GIVEN: A cache whose generation cannot be read
	// WHEN: Reading the balance
	// THEN: The store answers and nothing is written to the cache

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	cache := NewMockBalanceCache(ctrl)
	s := newMemoryStore(t)
	userID := createUser(t, s, "no-gen@example.com", 40)
	engine := newEngine(s, learning.WithBalanceCache(cache))

	cache.EXPECT().Get(gomock.Any(), userID).Return(ledger.Points(0), false, nil)
	cache.EXPECT().Generation(gomock.Any(), userID).Return(uint64(0), errors.New("connection refused"))

	bal, err := engine.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(40), bal)
}

// genCache is an in-process BalanceCache with per-user generations.
type genCache struct {
	mu     sync.Mutex
	points map[ledger.UserID]ledger.Points
	gens   map[ledger.UserID]uint64
}

func newGenCache() *genCache {
	return &genCache{points: map[ledger.UserID]ledger.Points{}, gens: map[ledger.UserID]uint64{}}
}

func (c *genCache) Get(_ context.Context, userID ledger.UserID) (ledger.Points, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.points[userID]
	return p, ok, nil
}

func (c *genCache) Generation(_ context.Context, userID ledger.UserID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *genCache) Set(_ context.Context, userID ledger.UserID, points ledger.Points, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] == gen {
		c.points[userID] = points
	}
	return nil
}

func (c *genCache) Invalidate(_ context.Context, userID ledger.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[userID]++
	delete(c.points, userID)
	return nil
}

// afterBalanceStore runs hook once, right after the first Balance read.
type afterBalanceStore struct {
	testStore
	once sync.Once
	hook func()
}

func (s *afterBalanceStore) Balance(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	points, err := s.testStore.Balance(ctx, userID)
	s.once.Do(s.hook)
	return points, err
}

func TestBalance_WriterBetweenReadAndFillLeavesNoStaleEntry(t *testing.T) {
	// GIVEN: A reader that misses the cache and reads 200 from the store
	// WHEN: An enrollment costing 100 commits and invalidates before the
	//       reader fills the cache
	// THEN: The fill is dropped and the next read returns 100

	ctx := context.Background()
	cache := newGenCache()
	s := newMemoryStore(t)
	userID := createUser(t, s, "interleave@example.com", 200)
	courseID, _ := createCourse(t, s, courseSpec{cost: 100, lessons: 1, published: true})
	writer := newEngine(s, learning.WithBalanceCache(cache))

	wrapped := &afterBalanceStore{testStore: s, hook: func() {
		_, err := writer.Enroll(ctx, userID, courseID)
		require.NoError(t, err)
	}}
	reader := newEngine(wrapped, learning.WithBalanceCache(cache))

	first, err := reader.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(200), first)
	assert.Equal(t, ledger.Points(100), balance(t, s, userID))

	_, ok, _ := cache.Get(ctx, userID)
	assert.False(t, ok, "stale fill must be dropped")

	second, err := reader.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Points(100), second)

	cached, ok, _ := cache.Get(ctx, userID)
	require.True(t, ok)
	assert.Equal(t, ledger.Points(100), cached)
}

func TestMutations_InvalidateCachedBalance(t *testing.T) {
	// GIVEN: A cache mock that expects exactly the invalidations below
	// WHEN: Enrolling in a paid course, a free course, then completing with a reward
	// THEN: Only the balance-changing operations invalidate

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	cache := NewMockBalanceCache(ctrl)
	s := newMemoryStore(t)
	userID := createUser(t, s, "invalidate@example.com", 300)
	paid, _ := createCourse(t, s, courseSpec{cost: 100, lessons: 1, published: true})
	free, lessons := createCourse(t, s, courseSpec{reward: 50, lessons: 1, published: true})
	engine := newEngine(s, learning.WithBalanceCache(cache))

	cache.EXPECT().Invalidate(gomock.Any(), userID).Return(nil).Times(2)

	_, err := engine.Enroll(ctx, userID, paid)
	require.NoError(t, err)
	_, err = engine.Enroll(ctx, userID, free)
	require.NoError(t, err)
	_, err = engine.CompleteLesson(ctx, userID, lessons[0], 0)
	require.NoError(t, err)

	assert.Equal(t, ledger.Points(250), balance(t, s, userID))
}

func TestMetrics_RecordOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s := newMemoryStore(t)
	engine := newEngine(s, learning.WithMetrics(learning.NewMetrics(reg)))

	userID := createUser(t, s, "metrics@example.com", 100)
	courseID, lessons := createCourse(t, s, courseSpec{cost: 60, reward: 90, lessons: 1, published: true})

	_, err := engine.Enroll(ctx, userID, courseID)
	require.NoError(t, err)
	_, err = engine.Enroll(ctx, userID, courseID)
	require.Error(t, err)
	_, err = engine.CompleteLesson(ctx, userID, lessons[0], 0)
	require.NoError(t, err)

	expected := `
# HELP ledger_course_completions_total Enrollments that transitioned to completed.
# TYPE ledger_course_completions_total counter
ledger_course_completions_total 1
# HELP ledger_points_total Points moved, by transaction kind.
# TYPE ledger_points_total counter
ledger_points_total{kind="earned"} 90
ledger_points_total{kind="spent"} 60
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"ledger_course_completions_total", "ledger_points_total"))

	ops := `
# HELP ledger_operations_total Engine operations by outcome (ok, rejected, failed).
# TYPE ledger_operations_total counter
ledger_operations_total{op="complete_lesson",outcome="ok"} 1
ledger_operations_total{op="enroll",outcome="ok"} 1
ledger_operations_total{op="enroll",outcome="rejected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(ops), "ledger_operations_total"))
}
