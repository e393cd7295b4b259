package learning_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// ENROLLMENT SCENARIOS
// =============================================================================

func TestEnroll_FreeCourse_BalanceUnchanged(t *testing.T) {
	// GIVEN: A fresh user with 500 points and a free course with 3 lessons
	// WHEN: The user enrolls
	// THEN: Balance stays 500, no transaction, 3 progress rows at 0%

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "free@example.com", 500)
		courseID, _ := createCourse(t, s, courseSpec{cost: 0, reward: 75, lessons: 3, published: true})

		result, err := engine.Enroll(ctx, userID, courseID)
		require.NoError(t, err)

		assert.Equal(t, ledger.Points(0), result.PointsSpent)
		assert.Equal(t, ledger.Points(500), result.PointsBalance)
		assert.Equal(t, 3, result.LessonCount)
		assert.Equal(t, 0, result.Enrollment.ProgressPercentage)
		assert.Nil(t, result.Enrollment.CompletedAt)

		assert.Equal(t, ledger.Points(500), balance(t, s, userID))
		assert.Empty(t, history(t, s, userID))

		progress, err := engine.CourseProgress(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Len(t, progress.Lessons, 3)
		for _, row := range progress.Lessons {
			assert.False(t, row.IsCompleted)
		}
	})
}

func TestEnroll_PaidCourse_DebitsAndRecords(t *testing.T) {
	// GIVEN: A user with 200 points and a course costing 100
	// WHEN: The user enrolls
	// THEN: Balance is 100 and one spent transaction references the course

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "paid@example.com", 200)
		courseID, _ := createCourse(t, s, courseSpec{title: "Go Basics", cost: 100, reward: 150, lessons: 2, published: true})

		result, err := engine.Enroll(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Points(100), result.PointsSpent)
		assert.Equal(t, ledger.Points(100), result.PointsBalance)
		assert.Equal(t, ledger.Points(100), balance(t, s, userID))

		txs := history(t, s, userID)
		require.Len(t, txs, 1)
		assert.Equal(t, ledger.KindSpent, txs[0].Kind)
		assert.Equal(t, ledger.Points(100), txs[0].Amount)
		assert.Equal(t, "Enrolled in: Go Basics", txs[0].Description)
		require.NotNil(t, txs[0].ReferenceID)
		assert.Equal(t, courseID, *txs[0].ReferenceID)
	})
}

func TestEnroll_InsufficientFundsBoundary(t *testing.T) {
	// GIVEN: A user with 49 points and a course costing 50
	// WHEN: The user enrolls
	// THEN: InsufficientFunds{required: 50, available: 49}, nothing changes

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "poor@example.com", 49)
		courseID, _ := createCourse(t, s, courseSpec{cost: 50, lessons: 1, published: true})

		_, err := engine.Enroll(ctx, userID, courseID)
		require.Error(t, err)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		var funds *ledger.InsufficientFundsError
		require.True(t, errors.As(err, &funds))
		assert.Equal(t, ledger.Points(50), funds.Required)
		assert.Equal(t, ledger.Points(49), funds.Available)

		assert.Equal(t, ledger.Points(49), balance(t, s, userID))
		assert.Empty(t, history(t, s, userID))
		e, err := s.FindEnrollment(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Nil(t, e)
	})
}

func TestEnroll_ExactBalance_Allowed(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		engine := newEngine(s)
		userID := createUser(t, s, "exact@example.com", 50)
		courseID, _ := createCourse(t, s, courseSpec{cost: 50, lessons: 1, published: true})

		result, err := engine.Enroll(context.Background(), userID, courseID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Points(0), result.PointsBalance)
	})
}

func TestEnroll_Twice_Conflict(t *testing.T) {
	// GIVEN: A user already enrolled in a paid course
	// WHEN: Enrolling again
	// THEN: Conflict, still one enrollment and one debit

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "twice@example.com", 500)
		courseID, _ := createCourse(t, s, courseSpec{cost: 100, lessons: 2, published: true})

		_, err := engine.Enroll(ctx, userID, courseID)
		require.NoError(t, err)

		_, err = engine.Enroll(ctx, userID, courseID)
		assert.ErrorIs(t, err, ledger.ErrConflict)
		assert.ErrorIs(t, err, ledger.ErrAlreadyEnrolled)

		assert.Len(t, history(t, s, userID), 1)
		assert.Equal(t, ledger.Points(400), balance(t, s, userID))
		courses, err := engine.EnrolledCourses(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, courses, 1)
	})
}

func TestEnroll_Rejections(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "reject@example.com", 500)
		draftID, _ := createCourse(t, s, courseSpec{cost: 10, lessons: 1, published: false})
		freeID, _ := createCourse(t, s, courseSpec{cost: 0, lessons: 1, published: true})

		_, err := engine.Enroll(ctx, userID, draftID)
		assert.ErrorIs(t, err, ledger.ErrInvalidState)

		_, err = engine.Enroll(ctx, userID, 9999)
		assert.ErrorIs(t, err, ledger.ErrCourseNotFound)

		_, err = engine.Enroll(ctx, userID+100, freeID)
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)

		assert.Equal(t, ledger.Points(500), balance(t, s, userID))
	})
}

func TestEnroll_CourseWithoutLessons(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "empty@example.com", 100)
		courseID, _ := createCourse(t, s, courseSpec{cost: 0, published: true})

		result, err := engine.Enroll(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Equal(t, 0, result.LessonCount)

		progress, err := engine.CourseProgress(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Empty(t, progress.Lessons)
		assert.Equal(t, 0, progress.Enrollment.ProgressPercentage)
	})
}

// =============================================================================
// ATOMICITY
// =============================================================================

func TestEnroll_FailureRollsBackDebit(t *testing.T) {
	// GIVEN: A store whose progress seeding fails after the debit ran
	// WHEN: Enrolling in a paid course
	// THEN: InternalError, and no debit, transaction or enrollment survives

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		failing := &failingStore{testStore: s, failSeed: true}
		engine := newEngine(failing)
		userID := createUser(t, s, "atomic@example.com", 300)
		courseID, _ := createCourse(t, s, courseSpec{cost: 100, lessons: 3, published: true})

		_, err := engine.Enroll(ctx, userID, courseID)
		require.Error(t, err)
		assert.True(t, ledger.IsInternal(err))
		assert.False(t, ledger.IsRejection(err))

		var internal *ledger.InternalError
		require.True(t, errors.As(err, &internal))
		assert.Equal(t, "enroll", internal.Op)

		assert.Equal(t, ledger.Points(300), balance(t, s, userID))
		assert.Empty(t, history(t, s, userID))
		e, err := s.FindEnrollment(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Nil(t, e)

		// The same request succeeds once storage recovers.
		failing.failSeed = false
		_, err = engine.Enroll(ctx, userID, courseID)
		require.NoError(t, err)
		assert.Equal(t, ledger.Points(200), balance(t, s, userID))
	})
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestEnroll_ConcurrentDebits_ExactlyOneSucceeds(t *testing.T) {
	// GIVEN: A user with 150 points and two courses costing 100 each
	// WHEN: Both enrollments race
	// THEN: One succeeds, one fails with InsufficientFunds, balance is 50

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "race@example.com", 150)
		c1, _ := createCourse(t, s, courseSpec{title: "A", cost: 100, lessons: 1, published: true})
		c2, _ := createCourse(t, s, courseSpec{title: "B", cost: 100, lessons: 1, published: true})

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, id := range []ledger.CourseID{c1, c2} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = engine.Enroll(ctx, userID, id)
			}()
		}
		wg.Wait()

		succeeded, short := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledger.ErrInsufficientFunds):
				short++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, short)
		assert.Equal(t, ledger.Points(50), balance(t, s, userID))
		assert.Len(t, history(t, s, userID), 1)
	})
}

func TestEnroll_ConcurrentSameCourse_OneEnrollment(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "dup@example.com", 1000)
		courseID, _ := createCourse(t, s, courseSpec{cost: 100, lessons: 2, published: true})

		const n = 8
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = engine.Enroll(ctx, userID, courseID)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ledger.ErrConflict)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, ledger.Points(900), balance(t, s, userID))
		assert.Len(t, history(t, s, userID), 1)
	})
}
