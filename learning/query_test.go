package learning_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/ledger"
)

func TestTransactions_Pagination(t *testing.T) {
	// GIVEN: A user with a welcome bonus and four paid enrollments (5 entries)
	// WHEN: Paging with limit 2
	// THEN: Three pages, newest first, and the last page holds the bonus

	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		u, err := engine.OpenAccount(ctx, ledger.User{Email: "pager@example.com", FullName: "Pager"}, 500)
		require.NoError(t, err)

		for _, title := range []string{"One", "Two", "Three", "Four"} {
			courseID, _ := createCourse(t, s, courseSpec{title: title, cost: 10, lessons: 1, published: true})
			_, err := engine.Enroll(ctx, u.ID, courseID)
			require.NoError(t, err)
		}

		page, err := engine.Transactions(ctx, u.ID, ledger.NewPage(1, 2))
		require.NoError(t, err)
		assert.Equal(t, 5, page.Total)
		assert.Equal(t, 3, page.Pages)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 2, page.Limit)
		require.Len(t, page.Transactions, 2)
		assert.Equal(t, "Enrolled in: Four", page.Transactions[0].Description)
		assert.Equal(t, "Enrolled in: Three", page.Transactions[1].Description)

		last, err := engine.Transactions(ctx, u.ID, ledger.NewPage(3, 2))
		require.NoError(t, err)
		require.Len(t, last.Transactions, 1)
		assert.Equal(t, ledger.KindBonus, last.Transactions[0].Kind)

		beyond, err := engine.Transactions(ctx, u.ID, ledger.NewPage(9, 2))
		require.NoError(t, err)
		assert.NotNil(t, beyond.Transactions)
		assert.Empty(t, beyond.Transactions)
		assert.Equal(t, 5, beyond.Total)

		huge, err := engine.Transactions(ctx, u.ID, ledger.Page{Page: math.MaxInt, Limit: math.MaxInt})
		require.NoError(t, err)
		assert.Empty(t, huge.Transactions)
		assert.Equal(t, ledger.MaxLimit, huge.Limit)
		assert.Equal(t, 1, huge.Pages)

		defaults, err := engine.Transactions(ctx, u.ID, ledger.Page{})
		require.NoError(t, err)
		assert.Equal(t, ledger.DefaultLimit, defaults.Limit)
		assert.Len(t, defaults.Transactions, 5)

		// The signed sum of the log reproduces the balance.
		var sum ledger.Points
		for _, tx := range defaults.Transactions {
			sum += tx.Signed()
		}
		bal, err := engine.Balance(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, bal, sum)
		assert.Equal(t, ledger.Points(460), bal)
	})
}

func TestBalance_UnknownUser_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		_, err := newEngine(s).Balance(context.Background(), 4242)
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)
	})
}

func TestCourseProgress_NotEnrolled_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		userID := createUser(t, s, "nobody@example.com", 0)
		courseID, _ := createCourse(t, s, courseSpec{lessons: 1, published: true})

		_, err := newEngine(s).CourseProgress(context.Background(), userID, courseID)
		assert.ErrorIs(t, err, ledger.ErrEnrollmentNotFound)
	})
}

func TestEnrolledCourses_NewestFirstWithCounts(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "lister@example.com", 1000)
		first, _ := createCourse(t, s, courseSpec{title: "First", cost: 100, reward: 150, lessons: 2, published: true})
		second, lessons := createCourse(t, s, courseSpec{title: "Second", lessons: 4, published: true})

		_, err := engine.Enroll(ctx, userID, first)
		require.NoError(t, err)
		_, err = engine.Enroll(ctx, userID, second)
		require.NoError(t, err)
		_, err = engine.CompleteLesson(ctx, userID, lessons[0], 0)
		require.NoError(t, err)

		courses, err := engine.EnrolledCourses(ctx, userID)
		require.NoError(t, err)
		require.Len(t, courses, 2)

		assert.Equal(t, "Second", courses[0].Title)
		assert.Equal(t, 4, courses[0].TotalLessons)
		assert.Equal(t, 1, courses[0].CompletedLessons)
		assert.Equal(t, 25, courses[0].ProgressPercentage)

		assert.Equal(t, "First", courses[1].Title)
		assert.Equal(t, ledger.Points(100), courses[1].PointsCost)
		assert.Equal(t, ledger.Points(150), courses[1].PointsReward)
		assert.Equal(t, 0, courses[1].CompletedLessons)

		none, err := engine.EnrolledCourses(ctx, userID+1)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}
