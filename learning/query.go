package learning

import (
	"context"

	"github.com/warp/course-ledger/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// QUERY LAYER - Pure reads, safe to retry
// =============================================================================

// Balance returns the user's current points, served from the cache when
// possible.
func (e *Engine) Balance(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	const op = "balance"
	ctx, span := e.start(ctx, op, userAttr(userID))
	defer span.End()

	if points, ok, err := e.cache.Get(ctx, userID); err != nil {
		e.logger.Warn("balance cache read failed", zap.Int64("user_id", int64(userID)), zap.Error(err))
	} else if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return points, nil
	}

	// The generation must be taken before the store read. A mutation that
	// commits after the read also invalidates, and Set then drops the value.
	gen, genErr := e.cache.Generation(ctx, userID)
	if genErr != nil {
		e.logger.Warn("balance cache read failed", zap.Int64("user_id", int64(userID)), zap.Error(genErr))
	}

	points, err := e.store.Balance(ctx, userID)
	if err != nil {
		return 0, e.fail(span, op, err, zap.Int64("user_id", int64(userID)))
	}

	if genErr == nil {
		if err := e.cache.Set(ctx, userID, points, gen); err != nil {
			e.logger.Warn("balance cache write failed", zap.Int64("user_id", int64(userID)), zap.Error(err))
		}
	}
	return points, nil
}

// TransactionPage is one page of a user's transaction history.
type TransactionPage struct {
	Transactions []ledger.PointTransaction
	Page         int
	Limit        int
	Total        int
	Pages        int
}

// Transactions returns a page of history, newest first. The page rows and
// the total count are read concurrently.
func (e *Engine) Transactions(ctx context.Context, userID ledger.UserID, page ledger.Page) (*TransactionPage, error) {
	const op = "transactions"
	ctx, span := e.start(ctx, op, userAttr(userID))
	defer span.End()

	page = ledger.NewPage(page.Page, page.Limit)
	result := &TransactionPage{Page: page.Page, Limit: page.Limit}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := e.store.Transactions(gctx, userID, page.Limit, page.Offset())
		result.Transactions = txs
		return err
	})
	g.Go(func() error {
		total, err := e.store.CountTransactions(gctx, userID)
		result.Total = total
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, e.fail(span, op, err, zap.Int64("user_id", int64(userID)))
	}

	if result.Transactions == nil {
		result.Transactions = []ledger.PointTransaction{}
	}
	result.Pages = page.Pages(result.Total)
	return result, nil
}

// CourseProgress is an enrollment with its per-lesson rows.
type CourseProgress struct {
	Enrollment ledger.Enrollment
	Lessons    []ledger.LessonProgress
}

// CourseProgress returns the user's enrollment in courseID with progress rows
// ordered by lesson order.
func (e *Engine) CourseProgress(ctx context.Context, userID ledger.UserID, courseID ledger.CourseID) (*CourseProgress, error) {
	const op = "course_progress"
	ctx, span := e.start(ctx, op, userAttr(userID), attribute.Int64("course.id", int64(courseID)))
	defer span.End()

	fields := []zap.Field{zap.Int64("user_id", int64(userID)), zap.Int64("course_id", int64(courseID))}
	enrollment, err := e.store.FindEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, e.fail(span, op, err, fields...)
	}
	if enrollment == nil {
		return nil, e.fail(span, op, ledger.ErrEnrollmentNotFound, fields...)
	}

	lessons, err := e.store.LessonProgress(ctx, enrollment.ID)
	if err != nil {
		return nil, e.fail(span, op, err, fields...)
	}
	if lessons == nil {
		lessons = []ledger.LessonProgress{}
	}
	return &CourseProgress{Enrollment: *enrollment, Lessons: lessons}, nil
}

// EnrolledCourses lists the user's enrollments, newest first.
func (e *Engine) EnrolledCourses(ctx context.Context, userID ledger.UserID) ([]ledger.EnrolledCourse, error) {
	const op = "enrolled_courses"
	ctx, span := e.start(ctx, op, userAttr(userID))
	defer span.End()

	courses, err := e.store.EnrolledCourses(ctx, userID)
	if err != nil {
		return nil, e.fail(span, op, err, zap.Int64("user_id", int64(userID)))
	}
	if courses == nil {
		courses = []ledger.EnrolledCourse{}
	}
	return courses, nil
}
