package learning

import (
	"context"
	"errors"
	"time"

	"github.com/warp/course-ledger/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// =============================================================================
// ENROLLMENT ENGINE
// =============================================================================

// EnrollResult is returned by Enroll so callers can update a balance without
// a second read.
type EnrollResult struct {
	Enrollment    ledger.Enrollment
	Course        ledger.Course
	PointsSpent   ledger.Points
	PointsBalance ledger.Points
	LessonCount   int
}

// Enroll registers userID in courseID, debiting the course cost.
//
// Validation order: course exists, course is published, not already enrolled,
// balance covers the cost. The debit, its log entry, the enrollment row and
// one progress row per current lesson commit as one unit.
func (e *Engine) Enroll(ctx context.Context, userID ledger.UserID, courseID ledger.CourseID) (*EnrollResult, error) {
	const op = "enroll"
	ctx, span := e.start(ctx, op, userAttr(userID), attribute.Int64("course.id", int64(courseID)))
	defer span.End()
	defer e.metrics.observe(op, time.Now())

	var result *EnrollResult
	err := e.store.WithTx(ctx, func(s ledger.Store) error {
		course, err := s.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if !course.IsPublished {
			return ledger.ErrCourseNotPublished
		}

		existing, err := s.FindEnrollment(ctx, userID, courseID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ledger.ErrAlreadyEnrolled
		}

		balance, err := s.Balance(ctx, userID)
		if err != nil {
			return err
		}

		now := e.now()
		var spent ledger.Points
		if !course.IsFree() {
			if balance < course.PointsCost {
				return &ledger.InsufficientFundsError{UserID: userID, Required: course.PointsCost, Available: balance}
			}
			balance, err = s.Debit(ctx, userID, course.PointsCost)
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				// Lost a race with a concurrent debit.
				return &ledger.InsufficientFundsError{UserID: userID, Required: course.PointsCost, Available: balance}
			}
			if err != nil {
				return err
			}
			ref := course.ID
			if err := e.appendTx(ctx, s, userID, course.PointsCost, ledger.KindSpent, "Enrolled in: "+course.Title, &ref, now); err != nil {
				return err
			}
			spent = course.PointsCost
		}

		enrollment := ledger.Enrollment{
			ID:         ledger.EnrollmentID(e.newID()),
			UserID:     userID,
			CourseID:   courseID,
			EnrolledAt: now,
		}
		if err := s.CreateEnrollment(ctx, enrollment); err != nil {
			return err
		}

		lessons, err := s.LessonsForCourse(ctx, courseID)
		if err != nil {
			return err
		}
		rows := make([]ledger.LessonProgress, 0, len(lessons))
		for _, l := range lessons {
			rows = append(rows, e.newProgressRow(enrollment.ID, l.ID))
		}
		if _, err := s.SeedProgress(ctx, rows); err != nil {
			return err
		}

		result = &EnrollResult{
			Enrollment:    enrollment,
			Course:        *course,
			PointsSpent:   spent,
			PointsBalance: balance,
			LessonCount:   len(lessons),
		}
		return nil
	})
	if err != nil {
		return nil, e.fail(span, op, err,
			zap.Int64("user_id", int64(userID)), zap.Int64("course_id", int64(courseID)))
	}

	if result.PointsSpent > 0 {
		e.invalidate(ctx, userID)
	}
	e.metrics.succeeded(op)
	e.metrics.moved(ledger.KindSpent, result.PointsSpent)
	e.logger.Info("enrolled",
		zap.Int64("user_id", int64(userID)),
		zap.Int64("course_id", int64(courseID)),
		zap.String("enrollment_id", string(result.Enrollment.ID)),
		zap.Int64("points_spent", int64(result.PointsSpent)),
	)
	return result, nil
}

func (e *Engine) newProgressRow(id ledger.EnrollmentID, lessonID ledger.LessonID) ledger.LessonProgress {
	return ledger.LessonProgress{
		ID:           ledger.ProgressID(e.newID()),
		EnrollmentID: id,
		LessonID:     lessonID,
	}
}
