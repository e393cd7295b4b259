package learning

import (
	"context"
	"time"

	"github.com/warp/course-ledger/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// =============================================================================
// PROGRESS ENGINE
// =============================================================================

// CompletionResult reports the effect of CompleteLesson. PointsBalance is set
// only when CourseCompleted is true.
type CompletionResult struct {
	EnrollmentID       ledger.EnrollmentID
	ProgressPercentage int
	CourseCompleted    bool
	PointsEarned       ledger.Points
	PointsBalance      *ledger.Points
}

// CompleteLesson marks lessonID complete for userID and adds minutes to the
// time spent. The completion reward is granted only on the transition of
// enrollments.completed_at from null, so retries never pay twice.
func (e *Engine) CompleteLesson(ctx context.Context, userID ledger.UserID, lessonID ledger.LessonID, minutes int) (*CompletionResult, error) {
	const op = "complete_lesson"
	ctx, span := e.start(ctx, op, userAttr(userID), attribute.Int64("lesson.id", int64(lessonID)))
	defer span.End()
	defer e.metrics.observe(op, time.Now())

	fields := []zap.Field{zap.Int64("user_id", int64(userID)), zap.Int64("lesson_id", int64(lessonID))}
	if minutes < 0 {
		return nil, e.fail(span, op, ledger.ErrNegativeMinutes, fields...)
	}

	var result *CompletionResult
	err := e.store.WithTx(ctx, func(s ledger.Store) error {
		enrollment, err := resolve(ctx, s, userID, lessonID)
		if err != nil {
			return err
		}

		added, err := e.backfill(ctx, s, enrollment)
		if err != nil {
			return err
		}
		e.metrics.backfill(added)

		now := e.now()
		ok, err := s.CompleteLesson(ctx, enrollment.ID, lessonID, minutes, now)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.ErrLessonNotFound
		}

		pct, err := recompute(ctx, s, enrollment.ID)
		if err != nil {
			return err
		}
		result = &CompletionResult{EnrollmentID: enrollment.ID, ProgressPercentage: pct}
		if pct < 100 {
			return nil
		}

		first, err := s.MarkEnrollmentCompleted(ctx, enrollment.ID, now)
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
		result.CourseCompleted = true

		course, err := s.GetCourse(ctx, enrollment.CourseID)
		if err != nil {
			return err
		}

		var balance ledger.Points
		if course.PointsReward > 0 {
			balance, err = s.Credit(ctx, userID, course.PointsReward)
			if err != nil {
				return err
			}
			ref := course.ID
			if err := e.appendTx(ctx, s, userID, course.PointsReward, ledger.KindEarned, "Completed: "+course.Title, &ref, now); err != nil {
				return err
			}
			result.PointsEarned = course.PointsReward
		} else {
			balance, err = s.Balance(ctx, userID)
			if err != nil {
				return err
			}
		}
		result.PointsBalance = &balance
		return nil
	})
	if err != nil {
		return nil, e.fail(span, op, err, fields...)
	}

	if result.PointsEarned > 0 {
		e.invalidate(ctx, userID)
	}
	e.metrics.succeeded(op)
	if result.CourseCompleted {
		e.metrics.completed()
		e.metrics.moved(ledger.KindEarned, result.PointsEarned)
		e.logger.Info("course completed",
			zap.Int64("user_id", int64(userID)),
			zap.String("enrollment_id", string(result.EnrollmentID)),
			zap.Int64("points_earned", int64(result.PointsEarned)),
		)
	}
	return result, nil
}

// UpdateLessonTime adds minutes to a lesson and touches last_accessed_at. It
// never changes completion state and never grants rewards.
func (e *Engine) UpdateLessonTime(ctx context.Context, userID ledger.UserID, lessonID ledger.LessonID, minutes int) error {
	const op = "update_lesson_time"
	ctx, span := e.start(ctx, op, userAttr(userID), attribute.Int64("lesson.id", int64(lessonID)))
	defer span.End()
	defer e.metrics.observe(op, time.Now())

	fields := []zap.Field{zap.Int64("user_id", int64(userID)), zap.Int64("lesson_id", int64(lessonID))}
	if minutes < 0 {
		return e.fail(span, op, ledger.ErrNegativeMinutes, fields...)
	}

	err := e.store.WithTx(ctx, func(s ledger.Store) error {
		enrollment, err := resolve(ctx, s, userID, lessonID)
		if err != nil {
			return err
		}

		now := e.now()
		ok, err := s.AddLessonTime(ctx, enrollment.ID, lessonID, minutes, now)
		if err != nil || ok {
			return err
		}

		// The lesson was added after enrollment. Backfill, keep the cached
		// percentage honest for the larger denominator, then retry.
		added, err := e.backfill(ctx, s, enrollment)
		if err != nil {
			return err
		}
		e.metrics.backfill(added)
		if _, err := recompute(ctx, s, enrollment.ID); err != nil {
			return err
		}

		ok, err = s.AddLessonTime(ctx, enrollment.ID, lessonID, minutes, now)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.ErrLessonNotFound
		}
		return nil
	})
	if err != nil {
		return e.fail(span, op, err, fields...)
	}

	e.metrics.succeeded(op)
	return nil
}

// Reconcile backfills progress rows for lessons added after enrollment and
// rewrites the cached percentage. It never sets or clears completed_at and
// never grants rewards. Returns the number of rows added.
func (e *Engine) Reconcile(ctx context.Context, id ledger.EnrollmentID) (int, error) {
	const op = "reconcile"
	ctx, span := e.start(ctx, op, attribute.String("enrollment.id", string(id)))
	defer span.End()

	var added int
	err := e.store.WithTx(ctx, func(s ledger.Store) error {
		// Same row lock as CompleteLesson, so the recount below cannot
		// interleave with a completion of this enrollment.
		enrollment, err := s.LockEnrollment(ctx, id)
		if err != nil {
			return err
		}

		added, err = e.backfill(ctx, s, enrollment)
		if err != nil {
			return err
		}

		total, completed, err := s.CountProgress(ctx, id)
		if err != nil {
			return err
		}
		pct := ledger.Percentage(completed, total)
		if added == 0 && pct == enrollment.ProgressPercentage {
			return nil
		}
		return s.SetProgressPercentage(ctx, id, pct)
	})
	if err != nil {
		return 0, e.fail(span, op, err, zap.String("enrollment_id", string(id)))
	}

	e.metrics.backfill(added)
	return added, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func resolve(ctx context.Context, s ledger.Store, userID ledger.UserID, lessonID ledger.LessonID) (*ledger.Enrollment, error) {
	enrollment, err := s.ResolveLessonEnrollment(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, ledger.ErrLessonNotFound
	}
	return enrollment, nil
}

// recompute derives the percentage from row counts and stores it.
func recompute(ctx context.Context, s ledger.Store, id ledger.EnrollmentID) (int, error) {
	total, completed, err := s.CountProgress(ctx, id)
	if err != nil {
		return 0, err
	}
	pct := ledger.Percentage(completed, total)
	if err := s.SetProgressPercentage(ctx, id, pct); err != nil {
		return 0, err
	}
	return pct, nil
}

// backfill inserts incomplete rows for course lessons the enrollment has no
// row for yet.
func (e *Engine) backfill(ctx context.Context, s ledger.Store, enrollment *ledger.Enrollment) (int, error) {
	lessons, err := s.LessonsForCourse(ctx, enrollment.CourseID)
	if err != nil {
		return 0, err
	}
	have, err := s.ProgressLessonIDs(ctx, enrollment.ID)
	if err != nil {
		return 0, err
	}
	if len(have) >= len(lessons) {
		return 0, nil
	}

	seen := make(map[ledger.LessonID]struct{}, len(have))
	for _, id := range have {
		seen[id] = struct{}{}
	}
	var missing []ledger.LessonProgress
	for _, l := range lessons {
		if _, ok := seen[l.ID]; !ok {
			missing = append(missing, e.newProgressRow(enrollment.ID, l.ID))
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	return s.SeedProgress(ctx, missing)
}
