package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// ENROLLMENTS (ledger.ProgressStore interface)
// =============================================================================

var enrollmentColumns = []string{
	"e.id", "e.user_id", "e.course_id", "e.enrolled_at", "e.progress_percentage", "e.completed_at",
}

func scanEnrollment(row scanner, extra ...any) (*ledger.Enrollment, error) {
	var (
		e           ledger.Enrollment
		id          string
		userID      int64
		courseID    int64
		enrolledAt  string
		completedAt sql.NullString
	)
	dest := append([]any{&id, &userID, &courseID, &enrolledAt, &e.ProgressPercentage, &completedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	e.ID = ledger.EnrollmentID(id)
	e.UserID = ledger.UserID(userID)
	e.CourseID = ledger.CourseID(courseID)
	e.EnrolledAt = parseTime(enrolledAt)
	e.CompletedAt = timePtr(completedAt)
	return &e, nil
}

func (c *conn) queryEnrollment(ctx context.Context, b sq.SelectBuilder) (*ledger.Enrollment, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	e, err := scanEnrollment(c.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return e, nil
}

func (c *conn) FindEnrollment(ctx context.Context, userID ledger.UserID, courseID ledger.CourseID) (*ledger.Enrollment, error) {
	return c.queryEnrollment(ctx, c.sb.Select(enrollmentColumns...).
		From("enrollments e").
		Where(sq.Eq{"e.user_id": int64(userID), "e.course_id": int64(courseID)}))
}

func (c *conn) GetEnrollment(ctx context.Context, id ledger.EnrollmentID) (*ledger.Enrollment, error) {
	e, err := c.queryEnrollment(ctx, c.sb.Select(enrollmentColumns...).
		From("enrollments e").
		Where(sq.Eq{"e.id": string(id)}))
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ledger.ErrEnrollmentNotFound
	}
	return e, nil
}

func (c *conn) LockEnrollment(ctx context.Context, id ledger.EnrollmentID) (*ledger.Enrollment, error) {
	b := c.sb.Select(enrollmentColumns...).
		From("enrollments e").
		Where(sq.Eq{"e.id": string(id)})
	if c.d.lockSuffix != "" {
		b = b.Suffix(c.d.lockSuffix)
	}
	e, err := c.queryEnrollment(ctx, b)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ledger.ErrEnrollmentNotFound
	}
	return e, nil
}

func (c *conn) ListEnrollments(ctx context.Context) ([]ledger.EnrollmentID, error) {
	query, args, err := c.sb.Select("id").
		From("enrollments").
		OrderBy("enrolled_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var ids []ledger.EnrollmentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.EnrollmentID(id))
	}
	return ids, rows.Err()
}

func (c *conn) CreateEnrollment(ctx context.Context, e ledger.Enrollment) error {
	query, args, err := c.sb.Insert("enrollments").
		Columns("id", "user_id", "course_id", "enrolled_at", "progress_percentage", "completed_at").
		Values(string(e.ID), int64(e.UserID), int64(e.CourseID), formatTime(e.EnrolledAt), e.ProgressPercentage, nullTime(e.CompletedAt)).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrAlreadyEnrolled
		}
		if isForeignKeyViolation(err) {
			return ledger.ErrNotFound
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// ResolveLessonEnrollment joins lesson -> course -> enrollment. On
// PostgreSQL the enrollment row stays locked until the unit ends.
func (c *conn) ResolveLessonEnrollment(ctx context.Context, userID ledger.UserID, lessonID ledger.LessonID) (*ledger.Enrollment, error) {
	b := c.sb.Select(enrollmentColumns...).
		From("lessons l").
		Join("enrollments e ON e.course_id = l.course_id").
		Where(sq.Eq{"l.id": int64(lessonID), "e.user_id": int64(userID)})
	if c.d.lockSuffix != "" {
		b = b.Suffix(c.d.lockSuffix)
	}
	return c.queryEnrollment(ctx, b)
}

func (c *conn) SetProgressPercentage(ctx context.Context, id ledger.EnrollmentID, percentage int) error {
	query, args, err := c.sb.Update("enrollments").
		Set("progress_percentage", percentage).
		Where(sq.Eq{"id": string(id)}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrEnrollmentNotFound
	}
	return nil
}

// MarkEnrollmentCompleted only matches while completed_at is still null, so
// exactly one caller ever observes true.
func (c *conn) MarkEnrollmentCompleted(ctx context.Context, id ledger.EnrollmentID, at time.Time) (bool, error) {
	query, args, err := c.sb.Update("enrollments").
		Set("completed_at", formatTime(at)).
		Where(sq.Eq{"id": string(id), "completed_at": nil}).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to mark enrollment completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *conn) EnrolledCourses(ctx context.Context, userID ledger.UserID) ([]ledger.EnrolledCourse, error) {
	cols := append(append([]string{}, enrollmentColumns...),
		"c.title", "c.description", "c.thumbnail", "c.difficulty_level", "c.points_cost", "c.points_reward",
		"(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) AS total_lessons",
		"(SELECT COUNT(*) FROM lesson_progress lp WHERE lp.enrollment_id = e.id AND lp.is_completed = TRUE) AS completed_lessons",
	)
	query, args, err := c.sb.Select(cols...).
		From("enrollments e").
		Join("courses c ON c.id = e.course_id").
		Where(sq.Eq{"e.user_id": int64(userID)}).
		OrderBy("e.enrolled_at DESC", "e.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrolled courses: %w", err)
	}
	defer rows.Close()

	var result []ledger.EnrolledCourse
	for rows.Next() {
		var (
			ec           ledger.EnrolledCourse
			cost, reward int64
		)
		e, err := scanEnrollment(rows,
			&ec.Title, &ec.Description, &ec.Thumbnail, &ec.DifficultyLevel, &cost, &reward,
			&ec.TotalLessons, &ec.CompletedLessons,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrolled course: %w", err)
		}
		ec.Enrollment = *e
		ec.PointsCost = ledger.Points(cost)
		ec.PointsReward = ledger.Points(reward)
		result = append(result, ec)
	}
	return result, rows.Err()
}

// =============================================================================
// LESSON PROGRESS
// =============================================================================

func (c *conn) SeedProgress(ctx context.Context, rows []ledger.LessonProgress) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	b := c.sb.Insert("lesson_progress").
		Columns("id", "enrollment_id", "lesson_id", "is_completed", "completed_at", "time_spent_minutes", "last_accessed_at")
	for _, r := range rows {
		b = b.Values(string(r.ID), string(r.EnrollmentID), int64(r.LessonID), r.IsCompleted,
			nullTime(r.CompletedAt), r.TimeSpentMinutes, nullTime(r.LastAccessedAt))
	}
	// Both SQLite (3.24+) and PostgreSQL accept this upsert form.
	query, args, err := b.Suffix("ON CONFLICT (enrollment_id, lesson_id) DO NOTHING").ToSql()
	if err != nil {
		return 0, err
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to seed progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to seed progress: %w", err)
	}
	return int(n), nil
}

func (c *conn) ProgressLessonIDs(ctx context.Context, id ledger.EnrollmentID) ([]ledger.LessonID, error) {
	query, args, err := c.sb.Select("lesson_id").
		From("lesson_progress").
		Where(sq.Eq{"enrollment_id": string(id)}).
		OrderBy("lesson_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress lessons: %w", err)
	}
	defer rows.Close()

	var ids []ledger.LessonID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.LessonID(id))
	}
	return ids, rows.Err()
}

// CompleteLesson adds minutes rather than overwriting them so partial
// sessions accumulate.
func (c *conn) CompleteLesson(ctx context.Context, id ledger.EnrollmentID, lessonID ledger.LessonID, minutes int, at time.Time) (bool, error) {
	ts := formatTime(at)
	return c.touchProgress(ctx, c.sb.Update("lesson_progress").
		Set("is_completed", true).
		Set("completed_at", ts).
		Set("time_spent_minutes", sq.Expr("time_spent_minutes + ?", minutes)).
		Set("last_accessed_at", ts).
		Where(sq.Eq{"enrollment_id": string(id), "lesson_id": int64(lessonID)}))
}

func (c *conn) AddLessonTime(ctx context.Context, id ledger.EnrollmentID, lessonID ledger.LessonID, minutes int, at time.Time) (bool, error) {
	return c.touchProgress(ctx, c.sb.Update("lesson_progress").
		Set("time_spent_minutes", sq.Expr("time_spent_minutes + ?", minutes)).
		Set("last_accessed_at", formatTime(at)).
		Where(sq.Eq{"enrollment_id": string(id), "lesson_id": int64(lessonID)}))
}

func (c *conn) touchProgress(ctx context.Context, b sq.UpdateBuilder) (bool, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return false, err
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update lesson progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *conn) CountProgress(ctx context.Context, id ledger.EnrollmentID) (int, int, error) {
	query, args, err := c.sb.Select("COUNT(*)", "COALESCE(SUM(CASE WHEN is_completed THEN 1 ELSE 0 END), 0)").
		From("lesson_progress").
		Where(sq.Eq{"enrollment_id": string(id)}).
		ToSql()
	if err != nil {
		return 0, 0, err
	}

	var total, completed int
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("failed to count progress: %w", err)
	}
	return total, completed, nil
}

func (c *conn) LessonProgress(ctx context.Context, id ledger.EnrollmentID) ([]ledger.LessonProgress, error) {
	query, args, err := c.sb.Select(
		"lp.id", "lp.enrollment_id", "lp.lesson_id", "lp.is_completed", "lp.completed_at",
		"lp.time_spent_minutes", "lp.last_accessed_at",
		"l.title", "l.lesson_order", "l.duration_minutes",
	).
		From("lesson_progress lp").
		Join("lessons l ON l.id = lp.lesson_id").
		Where(sq.Eq{"lp.enrollment_id": string(id)}).
		OrderBy("l.lesson_order ASC", "l.id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson progress: %w", err)
	}
	defer rows.Close()

	var result []ledger.LessonProgress
	for rows.Next() {
		var (
			p                         ledger.LessonProgress
			pid, enrollmentID         string
			lessonID                  int64
			completedAt, lastAccessed sql.NullString
		)
		if err := rows.Scan(
			&pid, &enrollmentID, &lessonID, &p.IsCompleted, &completedAt,
			&p.TimeSpentMinutes, &lastAccessed,
			&p.LessonTitle, &p.LessonOrder, &p.DurationMinutes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		p.ID = ledger.ProgressID(pid)
		p.EnrollmentID = ledger.EnrollmentID(enrollmentID)
		p.LessonID = ledger.LessonID(lessonID)
		p.CompletedAt = timePtr(completedAt)
		p.LastAccessedAt = timePtr(lastAccessed)
		result = append(result, p)
	}
	return result, rows.Err()
}
