package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// CATALOG READS (ledger.Catalog interface)
// =============================================================================

var courseColumns = []string{
	"id", "instructor_id", "title", "description", "difficulty_level", "thumbnail",
	"is_published", "points_cost", "points_reward", "created_at",
}

func (c *conn) GetCourse(ctx context.Context, id ledger.CourseID) (*ledger.Course, error) {
	query, args, err := c.sb.Select(courseColumns...).
		From("courses").
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		course       ledger.Course
		courseID     int64
		instructorID sql.NullInt64
		cost, reward int64
		createdAt    string
	)
	err = c.q.QueryRowContext(ctx, query, args...).Scan(
		&courseID, &instructorID, &course.Title, &course.Description, &course.DifficultyLevel,
		&course.Thumbnail, &course.IsPublished, &cost, &reward, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}

	course.ID = ledger.CourseID(courseID)
	course.InstructorID = ledger.UserID(instructorID.Int64)
	course.PointsCost = ledger.Points(cost)
	course.PointsReward = ledger.Points(reward)
	course.CreatedAt = parseTime(createdAt)
	return &course, nil
}

func (c *conn) LessonsForCourse(ctx context.Context, id ledger.CourseID) ([]ledger.Lesson, error) {
	query, args, err := c.sb.Select("id", "course_id", "title", "lesson_order", "duration_minutes", "video_url").
		From("lessons").
		Where(sq.Eq{"course_id": int64(id)}).
		OrderBy("lesson_order ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []ledger.Lesson
	for rows.Next() {
		var (
			l                  ledger.Lesson
			lessonID, courseID int64
		)
		if err := rows.Scan(&lessonID, &courseID, &l.Title, &l.Order, &l.DurationMinutes, &l.VideoURL); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		l.ID = ledger.LessonID(lessonID)
		l.CourseID = ledger.CourseID(courseID)
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// =============================================================================
// CATALOG WRITES (ledger.CatalogWriter interface)
// =============================================================================

func (c *conn) CreateUser(ctx context.Context, u *ledger.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = ledger.RoleLearner
	}

	query, args, err := c.sb.Insert("users").
		Columns("email", "full_name", "role", "points", "created_at").
		Values(u.Email, u.FullName, string(u.Role), int64(u.Points), formatTime(u.CreatedAt)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}

	var id int64
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.ID = ledger.UserID(id)
	return nil
}

func (c *conn) GetUser(ctx context.Context, id ledger.UserID) (*ledger.User, error) {
	query, args, err := c.sb.Select("id", "email", "full_name", "role", "points", "created_at").
		From("users").
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		u         ledger.User
		userID    int64
		role      string
		points    int64
		createdAt string
	)
	err = c.q.QueryRowContext(ctx, query, args...).Scan(&userID, &u.Email, &u.FullName, &role, &points, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	u.ID = ledger.UserID(userID)
	u.Role = ledger.Role(role)
	u.Points = ledger.Points(points)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (c *conn) CreateCourse(ctx context.Context, course *ledger.Course) error {
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}

	var instructor sql.NullInt64
	if course.InstructorID != 0 {
		instructor = sql.NullInt64{Int64: int64(course.InstructorID), Valid: true}
	}

	query, args, err := c.sb.Insert("courses").
		Columns(courseColumns[1:]...).
		Values(instructor, course.Title, course.Description, course.DifficultyLevel, course.Thumbnail,
			course.IsPublished, int64(course.PointsCost), int64(course.PointsReward), formatTime(course.CreatedAt)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}

	var id int64
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	course.ID = ledger.CourseID(id)
	return nil
}

func (c *conn) SetCoursePublished(ctx context.Context, id ledger.CourseID, published bool) error {
	query, args, err := c.sb.Update("courses").
		Set("is_published", published).
		Where(sq.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to publish course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrCourseNotFound
	}
	return nil
}

func (c *conn) CreateLesson(ctx context.Context, l *ledger.Lesson) error {
	query, args, err := c.sb.Insert("lessons").
		Columns("course_id", "title", "lesson_order", "duration_minutes", "video_url").
		Values(int64(l.CourseID), l.Title, l.Order, l.DurationMinutes, l.VideoURL).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return err
	}

	var id int64
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if isForeignKeyViolation(err) {
			return ledger.ErrCourseNotFound
		}
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	l.ID = ledger.LessonID(id)
	return nil
}
