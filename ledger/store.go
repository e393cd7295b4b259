/*
store.go - Persistence interfaces for balances, transactions and progress

PURPOSE:
  Defines the contract between the engine and the database. The same
  interface set is implemented by the SQL store (SQLite and PostgreSQL) and by
  the in-memory store used in tests.

KEY INTERFACES:
  Catalog:       Read-only course/lesson lookups (owned by collaborators)
  LedgerStore:   User balance and the append-only transaction log
  ProgressStore: Enrollments and lesson progress rows
  Store:         All of the above
  TxStore:       Store plus WithTx for atomic multi-table units
  CatalogWriter: Seeding and admin writes for users, courses and lessons

ATOMICITY:
  Every mutating engine operation runs inside TxStore.WithTx. The Store
  passed to fn is bound to the transaction: reads observe the unit's own
  writes, and a returned error discards all of them.

CONCURRENCY CONTRACT:
  - Debit is an atomic conditional decrement. It never drives points below
    zero and reports ErrInsufficientFunds instead.
  - CreateEnrollment reports ErrAlreadyEnrolled on a uniqueness violation.
  - MarkEnrollmentCompleted only succeeds on the null -> non-null transition.
  - ResolveLessonEnrollment and LockEnrollment lock the enrollment row where
    the database supports it, so every unit that recounts progress for an
    enrollment serializes with the others.
  - SeedProgress never fails on an existing row. Two units racing to
    backfill the same lesson both succeed.

APPEND-ONLY CONTRACT:
  AppendTransaction is the only write to the transaction log.
  There is no Update or Delete.

IMPLEMENTATIONS:
  - store/sqldb: database/sql with SQLite or PostgreSQL (pgx)
  - ledger/store: in-memory for tests
*/
package ledger

import (
	"context"
	"time"
)

// Catalog is the read-only view of courses and lessons.
type Catalog interface {
	// GetCourse returns ErrCourseNotFound if the course does not exist.
	GetCourse(ctx context.Context, id CourseID) (*Course, error)

	// LessonsForCourse returns lessons ordered by Order, then ID.
	LessonsForCourse(ctx context.Context, id CourseID) ([]Lesson, error)
}

// LedgerStore persists balances and the transaction log.
type LedgerStore interface {
	// Balance returns ErrUserNotFound if the user does not exist.
	Balance(ctx context.Context, userID UserID) (Points, error)

	// Debit subtracts amount only if the balance covers it and returns the
	// new balance.
	Debit(ctx context.Context, userID UserID, amount Points) (Points, error)

	// Credit adds amount and returns the new balance.
	Credit(ctx context.Context, userID UserID, amount Points) (Points, error)

	// AppendTransaction writes one immutable log entry.
	AppendTransaction(ctx context.Context, tx PointTransaction) error

	// Transactions returns a page of entries ordered by CreatedAt descending.
	Transactions(ctx context.Context, userID UserID, limit, offset int) ([]PointTransaction, error)

	// CountTransactions returns the total number of entries for the user.
	CountTransactions(ctx context.Context, userID UserID) (int, error)
}

// ProgressStore persists enrollments and lesson progress.
type ProgressStore interface {
	// FindEnrollment returns (nil, nil) when the user is not enrolled.
	FindEnrollment(ctx context.Context, userID UserID, courseID CourseID) (*Enrollment, error)

	// GetEnrollment returns ErrEnrollmentNotFound when absent.
	GetEnrollment(ctx context.Context, id EnrollmentID) (*Enrollment, error)

	// LockEnrollment is GetEnrollment holding the row lock until the unit
	// ends, the same lock ResolveLessonEnrollment takes.
	LockEnrollment(ctx context.Context, id EnrollmentID) (*Enrollment, error)

	// ListEnrollments returns every enrollment id, oldest first.
	ListEnrollments(ctx context.Context) ([]EnrollmentID, error)

	// CreateEnrollment returns ErrAlreadyEnrolled on a duplicate pair.
	CreateEnrollment(ctx context.Context, e Enrollment) error

	// ResolveLessonEnrollment joins lesson -> course -> enrollment for the
	// user. Returns (nil, nil) when the lesson is unknown or not enrolled.
	ResolveLessonEnrollment(ctx context.Context, userID UserID, lessonID LessonID) (*Enrollment, error)

	// SeedProgress inserts rows, skipping (enrollment, lesson) pairs that
	// already have one, and returns how many were inserted.
	SeedProgress(ctx context.Context, rows []LessonProgress) (int, error)

	// ProgressLessonIDs returns the lessons that already have a row.
	ProgressLessonIDs(ctx context.Context, id EnrollmentID) ([]LessonID, error)

	// CompleteLesson marks the row complete, adds minutes and touches
	// last_accessed_at. Returns false if no row matched.
	CompleteLesson(ctx context.Context, id EnrollmentID, lessonID LessonID, minutes int, at time.Time) (bool, error)

	// AddLessonTime adds minutes and touches last_accessed_at only.
	AddLessonTime(ctx context.Context, id EnrollmentID, lessonID LessonID, minutes int, at time.Time) (bool, error)

	// CountProgress returns (total rows, completed rows) for the enrollment.
	CountProgress(ctx context.Context, id EnrollmentID) (total, completed int, err error)

	// SetProgressPercentage stores the recomputed cache column.
	SetProgressPercentage(ctx context.Context, id EnrollmentID, percentage int) error

	// MarkEnrollmentCompleted sets completed_at only if it is null and
	// reports whether this call performed the transition.
	MarkEnrollmentCompleted(ctx context.Context, id EnrollmentID, at time.Time) (bool, error)

	// LessonProgress returns rows joined with lesson metadata, ordered by
	// lesson order.
	LessonProgress(ctx context.Context, id EnrollmentID) ([]LessonProgress, error)

	// EnrolledCourses returns the user's enrollments with course metadata
	// and lesson counts, newest first.
	EnrolledCourses(ctx context.Context, userID UserID) ([]EnrolledCourse, error)
}

// Store is the full persistence surface used inside a unit of work.
type Store interface {
	Catalog
	LedgerStore
	ProgressStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// CatalogWriter creates catalog records. Used by admin routes, demo
// scenarios and tests. The Store handed to WithTx also implements it when
// the underlying store does, so a user insert and its welcome credit can
// commit together.
type CatalogWriter interface {
	// CreateUser assigns u.ID. Returns ErrDuplicateEmail on a taken email.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)

	// CreateCourse assigns c.ID.
	CreateCourse(ctx context.Context, c *Course) error
	SetCoursePublished(ctx context.Context, id CourseID, published bool) error

	// CreateLesson assigns l.ID. Returns ErrCourseNotFound for an unknown course.
	CreateLesson(ctx context.Context, l *Lesson) error
}

// Resetter clears all data. Only demo scenarios use it.
type Resetter interface {
	Reset(ctx context.Context) error
}
