/*
Package ledger provides the core types and persistence contracts for the
course points and progress ledger.

PURPOSE:
  A learner's point balance, their enrollments, and their per-lesson progress
  are three views of the same history. This package defines those records and
  the store interfaces that keep them consistent. The engine in package
  learning orchestrates them; this package has no behavior beyond small pure
  helpers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Points: The platform currency (non-monetary, whole numbers)
  - PointTransaction: An immutable audit entry for every balance change
  - Enrollment: One user registered in one course
  - LessonProgress: Completion state of one lesson inside one enrollment
  - Course / Lesson / User: Read-only catalog records the core consumes

DESIGN PRINCIPLES:
  1. Immutability: Transactions are appended, never edited or deleted
  2. Positive amounts: Kind carries the direction, Amount is always > 0
  3. Type Safety: Distinct ID types prevent mixing user/course/lesson IDs
  4. Derived caches: Enrollment.ProgressPercentage is recomputed, never trusted

SEE ALSO:
  - store.go: Store, TxStore and Catalog interfaces
  - errors.go: Error taxonomy shared by stores, engine and API
  - progress.go: Percentage and pagination helpers
*/
package ledger

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Catalog entities (users, courses, lessons) use numeric ids issued by the
// database. Ledger-owned rows use UUID strings generated by the engine.
type (
	UserID   int64
	CourseID int64
	LessonID int64

	EnrollmentID  string
	ProgressID    string
	TransactionID string
)

// =============================================================================
// POINTS
// =============================================================================

// Points is an amount of platform currency.
type Points int64

// Kind encodes the direction of a PointTransaction.
type Kind string

const (
	KindEarned Kind = "earned" // Course completion reward
	KindSpent  Kind = "spent"  // Enrollment debit
	KindBonus  Kind = "bonus"  // Welcome bonus, admin grants
)

// IsCredit reports whether transactions of this kind increase the balance.
func (k Kind) IsCredit() bool { return k == KindEarned || k == KindBonus }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindEarned, KindSpent, KindBonus:
		return true
	}
	return false
}

// Signed returns the balance delta represented by a transaction.
func (tx PointTransaction) Signed() Points {
	if tx.Kind.IsCredit() {
		return tx.Amount
	}
	return -tx.Amount
}

// PointTransaction is an append-only audit entry. Exactly one is written for
// every balance mutation.
type PointTransaction struct {
	ID          TransactionID
	UserID      UserID
	Amount      Points
	Kind        Kind
	Description string
	ReferenceID *CourseID
	CreatedAt   time.Time
}

// =============================================================================
// ENROLLMENT & PROGRESS
// =============================================================================

// Enrollment is a user's registration in a course.
// INVARIANT: at most one per (UserID, CourseID).
type Enrollment struct {
	ID                 EnrollmentID
	UserID             UserID
	CourseID           CourseID
	EnrolledAt         time.Time
	ProgressPercentage int
	CompletedAt        *time.Time
}

// IsCompleted reports whether the enrollment has ever reached 100%.
func (e Enrollment) IsCompleted() bool { return e.CompletedAt != nil }

// LessonProgress tracks one lesson within one enrollment.
// INVARIANT: at most one per (EnrollmentID, LessonID).
type LessonProgress struct {
	ID               ProgressID
	EnrollmentID     EnrollmentID
	LessonID         LessonID
	IsCompleted      bool
	CompletedAt      *time.Time
	TimeSpentMinutes int
	LastAccessedAt   *time.Time

	// Read-view fields joined from the lesson.
	LessonTitle     string
	LessonOrder     int
	DurationMinutes int
}

// EnrolledCourse is the read view behind "my courses".
type EnrolledCourse struct {
	Enrollment
	Title            string
	Description      string
	Thumbnail        string
	DifficultyLevel  string
	PointsCost       Points
	PointsReward     Points
	TotalLessons     int
	CompletedLessons int
}

// =============================================================================
// CATALOG - Records owned by collaborators, read by the core
// =============================================================================

// Course carries the fields the ledger needs plus display metadata.
type Course struct {
	ID              CourseID
	InstructorID    UserID
	Title           string
	Description     string
	DifficultyLevel string
	Thumbnail       string
	IsPublished     bool
	PointsCost      Points
	PointsReward    Points
	CreatedAt       time.Time
}

// IsFree reports whether enrolling costs nothing.
func (c Course) IsFree() bool { return c.PointsCost <= 0 }

// Lesson is one ordered unit of a course.
type Lesson struct {
	ID              LessonID
	CourseID        CourseID
	Title           string
	Order           int
	DurationMinutes int
	VideoURL        string
}

// Role is the account role carried by the auth token.
type Role string

const (
	RoleLearner    Role = "learner"
	RoleInstructor Role = "instructor"
	RoleBoth       Role = "both"
	RoleAdmin      Role = "admin"
)

// User is an account holder with a point balance.
type User struct {
	ID        UserID
	Email     string
	FullName  string
	Role      Role
	Points    Points
	CreatedAt time.Time
}
