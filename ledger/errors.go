/*
errors.go - Error taxonomy for the points and progress ledger

PURPOSE:
  All error types in one place. Stores return them, the engine composes them,
  and the API maps them to status codes. Nothing here knows about HTTP.

ERROR CATEGORIES:
  1. NotFound          - user, course, lesson or enrollment absent
  2. InvalidState      - course is not published
  3. Conflict          - duplicate enrollment
  4. InsufficientFunds - balance below the course cost (carries amounts)
  5. InvalidArgument   - caller input the core refuses (negative minutes)
  6. Internal          - the atomic unit did not commit

USAGE:
  if errors.Is(err, ledger.ErrConflict) { ... }

  var funds *ledger.InsufficientFundsError
  if errors.As(err, &funds) {
      fmt.Println(funds.Required, funds.Available)
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientFunds = errors.New("insufficient points")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInternal          = errors.New("internal error")
)

var (
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrCourseNotFound     = fmt.Errorf("course %w", ErrNotFound)
	ErrLessonNotFound     = fmt.Errorf("lesson not found or not enrolled: %w", ErrNotFound)
	ErrEnrollmentNotFound = fmt.Errorf("not enrolled in this course: %w", ErrNotFound)

	ErrCourseNotPublished = fmt.Errorf("cannot enroll in unpublished course: %w", ErrInvalidState)
	ErrAlreadyEnrolled    = fmt.Errorf("already enrolled in this course: %w", ErrConflict)
	ErrDuplicateEmail     = fmt.Errorf("user with this email already exists: %w", ErrConflict)

	ErrNegativeMinutes = fmt.Errorf("time spent must not be negative: %w", ErrInvalidArgument)
	ErrNonPositive     = fmt.Errorf("amount must be positive: %w", ErrInvalidArgument)
)

// ErrStoreRequired is returned when an operation needs a store capability
// (such as CatalogWriter) that the configured store does not provide.
var ErrStoreRequired = errors.New("operation requires extended store interface")

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports the shortage. Required and Available are
// part of the caller contract.
type InsufficientFundsError struct {
	UserID    UserID
	Required  Points
	Available Points
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("not enough points: need %d but only have %d", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InternalError marks a failed atomic unit. Op names the engine operation;
// Err is the underlying cause and must not reach clients.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error { return []error{ErrInternal, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRejection returns true for expected, user-facing outcomes that must not
// be retried automatically.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidArgument)
}

// IsInternal returns true if the atomic unit failed for a non-domain reason.
func IsInternal(err error) bool { return errors.Is(err, ErrInternal) }
