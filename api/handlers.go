/*
handlers.go - HTTP API handlers for the course points ledger

PURPOSE:
  Exposes the learning engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every rule to package learning.

ENDPOINTS:
  Enrollments (learner):
    POST   /api/enrollments                             Enroll, debit the cost
    GET    /api/enrollments                             My courses
    GET    /api/enrollments/course/{courseID}           Progress in one course
    PUT    /api/enrollments/lesson/{lessonID}/complete  Complete a lesson
    PUT    /api/enrollments/lesson/{lessonID}/progress  Add time to a lesson

  Points (any role):
    GET    /api/points                                  Current balance
    GET    /api/points/transactions?page&limit          Transaction history

  Courses (instructor): see instructor.go
  Admin:                see admin.go
  Scenarios:            see scenarios.go

REQUEST FLOW:
  1. Identity from the bearer token (auth.go)
  2. Parse path and body
  3. Call the engine
  4. Serialize response, or map the error with statusFor

ERROR HANDLING:
  - 400: Insufficient points, unpublished course, invalid input
  - 404: Unknown course, lesson or enrollment
  - 409: Already enrolled
  - 500: The unit rolled back. Clients see a generic message.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: statusFor
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/course-ledger/catalog"
	"github.com/warp/course-ledger/learning"
	"github.com/warp/course-ledger/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *learning.Engine
	Factory *catalog.Factory
	Auth    *Authenticator
	Logger  *zap.Logger

	// WelcomeBonus is credited to accounts opened by demo scenarios.
	WelcomeBonus ledger.Points

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over engine.
func NewHandler(engine *learning.Engine, auth *Authenticator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:       engine,
		Factory:      catalog.NewFactory(),
		Auth:         auth,
		Logger:       logger,
		WelcomeBonus: 500,
	}
}

// =============================================================================
// ENROLLMENT ENDPOINTS
// =============================================================================

// Enroll handles POST /api/enrollments.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())

	var req EnrollRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CourseID <= 0 {
		writeError(w, http.StatusBadRequest, "course_id is required")
		return
	}

	res, err := h.Engine.Enroll(r.Context(), ledger.UserID(claims.UserID), ledger.CourseID(req.CourseID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	msg := "Successfully enrolled in free course!"
	if res.PointsSpent > 0 {
		msg = fmt.Sprintf("Successfully enrolled! %d points spent.", res.PointsSpent)
	}
	writeJSON(w, http.StatusCreated, EnrollResponse{
		Success:       true,
		Message:       msg,
		Enrollment:    toEnrollmentDTO(res.Enrollment),
		PointsSpent:   int64(res.PointsSpent),
		PointsBalance: int64(res.PointsBalance),
	})
}

// ListEnrollments handles GET /api/enrollments.
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())

	rows, err := h.Engine.EnrolledCourses(r.Context(), ledger.UserID(claims.UserID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EnrolledCoursesResponse{
		Success:     true,
		Count:       len(rows),
		Enrollments: toEnrolledCourseDTOs(rows),
	})
}

// GetCourseProgress handles GET /api/enrollments/course/{courseID}.
func (h *Handler) GetCourseProgress(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}

	p, err := h.Engine.CourseProgress(r.Context(), ledger.UserID(claims.UserID), ledger.CourseID(courseID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CourseProgressResponse{
		Success:    true,
		Enrollment: toEnrollmentDTO(p.Enrollment),
		Progress:   toLessonProgressDTOs(p.Lessons),
	})
}

// CompleteLesson handles PUT /api/enrollments/lesson/{lessonID}/complete.
// The body is optional.
func (h *Handler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	lessonID, ok := pathID(w, r, "lessonID")
	if !ok {
		return
	}
	var req LessonTimeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.Engine.CompleteLesson(r.Context(), ledger.UserID(claims.UserID), ledger.LessonID(lessonID), req.TimeSpentMinutes)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	resp := CompleteLessonResponse{
		Success:            true,
		Message:            "Lesson marked as complete",
		ProgressPercentage: res.ProgressPercentage,
		CourseCompleted:    res.CourseCompleted,
	}
	if res.CourseCompleted {
		earned := int64(res.PointsEarned)
		resp.PointsEarned = &earned
		resp.Message = fmt.Sprintf("🎉 Course completed! You earned %d points!", earned)
		if res.PointsBalance != nil {
			balance := int64(*res.PointsBalance)
			resp.PointsBalance = &balance
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateLessonProgress handles PUT /api/enrollments/lesson/{lessonID}/progress.
func (h *Handler) UpdateLessonProgress(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	lessonID, ok := pathID(w, r, "lessonID")
	if !ok {
		return
	}
	var req LessonTimeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Engine.UpdateLessonTime(r.Context(), ledger.UserID(claims.UserID), ledger.LessonID(lessonID), req.TimeSpentMinutes); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Progress updated successfully"})
}

// =============================================================================
// POINTS ENDPOINTS
// =============================================================================

// GetPoints handles GET /api/points.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())

	points, err := h.Engine.Balance(r.Context(), ledger.UserID(claims.UserID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PointsResponse{Success: true, Points: int64(points)})
}

// GetTransactions handles GET /api/points/transactions?page=&limit=.
// Malformed or non-positive values fall back to the defaults.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p, err := h.Engine.Transactions(r.Context(), ledger.UserID(claims.UserID), ledger.NewPage(page, limit))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionsResponse(p))
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pathID parses a positive integer URL parameter, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}
