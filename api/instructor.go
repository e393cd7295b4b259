package api

import (
	"encoding/json"
	"net/http"

	"github.com/warp/course-ledger/catalog"
	"github.com/warp/course-ledger/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// INSTRUCTOR ENDPOINTS
// =============================================================================

// CreateCourse handles POST /api/courses. The body is a catalog.CourseJSON;
// points default by difficulty level.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())

	var cj catalog.CourseJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	course, lessons, err := h.Factory.FromJSON(cj)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	course.InstructorID = ledger.UserID(claims.UserID)

	if err := catalog.Install(r.Context(), h.Engine.Store(), course, lessons); err != nil {
		h.writeStoreError(w, "create course", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseDTO(*course, lessons))
}

// AddLesson handles POST /api/courses/{courseID}/lessons. Learners already
// enrolled pick up the new lesson on their next write or sweep.
func (h *Handler) AddLesson(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	if !h.ownsCourse(w, r, ledger.CourseID(courseID)) {
		return
	}

	var lj catalog.LessonJSON
	if err := json.NewDecoder(r.Body).Decode(&lj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	lesson, err := h.Factory.LessonFromJSON(lj, 0)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	lesson.CourseID = ledger.CourseID(courseID)

	if err := catalog.AddLesson(r.Context(), h.Engine.Store(), &lesson); err != nil {
		h.writeStoreError(w, "add lesson", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLessonDTO(lesson))
}

// PublishCourse handles PUT /api/courses/{courseID}/publish.
func (h *Handler) PublishCourse(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	if !h.ownsCourse(w, r, ledger.CourseID(courseID)) {
		return
	}

	req := PublishRequest{IsPublished: true}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	writer, ok := h.Engine.Store().(ledger.CatalogWriter)
	if !ok {
		h.writeStoreError(w, "publish course", ledger.ErrStoreRequired)
		return
	}
	if err := writer.SetCoursePublished(r.Context(), ledger.CourseID(courseID), req.IsPublished); err != nil {
		h.writeStoreError(w, "publish course", err)
		return
	}

	msg := "Course unpublished"
	if req.IsPublished {
		msg = "Course published"
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: msg})
}

// ownsCourse writes 404 or 403 unless the caller created the course or is
// an admin.
func (h *Handler) ownsCourse(w http.ResponseWriter, r *http.Request, id ledger.CourseID) bool {
	claims := ClaimsFrom(r.Context())
	course, err := h.Engine.Store().GetCourse(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, "load course", err)
		return false
	}
	if claims.Role != ledger.RoleAdmin && course.InstructorID != ledger.UserID(claims.UserID) {
		writeError(w, http.StatusForbidden, "Access denied. You do not own this course.")
		return false
	}
	return true
}

// writeStoreError renders errors from direct store calls, which do not pass
// through the engine's classification.
func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	if !ledger.IsRejection(err) {
		h.Logger.Error("store call failed", zap.String("op", op), zap.Error(err))
		err = &ledger.InternalError{Op: op, Err: err}
	}
	writeLedgerError(w, err)
}
