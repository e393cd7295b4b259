/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data. Each scenario opens accounts through the engine (so welcome bonuses
  land in the transaction log), installs courses via the catalog factory,
  and drives enrollments and completions through the same operations the
  API uses.

AVAILABLE SCENARIOS:
  new-learner:     Fresh learner with a welcome bonus and a mixed catalog
  near-completion: One lesson away from a course reward
  tight-budget:    49 points, a course costing 50 and one costing 49
  instructor:      A "both" account that authors and takes courses

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Open accounts via Engine.OpenAccount
  3. Install courses from JSON via catalog.Factory
  4. Optionally enroll and complete lessons via the engine
  5. Return every account with a signed demo token

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "near-completion"}

NOTE:
  Scenarios reset the database. The routes are only mounted when
  ENABLE_SCENARIOS is set.

SEE ALSO:
  - catalog/factory.go: Course JSON definitions
  - server.go: Route mounting
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/course-ledger/catalog"
	"github.com/warp/course-ledger/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-learner",
		Name:        "New Learner",
		Description: "Welcome bonus, one free course, one paid course, one draft",
	},
	{
		ID:          "near-completion",
		Name:        "Near Completion",
		Description: "Enrolled learner with one lesson left before the reward",
	},
	{
		ID:          "tight-budget",
		Name:        "Tight Budget",
		Description: "49 points: a course costing 50 is refused, one costing 49 empties the balance",
	},
	{
		ID:          "instructor",
		Name:        "Instructor",
		Description: "Account with role both that owns a course and learns another",
	},
}

const (
	freeCourseJSON = `{
		"title": "Welcome to the Platform",
		"description": "A short tour of how courses, points and rewards work",
		"difficulty_level": "beginner",
		"points_cost": 0,
		"points_reward": 25,
		"is_published": true,
		"lessons": [
			{"title": "How points work", "duration_minutes": 5},
			{"title": "Finding courses", "duration_minutes": 5},
			{"title": "Tracking progress", "duration_minutes": 5}
		]
	}`

	goCourseJSON = `{
		"title": "Go for Backend Developers",
		"description": "Types, interfaces, goroutines and database/sql",
		"difficulty_level": "intermediate",
		"is_published": true,
		"lessons": [
			{"title": "Types and interfaces", "duration_minutes": 20},
			{"title": "Errors as values", "duration_minutes": 15},
			{"title": "Goroutines and channels", "duration_minutes": 25}
		]
	}`

	draftCourseJSON = `{
		"title": "Distributed Systems in Practice",
		"difficulty_level": "advanced",
		"is_published": false,
		"lessons": [{"title": "Consensus", "duration_minutes": 40}]
	}`

	fiftyCourseJSON = `{
		"title": "SQL Fundamentals",
		"difficulty_level": "beginner",
		"points_cost": 50,
		"is_published": true,
		"lessons": [{"title": "SELECT", "duration_minutes": 10}]
	}`

	fortyNineCourseJSON = `{
		"title": "Command Line Basics",
		"difficulty_level": "beginner",
		"points_cost": 49,
		"is_published": true,
		"lessons": [{"title": "Navigating", "duration_minutes": 10}]
	}`
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var load func(ctx context.Context, sb *scenarioBuilder) error
	switch req.ScenarioID {
	case "new-learner":
		load = h.loadNewLearnerScenario
	case "near-completion":
		load = h.loadNearCompletionScenario
	case "tight-budget":
		load = h.loadTightBudgetScenario
	case "instructor":
		load = h.loadInstructorScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario")
		return
	}

	resetter, ok := h.Engine.Store().(ledger.Resetter)
	if !ok {
		h.writeStoreError(w, "reset", ledger.ErrStoreRequired)
		return
	}

	// One load at a time; the reset would otherwise wipe a concurrent load.
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := resetter.Reset(ctx); err != nil {
		h.writeStoreError(w, "reset", err)
		return
	}
	h.currentScenario = ""

	sb := &scenarioBuilder{h: h}
	if err := load(ctx, sb); err != nil {
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID))
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Success:  true,
		Message:  "Scenario loaded",
		Scenario: req.ScenarioID,
		Users:    sb.users,
		Courses:  sb.courses,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewLearnerScenario(ctx context.Context, sb *scenarioBuilder) error {
	instructor, err := sb.account(ctx, "instructor@example.com", "Ada Instructor", ledger.RoleInstructor, 0)
	if err != nil {
		return err
	}
	if _, err := sb.account(ctx, "learner@example.com", "Lin Learner", ledger.RoleLearner, h.WelcomeBonus); err != nil {
		return err
	}
	for _, def := range []string{freeCourseJSON, goCourseJSON, draftCourseJSON} {
		if _, _, err := sb.course(ctx, instructor.ID, def); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadNearCompletionScenario(ctx context.Context, sb *scenarioBuilder) error {
	instructor, err := sb.account(ctx, "instructor@example.com", "Ada Instructor", ledger.RoleInstructor, 0)
	if err != nil {
		return err
	}
	learner, err := sb.account(ctx, "learner@example.com", "Lin Learner", ledger.RoleLearner, h.WelcomeBonus)
	if err != nil {
		return err
	}
	course, lessons, err := sb.course(ctx, instructor.ID, goCourseJSON)
	if err != nil {
		return err
	}

	if _, err := h.Engine.Enroll(ctx, learner.ID, course.ID); err != nil {
		return err
	}
	// Everything but the last lesson.
	for _, l := range lessons[:len(lessons)-1] {
		if _, err := h.Engine.CompleteLesson(ctx, learner.ID, l.ID, l.DurationMinutes); err != nil {
			return err
		}
	}
	return sb.refreshPoints(ctx)
}

func (h *Handler) loadTightBudgetScenario(ctx context.Context, sb *scenarioBuilder) error {
	instructor, err := sb.account(ctx, "instructor@example.com", "Ada Instructor", ledger.RoleInstructor, 0)
	if err != nil {
		return err
	}
	if _, err := sb.account(ctx, "learner@example.com", "Lin Learner", ledger.RoleLearner, 49); err != nil {
		return err
	}
	for _, def := range []string{fiftyCourseJSON, fortyNineCourseJSON} {
		if _, _, err := sb.course(ctx, instructor.ID, def); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadInstructorScenario(ctx context.Context, sb *scenarioBuilder) error {
	both, err := sb.account(ctx, "both@example.com", "Sam Both", ledger.RoleBoth, h.WelcomeBonus)
	if err != nil {
		return err
	}
	other, err := sb.account(ctx, "other@example.com", "Kai Instructor", ledger.RoleInstructor, 0)
	if err != nil {
		return err
	}
	if _, _, err := sb.course(ctx, both.ID, draftCourseJSON); err != nil {
		return err
	}
	course, _, err := sb.course(ctx, other.ID, freeCourseJSON)
	if err != nil {
		return err
	}
	if _, err := h.Engine.Enroll(ctx, both.ID, course.ID); err != nil {
		return err
	}
	return sb.refreshPoints(ctx)
}

// =============================================================================
// SCENARIO BUILDER
// =============================================================================

// scenarioBuilder collects what a loader created for the response.
type scenarioBuilder struct {
	h       *Handler
	users   []DemoUserDTO
	courses []CourseDTO
}

func (sb *scenarioBuilder) account(ctx context.Context, email, name string, role ledger.Role, bonus ledger.Points) (*ledger.User, error) {
	u, err := sb.h.Engine.OpenAccount(ctx, ledger.User{Email: email, FullName: name, Role: role}, bonus)
	if err != nil {
		return nil, err
	}
	token, err := sb.h.Auth.Issue(*u)
	if err != nil {
		return nil, fmt.Errorf("sign token for %s: %w", email, err)
	}
	sb.users = append(sb.users, DemoUserDTO{
		ID:     int64(u.ID),
		Email:  u.Email,
		Role:   string(u.Role),
		Points: int64(u.Points),
		Token:  token,
	})
	return u, nil
}

func (sb *scenarioBuilder) course(ctx context.Context, instructor ledger.UserID, def string) (*ledger.Course, []ledger.Lesson, error) {
	course, lessons, err := sb.h.Factory.ParseCourse(def)
	if err != nil {
		return nil, nil, err
	}
	course.InstructorID = instructor
	if err := catalog.Install(ctx, sb.h.Engine.Store(), course, lessons); err != nil {
		return nil, nil, fmt.Errorf("install %q: %w", course.Title, err)
	}
	sb.courses = append(sb.courses, toCourseDTO(*course, lessons))
	return course, lessons, nil
}

// refreshPoints reloads balances after a loader moved points.
func (sb *scenarioBuilder) refreshPoints(ctx context.Context) error {
	for i := range sb.users {
		points, err := sb.h.Engine.Balance(ctx, ledger.UserID(sb.users[i].ID))
		if err != nil {
			return err
		}
		sb.users[i].Points = int64(points)
	}
	return nil
}
