package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, ts *testServer, id string) LoadScenarioResponse {
	t.Helper()
	rec := ts.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[LoadScenarioResponse](t, rec)
}

func findUser(t *testing.T, resp LoadScenarioResponse, email string) DemoUserDTO {
	t.Helper()
	for _, u := range resp.Users {
		if u.Email == email {
			return u
		}
	}
	t.Fatalf("user %s not in scenario", email)
	return DemoUserDTO{}
}

func TestScenarios_LoadEach(t *testing.T) {
	ts := newTestServer(t)
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			resp := loadScenario(t, ts, s.ID)
			assert.Equal(t, s.ID, resp.Scenario)
			assert.NotEmpty(t, resp.Users)
			assert.NotEmpty(t, resp.Courses)

			rec := ts.do(http.MethodGet, "/api/scenarios/current", "", nil)
			assert.Equal(t, s.ID, decode[ScenarioDTO](t, rec).ID)
		})
	}
}

func TestScenario_NearCompletion(t *testing.T) {
	// GIVEN: A learner two lessons into a three-lesson intermediate course
	ts := newTestServer(t)
	resp := loadScenario(t, ts, "near-completion")
	learner := findUser(t, resp, "learner@example.com")
	assert.Equal(t, int64(400), learner.Points)

	course := resp.Courses[0]
	last := course.Lessons[len(course.Lessons)-1]

	// WHEN: Completing the last lesson with the demo token
	rec := ts.do(http.MethodPut, "/api/enrollments/lesson/"+itoa(last.ID)+"/complete", learner.Token, nil)

	// THEN: The intermediate reward is paid
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[CompleteLessonResponse](t, rec)
	assert.True(t, done.CourseCompleted)
	require.NotNil(t, done.PointsBalance)
	assert.Equal(t, int64(550), *done.PointsBalance)
}

func TestScenario_TightBudget(t *testing.T) {
	ts := newTestServer(t)
	resp := loadScenario(t, ts, "tight-budget")
	learner := findUser(t, resp, "learner@example.com")
	require.Len(t, resp.Courses, 2)
	fifty, fortyNine := resp.Courses[0], resp.Courses[1]

	rec := ts.do(http.MethodPost, "/api/enrollments", learner.Token, EnrollRequest{CourseID: fifty.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/enrollments", learner.Token, EnrollRequest{CourseID: fortyNine.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(0), decode[EnrollResponse](t, rec).PointsBalance)
}

func TestScenario_ResetsPreviousData(t *testing.T) {
	ts := newTestServer(t)
	first := loadScenario(t, ts, "new-learner")
	second := loadScenario(t, ts, "new-learner")

	// Reloading replaces the data instead of adding to it.
	old := findUser(t, first, "learner@example.com")
	fresh := findUser(t, second, "learner@example.com")
	assert.Equal(t, old.Points, fresh.Points)

	rec := ts.do(http.MethodGet, "/api/points/transactions", fresh.Token, nil)
	assert.Equal(t, 1, decode[TransactionsResponse](t, rec).Pagination.Total)
}

func TestScenario_Unknown(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
