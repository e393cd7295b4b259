/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger records from the external contract: ids keep their numeric or
  UUID form, timestamps are RFC 3339, and optional values use pointers so
  "absent" and "zero" stay distinct.

NAMING CONVENTION:
  - *DTO: Records returned to clients
  - *Request: Request body types from clients
  - *Response: Envelopes with success and message

ENVELOPE:
  Every response carries "success". Errors carry "message" and, for
  insufficient points, "required" and "available".

SEE ALSO:
  - handlers.go: Uses these types
  - catalog/factory.go: CourseJSON request body
*/
package api

import (
	"time"

	"github.com/warp/course-ledger/learning"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// ENVELOPES
// =============================================================================

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Required  *int64 `json:"required,omitempty"`
	Available *int64 `json:"available,omitempty"`
}

// MessageResponse acknowledges a write with no payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// =============================================================================
// ENROLLMENT
// =============================================================================

type EnrollRequest struct {
	CourseID int64 `json:"course_id"`
}

type EnrollmentDTO struct {
	ID                 string     `json:"id"`
	UserID             int64      `json:"user_id"`
	CourseID           int64      `json:"course_id"`
	EnrolledAt         time.Time  `json:"enrolled_at"`
	ProgressPercentage int        `json:"progress_percentage"`
	CompletedAt        *time.Time `json:"completed_at"`
}

type EnrollResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	Enrollment    EnrollmentDTO `json:"enrollment"`
	PointsSpent   int64         `json:"points_spent"`
	PointsBalance int64         `json:"points_balance"`
}

// EnrolledCourseDTO is one row of "my courses".
type EnrolledCourseDTO struct {
	EnrollmentDTO
	Title            string `json:"title"`
	Description      string `json:"description"`
	Thumbnail        string `json:"thumbnail"`
	DifficultyLevel  string `json:"difficulty_level"`
	PointsCost       int64  `json:"points_cost"`
	PointsReward     int64  `json:"points_reward"`
	TotalLessons     int    `json:"total_lessons"`
	CompletedLessons int    `json:"completed_lessons"`
}

type EnrolledCoursesResponse struct {
	Success     bool                `json:"success"`
	Count       int                 `json:"count"`
	Enrollments []EnrolledCourseDTO `json:"enrollments"`
}

type LessonProgressDTO struct {
	ID               string     `json:"id"`
	LessonID         int64      `json:"lesson_id"`
	Title            string     `json:"title"`
	LessonOrder      int        `json:"lesson_order"`
	DurationMinutes  int        `json:"duration_minutes"`
	IsCompleted      bool       `json:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at"`
	TimeSpentMinutes int        `json:"time_spent_minutes"`
	LastAccessedAt   *time.Time `json:"last_accessed_at"`
}

type CourseProgressResponse struct {
	Success    bool                `json:"success"`
	Enrollment EnrollmentDTO       `json:"enrollment"`
	Progress   []LessonProgressDTO `json:"progress"`
}

// LessonTimeRequest is the body of both lesson routes. A missing field
// counts as zero minutes.
type LessonTimeRequest struct {
	TimeSpentMinutes int `json:"time_spent_minutes"`
}

type CompleteLessonResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	ProgressPercentage int    `json:"progress_percentage"`
	CourseCompleted    bool   `json:"course_completed"`
	PointsEarned       *int64 `json:"points_earned,omitempty"`
	PointsBalance      *int64 `json:"points_balance,omitempty"`
}

// =============================================================================
// POINTS
// =============================================================================

type PointsResponse struct {
	Success bool  `json:"success"`
	Points  int64 `json:"points"`
}

type TransactionDTO struct {
	ID          string    `json:"id"`
	Amount      int64     `json:"amount"`
	Kind        string    `json:"transaction_type"`
	Description string    `json:"description"`
	ReferenceID *int64    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaginationDTO struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type TransactionsResponse struct {
	Success      bool             `json:"success"`
	Transactions []TransactionDTO `json:"transactions"`
	Pagination   PaginationDTO    `json:"pagination"`
}

// BonusRequest is the admin grant body.
type BonusRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// =============================================================================
// CATALOG
// =============================================================================

type LessonDTO struct {
	ID              int64  `json:"id"`
	CourseID        int64  `json:"course_id"`
	Title           string `json:"title"`
	LessonOrder     int    `json:"lesson_order"`
	DurationMinutes int    `json:"duration_minutes"`
	VideoURL        string `json:"video_url,omitempty"`
}

type CourseDTO struct {
	ID              int64       `json:"id"`
	InstructorID    int64       `json:"instructor_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	DifficultyLevel string      `json:"difficulty_level"`
	Thumbnail       string      `json:"thumbnail,omitempty"`
	IsPublished     bool        `json:"is_published"`
	PointsCost      int64       `json:"points_cost"`
	PointsReward    int64       `json:"points_reward"`
	Lessons         []LessonDTO `json:"lessons,omitempty"`
}

type PublishRequest struct {
	IsPublished bool `json:"is_published"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// DemoUserDTO pairs a seeded account with a ready-to-use bearer token.
type DemoUserDTO struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Points int64  `json:"points"`
	Token  string `json:"token"`
}

type LoadScenarioResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Scenario string        `json:"scenario"`
	Users    []DemoUserDTO `json:"users"`
	Courses  []CourseDTO   `json:"courses"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEnrollmentDTO(e ledger.Enrollment) EnrollmentDTO {
	return EnrollmentDTO{
		ID:                 string(e.ID),
		UserID:             int64(e.UserID),
		CourseID:           int64(e.CourseID),
		EnrolledAt:         e.EnrolledAt,
		ProgressPercentage: e.ProgressPercentage,
		CompletedAt:        e.CompletedAt,
	}
}

func toEnrolledCourseDTOs(rows []ledger.EnrolledCourse) []EnrolledCourseDTO {
	out := make([]EnrolledCourseDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, EnrolledCourseDTO{
			EnrollmentDTO:    toEnrollmentDTO(r.Enrollment),
			Title:            r.Title,
			Description:      r.Description,
			Thumbnail:        r.Thumbnail,
			DifficultyLevel:  r.DifficultyLevel,
			PointsCost:       int64(r.PointsCost),
			PointsReward:     int64(r.PointsReward),
			TotalLessons:     r.TotalLessons,
			CompletedLessons: r.CompletedLessons,
		})
	}
	return out
}

func toLessonProgressDTOs(rows []ledger.LessonProgress) []LessonProgressDTO {
	out := make([]LessonProgressDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, LessonProgressDTO{
			ID:               string(r.ID),
			LessonID:         int64(r.LessonID),
			Title:            r.LessonTitle,
			LessonOrder:      r.LessonOrder,
			DurationMinutes:  r.DurationMinutes,
			IsCompleted:      r.IsCompleted,
			CompletedAt:      r.CompletedAt,
			TimeSpentMinutes: r.TimeSpentMinutes,
			LastAccessedAt:   r.LastAccessedAt,
		})
	}
	return out
}

func toTransactionsResponse(p *learning.TransactionPage) TransactionsResponse {
	txs := make([]TransactionDTO, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		dto := TransactionDTO{
			ID:          string(tx.ID),
			Amount:      int64(tx.Amount),
			Kind:        string(tx.Kind),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		}
		if tx.ReferenceID != nil {
			ref := int64(*tx.ReferenceID)
			dto.ReferenceID = &ref
		}
		txs = append(txs, dto)
	}
	return TransactionsResponse{
		Success:      true,
		Transactions: txs,
		Pagination:   PaginationDTO{Page: p.Page, Limit: p.Limit, Total: p.Total, Pages: p.Pages},
	}
}

func toCourseDTO(c ledger.Course, lessons []ledger.Lesson) CourseDTO {
	dto := CourseDTO{
		ID:              int64(c.ID),
		InstructorID:    int64(c.InstructorID),
		Title:           c.Title,
		Description:     c.Description,
		DifficultyLevel: c.DifficultyLevel,
		Thumbnail:       c.Thumbnail,
		IsPublished:     c.IsPublished,
		PointsCost:      int64(c.PointsCost),
		PointsReward:    int64(c.PointsReward),
	}
	for _, l := range lessons {
		dto.Lessons = append(dto.Lessons, toLessonDTO(l))
	}
	return dto
}

func toLessonDTO(l ledger.Lesson) LessonDTO {
	return LessonDTO{
		ID:              int64(l.ID),
		CourseID:        int64(l.CourseID),
		Title:           l.Title,
		LessonOrder:     l.Order,
		DurationMinutes: l.DurationMinutes,
		VideoURL:        l.VideoURL,
	}
}
