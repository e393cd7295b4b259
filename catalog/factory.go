/*
Package catalog provides JSON to Go course conversion.

PURPOSE:
  Converts JSON course definitions into ledger.Course and ledger.Lesson
  records. Instructors and demo scenarios describe a course once, and the
  factory fills in point defaults from the difficulty level.

JSON SCHEMA:
  {
    "title": "Intro to Go",
    "description": "Types, slices and goroutines",
    "difficulty_level": "beginner",
    "thumbnail": "/uploads/thumbnails/go.png",
    "points_cost": 50,          // optional, defaults by difficulty
    "points_reward": 75,        // optional, defaults by difficulty
    "is_published": true,
    "lessons": [
      {"title": "Hello", "duration_minutes": 10, "video_url": "/uploads/videos/1.mp4"}
    ]
  }

DIFFICULTY DEFAULTS:
  beginner:     cost 50,  reward 75
  intermediate: cost 100, reward 150
  advanced:     cost 200, reward 300
  Unknown levels fall back to beginner.

USAGE:
  factory := catalog.NewFactory()
  course, lessons, err := factory.ParseCourse(jsonString)
  err = catalog.Install(ctx, store, course, lessons)

SEE ALSO:
  - ledger/types.go: Course and Lesson
  - api/instructor.go: HTTP routes that use the factory
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CourseJSON is the JSON representation of a course.
type CourseJSON struct {
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	DifficultyLevel string       `json:"difficulty_level,omitempty"`
	Thumbnail       string       `json:"thumbnail,omitempty"`
	PointsCost      *int64       `json:"points_cost,omitempty"`
	PointsReward    *int64       `json:"points_reward,omitempty"`
	IsPublished     bool         `json:"is_published,omitempty"`
	Lessons         []LessonJSON `json:"lessons,omitempty"`
}

// LessonJSON is the JSON representation of a lesson. Order defaults to the
// lesson's position in the list.
type LessonJSON struct {
	Title           string `json:"title"`
	Order           int    `json:"lesson_order,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	VideoURL        string `json:"video_url,omitempty"`
}

// Difficulty levels.
const (
	Beginner     = "beginner"
	Intermediate = "intermediate"
	Advanced     = "advanced"
)

// PointDefaults are the cost and reward used when a definition omits them.
type PointDefaults struct {
	Cost   ledger.Points
	Reward ledger.Points
}

var difficultyDefaults = map[string]PointDefaults{
	Beginner:     {Cost: 50, Reward: 75},
	Intermediate: {Cost: 100, Reward: 150},
	Advanced:     {Cost: 200, Reward: 300},
}

// DefaultsFor returns the point defaults for a difficulty level.
func DefaultsFor(level string) PointDefaults {
	if d, ok := difficultyDefaults[strings.ToLower(level)]; ok {
		return d
	}
	return difficultyDefaults[Beginner]
}

// =============================================================================
// COURSE FACTORY
// =============================================================================

// Factory converts JSON courses to ledger records.
type Factory struct{}

// NewFactory creates a new course factory.
func NewFactory() *Factory {
	return &Factory{}
}

// ParseCourse parses a JSON string into a course and its lessons.
func (f *Factory) ParseCourse(jsonStr string) (*ledger.Course, []ledger.Lesson, error) {
	var cj CourseJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, nil, fmt.Errorf("failed to parse course JSON: %w", ledger.ErrInvalidArgument)
	}
	return f.FromJSON(cj)
}

// FromJSON validates cj and applies defaults.
func (f *Factory) FromJSON(cj CourseJSON) (*ledger.Course, []ledger.Lesson, error) {
	title := strings.TrimSpace(cj.Title)
	if title == "" {
		return nil, nil, fmt.Errorf("course title is required: %w", ledger.ErrInvalidArgument)
	}

	level := strings.ToLower(strings.TrimSpace(cj.DifficultyLevel))
	if level == "" {
		level = Beginner
	}
	if _, ok := difficultyDefaults[level]; !ok {
		return nil, nil, fmt.Errorf("unknown difficulty level %q: %w", cj.DifficultyLevel, ledger.ErrInvalidArgument)
	}
	defaults := DefaultsFor(level)

	course := &ledger.Course{
		Title:           title,
		Description:     cj.Description,
		DifficultyLevel: level,
		Thumbnail:       cj.Thumbnail,
		IsPublished:     cj.IsPublished,
		PointsCost:      defaults.Cost,
		PointsReward:    defaults.Reward,
	}
	if cj.PointsCost != nil {
		if *cj.PointsCost < 0 {
			return nil, nil, fmt.Errorf("points_cost must not be negative: %w", ledger.ErrInvalidArgument)
		}
		course.PointsCost = ledger.Points(*cj.PointsCost)
	}
	if cj.PointsReward != nil {
		if *cj.PointsReward < 0 {
			return nil, nil, fmt.Errorf("points_reward must not be negative: %w", ledger.ErrInvalidArgument)
		}
		course.PointsReward = ledger.Points(*cj.PointsReward)
	}

	lessons := make([]ledger.Lesson, 0, len(cj.Lessons))
	for i, lj := range cj.Lessons {
		lesson, err := f.LessonFromJSON(lj, i+1)
		if err != nil {
			return nil, nil, fmt.Errorf("lesson %d: %w", i+1, err)
		}
		lessons = append(lessons, lesson)
	}

	return course, lessons, nil
}

// LessonFromJSON validates one lesson. position is used when Order is unset.
func (f *Factory) LessonFromJSON(lj LessonJSON, position int) (ledger.Lesson, error) {
	title := strings.TrimSpace(lj.Title)
	if title == "" {
		return ledger.Lesson{}, fmt.Errorf("lesson title is required: %w", ledger.ErrInvalidArgument)
	}
	if lj.DurationMinutes < 0 {
		return ledger.Lesson{}, fmt.Errorf("duration must not be negative: %w", ledger.ErrInvalidArgument)
	}

	order := lj.Order
	if order <= 0 {
		order = position
	}
	return ledger.Lesson{
		Title:           title,
		Order:           order,
		DurationMinutes: lj.DurationMinutes,
		VideoURL:        lj.VideoURL,
	}, nil
}

// =============================================================================
// INSTALLATION
// =============================================================================

// Install writes course and lessons in one unit and assigns their IDs.
func Install(ctx context.Context, store ledger.TxStore, course *ledger.Course, lessons []ledger.Lesson) error {
	return store.WithTx(ctx, func(s ledger.Store) error {
		w, ok := s.(ledger.CatalogWriter)
		if !ok {
			return ledger.ErrStoreRequired
		}
		if err := w.CreateCourse(ctx, course); err != nil {
			return err
		}
		for i := range lessons {
			lessons[i].CourseID = course.ID
			if err := w.CreateLesson(ctx, &lessons[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddLesson appends a lesson to an existing course. Learners already enrolled
// receive a progress row lazily or on the next sweep.
func AddLesson(ctx context.Context, store ledger.TxStore, lesson *ledger.Lesson) error {
	return store.WithTx(ctx, func(s ledger.Store) error {
		w, ok := s.(ledger.CatalogWriter)
		if !ok {
			return ledger.ErrStoreRequired
		}
		if lesson.Order <= 0 {
			existing, err := s.LessonsForCourse(ctx, lesson.CourseID)
			if err != nil {
				return err
			}
			lesson.Order = len(existing) + 1
		}
		return w.CreateLesson(ctx, lesson)
	})
}
