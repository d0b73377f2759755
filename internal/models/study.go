package models

import (
	"fmt"
	"time"
)

// MaxCategoryCount is the number of checkboxes per countable category.
const MaxCategoryCount = 3

// Category is one of the four study modes tracked per topic.
type Category string

const (
	CategoryLearning Category = "learning"
	CategoryRevision Category = "revision"
	CategoryPractice Category = "practice"
	CategoryTest     Category = "test"
)

// Categories lists the study modes in display order.
var Categories = []Category{CategoryLearning, CategoryRevision, CategoryPractice, CategoryTest}

// ParseCategory validates a category name coming from a request.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryLearning, CategoryRevision, CategoryPractice, CategoryTest:
		return Category(s), nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

type FoundationLevel string

const (
	FoundationBeginner FoundationLevel = "Beginner"
	FoundationModerate FoundationLevel = "Moderate"
	FoundationAdvanced FoundationLevel = "Advanced"
)

// ── Study Tree ────────────────────────────────────────────

type Topic struct {
	ID             int64      `json:"id"`
	ChapterID      int64      `json:"chapter_id"`
	Name           string     `json:"name"`
	Important      bool       `json:"important"`
	LearningStatus bool       `json:"learning_status"`
	RevisionCount  int        `json:"revision_count"`
	PracticeCount  int        `json:"practice_count"`
	TestCount      int        `json:"test_count"`
	Position       int        `json:"position"`
	LastRevised    *time.Time `json:"last_revised,omitempty"`
	NextRevision   *time.Time `json:"next_revision,omitempty"`
}

// Progress holds the four per-mode percentages plus the overall figure.
type Progress struct {
	Learning float64 `json:"learning"`
	Revision float64 `json:"revision"`
	Practice float64 `json:"practice"`
	Test     float64 `json:"test"`
	Overall  float64 `json:"overall"`
}

// Get returns the percentage for one category.
func (p Progress) Get(c Category) float64 {
	switch c {
	case CategoryLearning:
		return p.Learning
	case CategoryRevision:
		return p.Revision
	case CategoryPractice:
		return p.Practice
	case CategoryTest:
		return p.Test
	}
	return 0
}

type Chapter struct {
	ID        int64   `json:"id"`
	SubjectID int64   `json:"subject_id"`
	Name      string  `json:"name"`
	Important bool    `json:"important"`
	Position  int     `json:"position"`
	Topics    []Topic `json:"topics"`

	// Cached, recomputed whenever a topic mutates.
	Progress Progress `json:"progress"`
}

type Test struct {
	ID          int64     `json:"id"`
	SubjectID   int64     `json:"subject_id"`
	Name        string    `json:"name"`
	MarksScored float64   `json:"marks_scored"`
	TotalMarks  float64   `json:"total_marks"`
	TakenAt     time.Time `json:"taken_at"`
}

// Score is the test result as a percentage.
func (t Test) Score() float64 {
	if t.TotalMarks <= 0 {
		return 0
	}
	return t.MarksScored / t.TotalMarks * 100
}

type Subject struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Weightage float64   `json:"weightage"`
	Position  int       `json:"position"`
	Chapters  []Chapter `json:"chapters"`
	Tests     []Test    `json:"tests"`

	Progress        Progress        `json:"progress"`
	FoundationLevel FoundationLevel `json:"foundation_level"`
	ExpectedMarks   int             `json:"expected_marks"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ── API Request/Response Types ────────────────────────────

type CreateSubjectRequest struct {
	Name      string  `json:"name"`
	Weightage float64 `json:"weightage"`
}

type CreateChapterRequest struct {
	Name      string `json:"name"`
	Important bool   `json:"important"`
}

type CreateTopicRequest struct {
	Name      string `json:"name"`
	Important bool   `json:"important"`
}

type CreateTestRequest struct {
	Name        string  `json:"name"`
	MarksScored float64 `json:"marks_scored"`
	TotalMarks  float64 `json:"total_marks"`
}

// ToggleTopicRequest sets one category of a topic. For learning, Value is
// 0 or 1; for the countable categories it is the checkbox count (0-3).
type ToggleTopicRequest struct {
	Category string `json:"category"`
	Value    int    `json:"value"`
}

type ToggleTopicResponse struct {
	Topic   Topic    `json:"topic"`
	Chapter Progress `json:"chapter_progress"`
	Subject Progress `json:"subject_progress"`
}

type CategoryStats struct {
	TotalTopics     int     `json:"total_topics"`
	CompletedTopics int     `json:"completed_topics"`
	Percentage      float64 `json:"percentage"`
}

type DashboardStats struct {
	Subjects struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
	} `json:"subjects"`
	Topics struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
	} `json:"topics"`
}

type DashboardProgress struct {
	Progress
	Stats DashboardStats `json:"stats"`
}
