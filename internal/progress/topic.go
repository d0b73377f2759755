// Package progress rolls topic checkbox counters up into chapter, subject,
// dashboard and exam-foundation percentages. Every function here is pure and
// degrades to zero values on empty input.
package progress

import (
	"math"

	"github.com/studytrack/backend/internal/models"
)

// CalculateTopicProgress converts a topic's counters into percentages.
// Learning is all-or-nothing; the other modes are count/3.
func CalculateTopicProgress(t models.Topic) models.Progress {
	p := models.Progress{
		Learning: CategoryProgress(t, models.CategoryLearning),
		Revision: CategoryProgress(t, models.CategoryRevision),
		Practice: CategoryProgress(t, models.CategoryPractice),
		Test:     CategoryProgress(t, models.CategoryTest),
	}
	p.Overall = round1(mean(p.Learning, p.Revision, p.Practice, p.Test))
	return p
}

// CategoryProgress returns a single mode's percentage for a topic.
func CategoryProgress(t models.Topic, c models.Category) float64 {
	switch c {
	case models.CategoryLearning:
		if t.LearningStatus {
			return 100
		}
		return 0
	case models.CategoryRevision:
		return countPercent(t.RevisionCount)
	case models.CategoryPractice:
		return countPercent(t.PracticeCount)
	case models.CategoryTest:
		return countPercent(t.TestCount)
	}
	return 0
}

// IsTopicComplete reports whether one mode of the topic is finished.
func IsTopicComplete(t models.Topic, c models.Category) bool {
	switch c {
	case models.CategoryLearning:
		return t.LearningStatus
	case models.CategoryRevision:
		return t.RevisionCount >= models.MaxCategoryCount
	case models.CategoryPractice:
		return t.PracticeCount >= models.MaxCategoryCount
	case models.CategoryTest:
		return t.TestCount >= models.MaxCategoryCount
	}
	return false
}

// IsTopicFullyComplete requires all four modes.
func IsTopicFullyComplete(t models.Topic) bool {
	for _, c := range models.Categories {
		if !IsTopicComplete(t, c) {
			return false
		}
	}
	return true
}

// CalculateProgressStats summarises one mode across a list of topics.
func CalculateProgressStats(topics []models.Topic, c models.Category) models.CategoryStats {
	if len(topics) == 0 {
		return models.CategoryStats{}
	}

	var sum float64
	completed := 0
	for _, t := range topics {
		sum += CategoryProgress(t, c)
		if IsTopicComplete(t, c) {
			completed++
		}
	}

	return models.CategoryStats{
		TotalTopics:     len(topics),
		CompletedTopics: completed,
		Percentage:      round1(clamp(sum / float64(len(topics)))),
	}
}

func countPercent(count int) float64 {
	return clamp(float64(count) / models.MaxCategoryCount * 100)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
