// Package recommend ranks subjects into Revise, Priority Focus and Start
// Next buckets using a linear weighted score.
package recommend

import (
	"math"
	"time"

	"github.com/studytrack/backend/internal/models"
	"github.com/studytrack/backend/internal/progress"
)

type Type string

const (
	TypeRevise   Type = "revise"
	TypePriority Type = "priority"
	TypeStart    Type = "start"
)

type Weights struct {
	Gate       float64 `json:"gate" mapstructure:"gate"`
	Progress   float64 `json:"progress" mapstructure:"progress"`
	Foundation float64 `json:"foundation" mapstructure:"foundation"`
	Time       float64 `json:"time" mapstructure:"time"`
}

type Config struct {
	Weights                Weights `json:"weights" mapstructure:"weights"`
	RevisionThreshold      float64 `json:"revision_threshold" mapstructure:"revision_threshold"`
	MaxSubjectsPerCategory int     `json:"max_subjects_per_category" mapstructure:"max_subjects_per_category"`
}

func DefaultConfig() Config {
	return Config{
		Weights:                Weights{Gate: 0.4, Progress: 0.3, Foundation: 0.2, Time: 0.1},
		RevisionThreshold:      40,
		MaxSubjectsPerCategory: 2,
	}
}

// Candidate is the snapshot of a subject the scorer works from.
type Candidate struct {
	SubjectID        int64                  `json:"subject_id"`
	Name             string                 `json:"name"`
	Weightage        float64                `json:"weightage"`
	LearningProgress float64                `json:"learning_progress"`
	RevisionProgress float64                `json:"revision_progress"`
	FoundationLevel  models.FoundationLevel `json:"foundation_level"`
}

// CandidateFromSubject derives a candidate from the subject's topics.
func CandidateFromSubject(s models.Subject) Candidate {
	sp := progress.CalculateSubjectProgress(s)
	return Candidate{
		SubjectID:        s.ID,
		Name:             s.Name,
		Weightage:        s.Weightage,
		LearningProgress: sp.Learning,
		RevisionProgress: sp.Revision,
		FoundationLevel:  sp.FoundationLevel,
	}
}

// FoundationMultiplier is higher for less prepared subjects.
func FoundationMultiplier(level models.FoundationLevel) float64 {
	switch level {
	case models.FoundationAdvanced:
		return 0.4
	case models.FoundationModerate:
		return 0.7
	default:
		return 1.0
	}
}

// TimeUrgency stays near-flat with more than 60 days left and climbs
// exponentially as the exam approaches, capped at 100.
func TimeUrgency(daysLeft int) float64 {
	return math.Min(100, math.Exp(float64(60-daysLeft)/20)*20)
}

// Score computes the weighted score of a candidate for one bucket.
func Score(c Candidate, t Type, daysLeft int, w Weights) float64 {
	foundation := FoundationMultiplier(c.FoundationLevel) * w.Foundation
	urgency := TimeUrgency(daysLeft) * w.Time

	switch t {
	case TypeRevise:
		return c.Weightage*w.Gate + (100-c.RevisionProgress)*w.Progress + foundation + urgency
	case TypePriority:
		return c.Weightage*w.Gate + c.LearningProgress*w.Progress + foundation + urgency
	case TypeStart:
		return c.Weightage*(w.Gate+w.Progress) + foundation + urgency
	}
	return 0
}

// Eligible applies the bucket filters.
func Eligible(c Candidate, t Type, cfg Config) bool {
	switch t {
	case TypeRevise:
		return c.LearningProgress >= cfg.RevisionThreshold
	case TypePriority:
		return c.LearningProgress > 0 && c.LearningProgress < 100
	case TypeStart:
		return c.LearningProgress == 0
	}
	return false
}

// DaysUntil counts whole days left before the exam, never negative.
func DaysUntil(exam, now time.Time) int {
	if exam.IsZero() || !exam.After(now) {
		return 0
	}
	return int(math.Ceil(exam.Sub(now).Hours() / 24))
}
