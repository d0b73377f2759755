package progress

import "github.com/studytrack/backend/internal/models"

// strengthMargin is how far a mode must sit above (or below) the overall
// figure to count as a strength (or weakness).
const strengthMargin = 10

// Requirements are the per-mode targets a foundation level expects.
type Requirements struct {
	Learning float64 `json:"learning"`
	Revision float64 `json:"revision"`
	Practice float64 `json:"practice"`
	Test     float64 `json:"test"`
}

func (r Requirements) get(c models.Category) float64 {
	switch c {
	case models.CategoryLearning:
		return r.Learning
	case models.CategoryRevision:
		return r.Revision
	case models.CategoryPractice:
		return r.Practice
	case models.CategoryTest:
		return r.Test
	}
	return 0
}

type Level struct {
	Level        int          `json:"level"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	MinProgress  float64      `json:"min_progress"`
	Requirements Requirements `json:"requirements"`
}

// ExamFoundationLevels are ordered by ascending MinProgress.
var ExamFoundationLevels = []Level{
	{1, "Absolute Beginner", "Syllabus mapped, study not yet underway", 0, Requirements{0, 0, 0, 0}},
	{2, "Getting Started", "First topics learned", 10, Requirements{20, 0, 5, 0}},
	{3, "Building Basics", "Core topics being covered", 20, Requirements{35, 10, 10, 5}},
	{4, "Developing", "Regular practice alongside learning", 30, Requirements{50, 15, 20, 10}},
	{5, "Intermediate", "Half the syllabus learned", 40, Requirements{60, 25, 30, 20}},
	{6, "Competent", "Revision cycles established", 50, Requirements{70, 35, 40, 30}},
	{7, "Proficient", "Most topics practised and tested", 60, Requirements{80, 45, 50, 40}},
	{8, "Advanced", "Syllabus covered with repeated revision", 70, Requirements{90, 60, 60, 55}},
	{9, "Expert", "Consistent test performance", 80, Requirements{95, 75, 75, 70}},
	{10, "Exam Ready", "Every mode near completion", 90, Requirements{100, 90, 90, 85}},
}

type ExamFoundation struct {
	CurrentLevel        Level             `json:"current_level"`
	NextLevel           *Level            `json:"next_level,omitempty"`
	OverallProgress     float64           `json:"overall_progress"`
	ProgressToNextLevel float64           `json:"progress_to_next_level"`
	CategoryProgress    models.Progress   `json:"category_progress"`
	Strengths           []models.Category `json:"strengths"`
	Weaknesses          []models.Category `json:"weaknesses"`
	// Modes still below the next level's requirements.
	UnmetRequirements []models.Category `json:"unmet_requirements"`
}

// CalculateExamFoundation places the user on the ten-tier ladder using the
// weightage-weighted progress across subjects.
func CalculateExamFoundation(subjects []models.Subject) ExamFoundation {
	p, _ := weightedProgress(subjects)
	overall := p.Overall

	currentIdx := 0
	for i, lvl := range ExamFoundationLevels {
		if lvl.MinProgress <= overall {
			currentIdx = i
		}
	}

	result := ExamFoundation{
		CurrentLevel:      ExamFoundationLevels[currentIdx],
		OverallProgress:   overall,
		CategoryProgress:  p,
		Strengths:         []models.Category{},
		Weaknesses:        []models.Category{},
		UnmetRequirements: []models.Category{},
	}

	if currentIdx == len(ExamFoundationLevels)-1 {
		result.ProgressToNextLevel = 100
	} else {
		next := ExamFoundationLevels[currentIdx+1]
		result.NextLevel = &next
		span := next.MinProgress - result.CurrentLevel.MinProgress
		if span > 0 {
			result.ProgressToNextLevel = round1(clamp((overall - result.CurrentLevel.MinProgress) / span * 100))
		}
		for _, c := range models.Categories {
			if p.Get(c) < next.Requirements.get(c) {
				result.UnmetRequirements = append(result.UnmetRequirements, c)
			}
		}
	}

	for _, c := range models.Categories {
		v := p.Get(c)
		switch {
		case v >= overall+strengthMargin:
			result.Strengths = append(result.Strengths, c)
		case v <= overall-strengthMargin:
			result.Weaknesses = append(result.Weaknesses, c)
		}
	}

	return result
}
