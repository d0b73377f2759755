package progress

import (
	"math"

	"github.com/studytrack/backend/internal/models"
)

const (
	// Share of a subject's overall figure that comes from the study modes;
	// the rest comes from recorded test scores.
	modesShare = 0.8
	testsShare = 0.2
)

// SubjectProgress is the derived state of a subject.
type SubjectProgress struct {
	models.Progress
	FoundationLevel models.FoundationLevel `json:"foundation_level"`
	ExpectedMarks   int                    `json:"expected_marks"`
	TestAverage     float64                `json:"test_average"`
}

// CalculateChapterProgress averages the topics' per-mode percentages.
func CalculateChapterProgress(topics []models.Topic) models.Progress {
	if len(topics) == 0 {
		return models.Progress{}
	}

	var p models.Progress
	for _, t := range topics {
		tp := CalculateTopicProgress(t)
		p.Learning += tp.Learning
		p.Revision += tp.Revision
		p.Practice += tp.Practice
		p.Test += tp.Test
	}

	n := float64(len(topics))
	p.Learning = round1(clamp(p.Learning / n))
	p.Revision = round1(clamp(p.Revision / n))
	p.Practice = round1(clamp(p.Practice / n))
	p.Test = round1(clamp(p.Test / n))
	p.Overall = round1(mean(p.Learning, p.Revision, p.Practice, p.Test))
	return p
}

// CalculateSubjectProgress weighs every chapter equally regardless of how
// many topics it holds, then blends in the average test score.
func CalculateSubjectProgress(s models.Subject) SubjectProgress {
	testAvg := TestAverage(s.Tests)
	result := SubjectProgress{
		FoundationLevel: models.FoundationBeginner,
		ExpectedMarks:   ExpectedMarks(s.Weightage, testAvg),
		TestAverage:     round1(testAvg),
	}
	if len(s.Chapters) == 0 {
		return result
	}

	var p models.Progress
	for _, ch := range s.Chapters {
		cp := CalculateChapterProgress(ch.Topics)
		p.Learning += cp.Learning
		p.Revision += cp.Revision
		p.Practice += cp.Practice
		p.Test += cp.Test
	}

	n := float64(len(s.Chapters))
	p.Learning = round1(clamp(p.Learning / n))
	p.Revision = round1(clamp(p.Revision / n))
	p.Practice = round1(clamp(p.Practice / n))
	p.Test = round1(clamp(p.Test / n))

	modes := mean(p.Learning, p.Revision, p.Practice, p.Test) * modesShare
	tests := testAvg * testsShare
	p.Overall = round1(math.Min(100, modes+tests))

	result.Progress = p
	result.FoundationLevel = CalculateFoundationLevel(p)
	return result
}

// CalculateFoundationLevel classifies a subject with its own weighting,
// independent of the overall formula above.
func CalculateFoundationLevel(p models.Progress) models.FoundationLevel {
	weighted := p.Learning*0.4 + p.Revision*0.2 + p.Practice*0.2 + p.Test*0.2
	switch {
	case weighted >= 80:
		return models.FoundationAdvanced
	case weighted >= 50:
		return models.FoundationModerate
	default:
		return models.FoundationBeginner
	}
}

// TestAverage is the mean score of the recorded tests, 0 with none.
func TestAverage(tests []models.Test) float64 {
	if len(tests) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tests {
		sum += t.Score()
	}
	return clamp(sum / float64(len(tests)))
}

// ExpectedMarks projects the subject's exam marks from its test average.
func ExpectedMarks(weightage, testAverage float64) int {
	return int(math.Round(weightage * testAverage / 100))
}
