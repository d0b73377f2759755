package progress

import "github.com/studytrack/backend/internal/models"

// subjectWeight falls back to 1 for subjects without a weightage.
func subjectWeight(s models.Subject) float64 {
	if s.Weightage > 0 {
		return s.Weightage
	}
	return 1
}

// weightedProgress computes each subject's progress and the
// weightage-weighted average of every figure.
func weightedProgress(subjects []models.Subject) (models.Progress, []SubjectProgress) {
	computed := make([]SubjectProgress, len(subjects))
	var sum models.Progress
	var totalWeight float64

	for i, s := range subjects {
		sp := CalculateSubjectProgress(s)
		computed[i] = sp
		w := subjectWeight(s)
		totalWeight += w
		sum.Overall += sp.Overall * w
		sum.Learning += sp.Learning * w
		sum.Revision += sp.Revision * w
		sum.Practice += sp.Practice * w
		sum.Test += sp.Test * w
	}

	if totalWeight == 0 {
		return models.Progress{}, computed
	}

	return models.Progress{
		Overall:  round1(clamp(sum.Overall / totalWeight)),
		Learning: round1(clamp(sum.Learning / totalWeight)),
		Revision: round1(clamp(sum.Revision / totalWeight)),
		Practice: round1(clamp(sum.Practice / totalWeight)),
		Test:     round1(clamp(sum.Test / totalWeight)),
	}, computed
}

// CalculateDashboardProgress aggregates all subjects of a user. Subjects
// contribute in proportion to their weightage.
func CalculateDashboardProgress(subjects []models.Subject) models.DashboardProgress {
	var result models.DashboardProgress
	if len(subjects) == 0 {
		return result
	}

	p, computed := weightedProgress(subjects)
	result.Progress = p

	result.Stats.Subjects.Total = len(subjects)
	for i, s := range subjects {
		if computed[i].Overall >= 100 {
			result.Stats.Subjects.Completed++
		}
		for _, ch := range s.Chapters {
			for _, t := range ch.Topics {
				result.Stats.Topics.Total++
				if IsTopicFullyComplete(t) {
					result.Stats.Topics.Completed++
				}
			}
		}
	}
	return result
}
