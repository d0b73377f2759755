package subjects

import (
	"errors"
	"fmt"
	"time"

	"github.com/studytrack/backend/internal/models"
)

var ErrInvalidToggle = errors.New("invalid topic toggle")

// revisionIntervals[n-1] is the wait before the next revision after the
// nth one.
var revisionIntervals = [models.MaxCategoryCount]int{1, 3, 7}

func validCount(v int) bool {
	return v >= 0 && v <= models.MaxCategoryCount
}

// ApplyToggle sets one category of the topic. Learning takes 0 or 1; the
// countable categories take a checkbox count from 0 to 3. The topic is left
// untouched on error.
func ApplyToggle(t *models.Topic, c models.Category, value int, now time.Time) error {
	switch c {
	case models.CategoryLearning:
		if value != 0 && value != 1 {
			return fmt.Errorf("%w: learning must be 0 or 1", ErrInvalidToggle)
		}
		t.LearningStatus = value == 1

	case models.CategoryRevision:
		if !validCount(value) {
			return fmt.Errorf("%w: revision count must be 0-%d", ErrInvalidToggle, models.MaxCategoryCount)
		}
		t.RevisionCount = value
		if value == 0 {
			t.LastRevised = nil
			t.NextRevision = nil
			break
		}
		revised := now
		next := now.AddDate(0, 0, revisionIntervals[value-1])
		t.LastRevised = &revised
		t.NextRevision = &next

	case models.CategoryPractice:
		if !validCount(value) {
			return fmt.Errorf("%w: practice count must be 0-%d", ErrInvalidToggle, models.MaxCategoryCount)
		}
		t.PracticeCount = value

	case models.CategoryTest:
		if !validCount(value) {
			return fmt.Errorf("%w: test count must be 0-%d", ErrInvalidToggle, models.MaxCategoryCount)
		}
		t.TestCount = value

	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidToggle, c)
	}
	return nil
}
