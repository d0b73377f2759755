// Package subjects owns the study tree (subjects, chapters, topics, tests)
// and keeps the cached progress columns current after every mutation.
package subjects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/models"
	"github.com/studytrack/backend/internal/progress"
	"github.com/studytrack/backend/internal/recommend"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

type Repository interface {
	ListSubjects(ctx context.Context, userID int64) ([]models.Subject, error)
	GetSubject(ctx context.Context, userID, subjectID int64) (*models.Subject, error)
	CreateSubject(ctx context.Context, userID int64, req models.CreateSubjectRequest) (*models.Subject, error)
	CreateChapter(ctx context.Context, userID, subjectID int64, req models.CreateChapterRequest) (*models.Chapter, error)
	CreateTopic(ctx context.Context, userID, chapterID int64, req models.CreateTopicRequest) (*models.Topic, int64, error)
	CreateTest(ctx context.Context, userID, subjectID int64, req models.CreateTestRequest) (*models.Test, error)
	GetTopic(ctx context.Context, userID, topicID int64) (*models.Topic, int64, error)
	UpdateTopic(ctx context.Context, t *models.Topic) error
	SaveChapterProgress(ctx context.Context, chapterID int64, p models.Progress) error
	SaveSubjectProgress(ctx context.Context, subjectID int64, sp progress.SubjectProgress) error
}

type Service struct {
	store  Repository
	scorer *recommend.Scorer
	log    *zap.Logger
	now    func() time.Time
}

func NewService(store Repository, scorer *recommend.Scorer, log *zap.Logger) *Service {
	return &Service{store: store, scorer: scorer, log: log, now: time.Now}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

// List returns the user's subjects with progress derived from the topics.
func (s *Service) List(ctx context.Context, userID int64) ([]models.Subject, error) {
	subjects, err := s.store.ListSubjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range subjects {
		derive(&subjects[i])
	}
	return subjects, nil
}

// derive fills the chapter and subject progress fields in place.
func derive(sub *models.Subject) progress.SubjectProgress {
	for i := range sub.Chapters {
		sub.Chapters[i].Progress = progress.CalculateChapterProgress(sub.Chapters[i].Topics)
	}
	sp := progress.CalculateSubjectProgress(*sub)
	sub.Progress = sp.Progress
	sub.FoundationLevel = sp.FoundationLevel
	sub.ExpectedMarks = sp.ExpectedMarks
	return sp
}

func (s *Service) CreateSubject(ctx context.Context, userID int64, req models.CreateSubjectRequest) (*models.Subject, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid("name is required")
	}
	if req.Weightage < 0 {
		return nil, invalid("weightage must not be negative")
	}
	sub, err := s.store.CreateSubject(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return sub, nil
}

func (s *Service) CreateChapter(ctx context.Context, userID, subjectID int64, req models.CreateChapterRequest) (*models.Chapter, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid("name is required")
	}
	ch, err := s.store.CreateChapter(ctx, userID, subjectID, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.recompute(ctx, userID, subjectID); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Service) CreateTopic(ctx context.Context, userID, chapterID int64, req models.CreateTopicRequest) (*models.Topic, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid("name is required")
	}
	t, subjectID, err := s.store.CreateTopic(ctx, userID, chapterID, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.recompute(ctx, userID, subjectID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) CreateTest(ctx context.Context, userID, subjectID int64, req models.CreateTestRequest) (*models.Test, error) {
	if req.TotalMarks <= 0 {
		return nil, invalid("total_marks must be positive")
	}
	if req.MarksScored < 0 || req.MarksScored > req.TotalMarks {
		return nil, invalid("marks_scored must be between 0 and total_marks")
	}
	t, err := s.store.CreateTest(ctx, userID, subjectID, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.recompute(ctx, userID, subjectID); err != nil {
		return nil, err
	}
	return t, nil
}

// ToggleTopic applies one category change and returns the topic with the
// recomputed chapter and subject progress.
func (s *Service) ToggleTopic(ctx context.Context, userID, topicID int64, req models.ToggleTopicRequest) (*models.ToggleTopicResponse, error) {
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToggle, err)
	}

	t, subjectID, err := s.store.GetTopic(ctx, userID, topicID)
	if err != nil {
		return nil, err
	}
	if err := ApplyToggle(t, category, req.Value, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTopic(ctx, t); err != nil {
		return nil, err
	}

	sub, err := s.recompute(ctx, userID, subjectID)
	if err != nil {
		return nil, err
	}

	resp := &models.ToggleTopicResponse{Topic: *t, Subject: sub.Progress}
	for _, ch := range sub.Chapters {
		if ch.ID == t.ChapterID {
			resp.Chapter = ch.Progress
			break
		}
	}
	return resp, nil
}

// recompute reloads the subject, persists fresh chapter and subject
// progress and drops cached recommendations.
func (s *Service) recompute(ctx context.Context, userID, subjectID int64) (*models.Subject, error) {
	sub, err := s.store.GetSubject(ctx, userID, subjectID)
	if err != nil {
		return nil, err
	}
	sp := derive(sub)

	for _, ch := range sub.Chapters {
		if err := s.store.SaveChapterProgress(ctx, ch.ID, ch.Progress); err != nil {
			return nil, err
		}
	}
	if err := s.store.SaveSubjectProgress(ctx, sub.ID, sp); err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	return sub, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.scorer != nil {
		s.scorer.Invalidate(ctx)
	}
}

func (s *Service) Dashboard(ctx context.Context, userID int64) (models.DashboardProgress, error) {
	subjects, err := s.List(ctx, userID)
	if err != nil {
		return models.DashboardProgress{}, err
	}
	return progress.CalculateDashboardProgress(subjects), nil
}

func (s *Service) Foundation(ctx context.Context, userID int64) (progress.ExamFoundation, error) {
	subjects, err := s.List(ctx, userID)
	if err != nil {
		return progress.ExamFoundation{}, err
	}
	return progress.CalculateExamFoundation(subjects), nil
}

// Recommend scores the user's subjects for the given number of days left.
// It also returns the subjects so callers can build on the same snapshot.
func (s *Service) Recommend(ctx context.Context, userID int64, daysLeft int) (recommend.Result, []models.Subject, error) {
	subjects, err := s.List(ctx, userID)
	if err != nil {
		return recommend.Result{}, nil, err
	}
	candidates := make([]recommend.Candidate, 0, len(subjects))
	for _, sub := range subjects {
		candidates = append(candidates, recommend.CandidateFromSubject(sub))
	}
	return s.scorer.Recommend(ctx, candidates, daysLeft), subjects, nil
}
