package subjects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/studytrack/backend/internal/models"
	"github.com/studytrack/backend/internal/progress"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Tree Loading ────────────────────────────────────────

// ListSubjects loads every subject of the user with chapters, topics and
// tests attached, in position order.
func (s *Store) ListSubjects(ctx context.Context, userID int64) ([]models.Subject, error) {
	return s.loadTrees(ctx,
		`SELECT id, user_id, name, weightage, position, created_at
		 FROM subjects WHERE user_id = $1 ORDER BY position, id`, userID)
}

func (s *Store) GetSubject(ctx context.Context, userID, subjectID int64) (*models.Subject, error) {
	subjects, err := s.loadTrees(ctx,
		`SELECT id, user_id, name, weightage, position, created_at
		 FROM subjects WHERE user_id = $1 AND id = $2`, userID, subjectID)
	if err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrNotFound
	}
	return &subjects[0], nil
}

func (s *Store) loadTrees(ctx context.Context, query string, args ...any) ([]models.Subject, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	subjects := []models.Subject{}
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var sub models.Subject
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Name, &sub.Weightage, &sub.Position, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		sub.Chapters = []models.Chapter{}
		sub.Tests = []models.Test{}
		index[sub.ID] = len(subjects)
		ids = append(ids, sub.ID)
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return subjects, nil
	}

	chapters, err := s.loadChapters(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, ch := range chapters {
		i := index[ch.SubjectID]
		subjects[i].Chapters = append(subjects[i].Chapters, ch)
	}

	tests, err := s.loadTests(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		i := index[t.SubjectID]
		subjects[i].Tests = append(subjects[i].Tests, t)
	}
	return subjects, nil
}

func (s *Store) loadChapters(ctx context.Context, subjectIDs []int64) ([]models.Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, name, important, position,
		        learning_progress, revision_progress, practice_progress, test_progress, overall_progress
		 FROM chapters WHERE subject_id = ANY($1) ORDER BY subject_id, position, id`,
		pq.Array(subjectIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []models.Chapter
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var ch models.Chapter
		p := &ch.Progress
		if err := rows.Scan(&ch.ID, &ch.SubjectID, &ch.Name, &ch.Important, &ch.Position,
			&p.Learning, &p.Revision, &p.Practice, &p.Test, &p.Overall); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		ch.Topics = []models.Topic{}
		index[ch.ID] = len(chapters)
		ids = append(ids, ch.ID)
		chapters = append(chapters, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return chapters, nil
	}

	topics, err := s.db.QueryContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE chapter_id = ANY($1) ORDER BY chapter_id, position, id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer topics.Close()

	for topics.Next() {
		t, err := scanTopic(topics)
		if err != nil {
			return nil, err
		}
		i := index[t.ChapterID]
		chapters[i].Topics = append(chapters[i].Topics, *t)
	}
	return chapters, topics.Err()
}

func (s *Store) loadTests(ctx context.Context, subjectIDs []int64) ([]models.Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, name, marks_scored, total_marks, taken_at
		 FROM tests WHERE subject_id = ANY($1) ORDER BY subject_id, taken_at, id`,
		pq.Array(subjectIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	var tests []models.Test
	for rows.Next() {
		var t models.Test
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Name, &t.MarksScored, &t.TotalMarks, &t.TakenAt); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// ── Creation ────────────────────────────────────────────

func (s *Store) CreateSubject(ctx context.Context, userID int64, req models.CreateSubjectRequest) (*models.Subject, error) {
	sub := models.Subject{
		UserID:          userID,
		Name:            req.Name,
		Weightage:       req.Weightage,
		Chapters:        []models.Chapter{},
		Tests:           []models.Test{},
		FoundationLevel: models.FoundationBeginner,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subjects (user_id, name, weightage, position)
		 VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position) + 1, 0) FROM subjects WHERE user_id = $1))
		 RETURNING id, position, created_at`,
		userID, req.Name, req.Weightage,
	).Scan(&sub.ID, &sub.Position, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create subject: %w", err)
	}
	return &sub, nil
}

// CreateChapter returns ErrNotFound when the subject is not the user's.
func (s *Store) CreateChapter(ctx context.Context, userID, subjectID int64, req models.CreateChapterRequest) (*models.Chapter, error) {
	ch := models.Chapter{SubjectID: subjectID, Name: req.Name, Important: req.Important, Topics: []models.Topic{}}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chapters (subject_id, name, important, position)
		 SELECT s.id, $3, $4, (SELECT COALESCE(MAX(position) + 1, 0) FROM chapters WHERE subject_id = s.id)
		 FROM subjects s WHERE s.id = $2 AND s.user_id = $1
		 RETURNING id, position`,
		userID, subjectID, req.Name, req.Important,
	).Scan(&ch.ID, &ch.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("create chapter: %w", err)
	}
	return &ch, nil
}

// CreateTopic returns the new topic and its subject id.
func (s *Store) CreateTopic(ctx context.Context, userID, chapterID int64, req models.CreateTopicRequest) (*models.Topic, int64, error) {
	t := models.Topic{ChapterID: chapterID, Name: req.Name, Important: req.Important}
	var subjectID int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO topics (chapter_id, name, important, position)
		 SELECT c.id, $3, $4, (SELECT COALESCE(MAX(position) + 1, 0) FROM topics WHERE chapter_id = c.id)
		 FROM chapters c JOIN subjects s ON s.id = c.subject_id
		 WHERE c.id = $2 AND s.user_id = $1
		 RETURNING id, position, (SELECT subject_id FROM chapters WHERE id = $2)`,
		userID, chapterID, req.Name, req.Important,
	).Scan(&t.ID, &t.Position, &subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("create topic: %w", err)
	}
	return &t, subjectID, nil
}

func (s *Store) CreateTest(ctx context.Context, userID, subjectID int64, req models.CreateTestRequest) (*models.Test, error) {
	t := models.Test{SubjectID: subjectID, Name: req.Name, MarksScored: req.MarksScored, TotalMarks: req.TotalMarks}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tests (subject_id, name, marks_scored, total_marks)
		 SELECT s.id, $3, $4, $5 FROM subjects s WHERE s.id = $2 AND s.user_id = $1
		 RETURNING id, taken_at`,
		userID, subjectID, req.Name, req.MarksScored, req.TotalMarks,
	).Scan(&t.ID, &t.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	return &t, nil
}

// ── Topics ──────────────────────────────────────────────

const topicColumns = `id, chapter_id, name, important, learning_status, revision_count, practice_count,
	test_count, position, last_revised, next_revision`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(row rowScanner) (*models.Topic, error) {
	var (
		t                   models.Topic
		lastRevised, nextRv sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.ChapterID, &t.Name, &t.Important, &t.LearningStatus, &t.RevisionCount,
		&t.PracticeCount, &t.TestCount, &t.Position, &lastRevised, &nextRv); err != nil {
		return nil, err
	}
	if lastRevised.Valid {
		t.LastRevised = &lastRevised.Time
	}
	if nextRv.Valid {
		t.NextRevision = &nextRv.Time
	}
	return &t, nil
}

// GetTopic loads a topic the user owns together with its subject id.
func (s *Store) GetTopic(ctx context.Context, userID, topicID int64) (*models.Topic, int64, error) {
	var subjectID int64
	var (
		t                   models.Topic
		lastRevised, nextRv sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT t.id, t.chapter_id, t.name, t.important, t.learning_status, t.revision_count,
		        t.practice_count, t.test_count, t.position, t.last_revised, t.next_revision, s.id
		 FROM topics t
		 JOIN chapters c ON c.id = t.chapter_id
		 JOIN subjects s ON s.id = c.subject_id
		 WHERE t.id = $1 AND s.user_id = $2`,
		topicID, userID,
	).Scan(&t.ID, &t.ChapterID, &t.Name, &t.Important, &t.LearningStatus, &t.RevisionCount,
		&t.PracticeCount, &t.TestCount, &t.Position, &lastRevised, &nextRv, &subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get topic: %w", err)
	}
	if lastRevised.Valid {
		t.LastRevised = &lastRevised.Time
	}
	if nextRv.Valid {
		t.NextRevision = &nextRv.Time
	}
	return &t, subjectID, nil
}

func (s *Store) UpdateTopic(ctx context.Context, t *models.Topic) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE topics
		 SET learning_status = $2, revision_count = $3, practice_count = $4, test_count = $5,
		     last_revised = $6, next_revision = $7
		 WHERE id = $1`,
		t.ID, t.LearningStatus, t.RevisionCount, t.PracticeCount, t.TestCount, t.LastRevised, t.NextRevision,
	)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	return nil
}

// ── Cached Progress ─────────────────────────────────────

func (s *Store) SaveChapterProgress(ctx context.Context, chapterID int64, p models.Progress) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chapters
		 SET learning_progress = $2, revision_progress = $3, practice_progress = $4,
		     test_progress = $5, overall_progress = $6
		 WHERE id = $1`,
		chapterID, p.Learning, p.Revision, p.Practice, p.Test, p.Overall,
	)
	if err != nil {
		return fmt.Errorf("save chapter progress: %w", err)
	}
	return nil
}

func (s *Store) SaveSubjectProgress(ctx context.Context, subjectID int64, sp progress.SubjectProgress) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subjects
		 SET learning_progress = $2, revision_progress = $3, practice_progress = $4,
		     test_progress = $5, overall_progress = $6, foundation_level = $7, expected_marks = $8
		 WHERE id = $1`,
		subjectID, sp.Learning, sp.Revision, sp.Practice, sp.Test, sp.Overall, sp.FoundationLevel, sp.ExpectedMarks,
	)
	if err != nil {
		return fmt.Errorf("save subject progress: %w", err)
	}
	return nil
}
