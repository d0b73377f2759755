package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type Recommendation struct {
	SubjectID int64   `json:"subject_id"`
	Name      string  `json:"name"`
	Type      Type    `json:"type"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

type Result struct {
	DaysLeft  int              `json:"days_left"`
	Revise    []Recommendation `json:"revise"`
	Priority  []Recommendation `json:"priority"`
	StartNext []Recommendation `json:"start_next"`
}

// LookupObserver is told about every cache lookup ("score" or "result"
// level, "hit" or "miss").
type LookupObserver func(level, result string)

// Scorer ranks candidates. It is safe for concurrent use; SetConfig may be
// called from a config watcher while requests are being served.
type Scorer struct {
	mu       sync.RWMutex
	cfg      Config
	cache    Cache
	log      *zap.Logger
	observer LookupObserver
}

func NewScorer(cfg Config, cache Cache, log *zap.Logger) *Scorer {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{cfg: cfg, cache: cache, log: log}
}

func (s *Scorer) SetObserver(o LookupObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

func (s *Scorer) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig swaps the weights and thresholds and drops every cached score.
func (s *Scorer) SetConfig(ctx context.Context, cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.Invalidate(ctx)
}

// Invalidate clears both cache levels. Callers must invoke it whenever the
// progress behind a cached score changes.
func (s *Scorer) Invalidate(ctx context.Context) {
	if err := s.cache.Clear(ctx); err != nil {
		s.log.Warn("recommendation cache clear failed", zap.Error(err))
	}
}

// Recommend fills the three buckets. Identical inputs always produce
// identical output.
func (s *Scorer) Recommend(ctx context.Context, candidates []Candidate, daysLeft int) Result {
	cfg := s.Config()

	resultKey, err := digest(candidates, daysLeft, cfg)
	if err == nil {
		if cached, ok := s.cache.GetResult(ctx, resultKey); ok {
			s.observe("result", "hit")
			return *cached
		}
		s.observe("result", "miss")
	} else {
		s.log.Warn("recommendation digest failed", zap.Error(err))
	}

	result := Result{
		DaysLeft:  daysLeft,
		Revise:    s.bucket(ctx, candidates, TypeRevise, daysLeft, cfg),
		Priority:  s.bucket(ctx, candidates, TypePriority, daysLeft, cfg),
		StartNext: s.bucket(ctx, candidates, TypeStart, daysLeft, cfg),
	}

	if resultKey != "" {
		s.cache.SetResult(ctx, resultKey, &result)
	}
	return result
}

func (s *Scorer) bucket(ctx context.Context, candidates []Candidate, t Type, daysLeft int, cfg Config) []Recommendation {
	recs := []Recommendation{}
	for _, c := range candidates {
		if !Eligible(c, t, cfg) {
			continue
		}
		recs = append(recs, Recommendation{
			SubjectID: c.SubjectID,
			Name:      c.Name,
			Type:      t,
			Score:     s.score(ctx, c, t, daysLeft, cfg),
			Reason:    reason(c, t),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})

	if cfg.MaxSubjectsPerCategory >= 0 && len(recs) > cfg.MaxSubjectsPerCategory {
		recs = recs[:cfg.MaxSubjectsPerCategory]
	}
	return recs
}

func (s *Scorer) score(ctx context.Context, c Candidate, t Type, daysLeft int, cfg Config) float64 {
	key := scoreKey(c, t, daysLeft, cfg.Weights)
	if v, ok := s.cache.GetScore(ctx, key); ok {
		s.observe("score", "hit")
		return v
	}
	s.observe("score", "miss")

	v := Score(c, t, daysLeft, cfg.Weights)
	s.cache.SetScore(ctx, key, v)
	return v
}

func (s *Scorer) observe(level, result string) {
	s.mu.RLock()
	o := s.observer
	s.mu.RUnlock()
	if o != nil {
		o(level, result)
	}
}

// scoreKey covers every input of Score, so a score computed from stale
// progress can never be served for a newer snapshot of the same subject.
func scoreKey(c Candidate, t Type, daysLeft int, w Weights) string {
	return fmt.Sprintf("%d:%s:%d:%g:%g:%g:%s:%g:%g:%g:%g",
		c.SubjectID, t, daysLeft,
		c.Weightage, c.LearningProgress, c.RevisionProgress, c.FoundationLevel,
		w.Gate, w.Progress, w.Foundation, w.Time)
}

func digest(candidates []Candidate, daysLeft int, cfg Config) (string, error) {
	payload, err := json.Marshal(struct {
		Candidates []Candidate `json:"candidates"`
		DaysLeft   int         `json:"days_left"`
		Config     Config      `json:"config"`
	}{candidates, daysLeft, cfg})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func reason(c Candidate, t Type) string {
	switch t {
	case TypeRevise:
		return fmt.Sprintf("%.0f%% learned, only %.0f%% revised", c.LearningProgress, c.RevisionProgress)
	case TypePriority:
		return fmt.Sprintf("learning in progress at %.0f%%", c.LearningProgress)
	case TypeStart:
		return fmt.Sprintf("not started yet, weightage %.0f", c.Weightage)
	}
	return ""
}
