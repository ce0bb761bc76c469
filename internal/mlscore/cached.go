package mlscore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ppiankov/signalwatch/internal/cache"
	"github.com/ppiankov/signalwatch/internal/model"
	"golang.org/x/sync/singleflight"
)

// CachedScorer memoizes assessments and collapses concurrent identical
// requests into one upstream call. Failures are not cached.
type CachedScorer struct {
	inner Scorer
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedScorer wraps inner
func NewCachedScorer(inner Scorer, c cache.Cache, ttl time.Duration) *CachedScorer {
	return &CachedScorer{inner: inner, cache: c, ttl: ttl}
}

func (s *CachedScorer) Name() string {
	return s.inner.Name()
}

func (s *CachedScorer) Score(ctx context.Context, req Request) (*model.MLAssessment, error) {
	key := cache.Key("mlscore", s.inner.Name(), req.SourceType, req.Title, req.Content)

	if data, ok := s.cache.Get(key); ok {
		var a model.MLAssessment
		if err := json.Unmarshal(data, &a); err == nil {
			return &a, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if data, ok := s.cache.Get(key); ok {
			var a model.MLAssessment
			if err := json.Unmarshal(data, &a); err == nil {
				return &a, nil
			}
		}
		a, err := s.inner.Score(ctx, req)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(a); err == nil {
			_ = s.cache.Set(key, data, s.ttl)
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}

	out := *v.(*model.MLAssessment)
	return &out, nil
}
