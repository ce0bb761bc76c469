package mlscore

import (
	"context"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/resilience"
)

// Dependency is the resilience dependency every scorer call counts against
const Dependency = "ml"

// GuardedScorer runs each assessment as one guarded call to the ml
// dependency, so a dead scorer trips its breaker and later events fail fast.
type GuardedScorer struct {
	inner Scorer
	deps  *resilience.Dependencies
}

// NewGuardedScorer wraps inner
func NewGuardedScorer(inner Scorer, deps *resilience.Dependencies) *GuardedScorer {
	return &GuardedScorer{inner: inner, deps: deps}
}

func (s *GuardedScorer) Name() string {
	return s.inner.Name()
}

func (s *GuardedScorer) Score(ctx context.Context, req Request) (*model.MLAssessment, error) {
	out := make(chan *model.MLAssessment, 1)
	err := s.deps.Guard(ctx, Dependency, func(ctx context.Context) error {
		a, err := s.inner.Score(ctx, req)
		if err != nil {
			return err
		}
		out <- a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return <-out, nil
}

// DependencyConfig bounds the ml dependency by the scorer's own timeout
// unless the resilience section already configures it
func DependencyConfig(cfg model.Config) model.DependencyConfig {
	dep := cfg.Resilience.Dependencies[Dependency]
	if dep.CallTimeout <= 0 {
		dep.CallTimeout = cfg.ML.Timeout
	}
	if dep.FailureThreshold <= 0 {
		dep.FailureThreshold = 3
	}
	return dep
}
