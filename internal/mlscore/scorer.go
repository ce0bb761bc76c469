package mlscore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/signalwatch/internal/cache"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/resilience"
)

// Request is what the external scorer sees of an event
type Request struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	SourceType string `json:"source_type"`
}

// Scorer is the optional severity-scoring collaborator. Callers treat any
// error as "no assessment" and carry on.
type Scorer interface {
	// Name returns the provider name
	Name() string

	// Score assesses one event
	Score(ctx context.Context, req Request) (*model.MLAssessment, error)
}

// NewScorer creates the configured scorer, guarded by deps when given and
// wrapped in a cache when a TTL is set. It returns nil, nil when no provider
// is configured.
func NewScorer(cfg model.MLConfig, deps *resilience.Dependencies) (Scorer, error) {
	var s Scorer
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "openai":
		s, err = NewOpenAIScorer(cfg)
	case "http":
		s, err = NewHTTPScorer(cfg)
	default:
		return nil, fmt.Errorf("unknown ml provider: %s (supported: openai, http)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if deps != nil {
		s = NewGuardedScorer(s, deps)
	}
	if cfg.CacheTTL > 0 {
		s = NewCachedScorer(s, cache.New(cfg.CacheDir, cfg.CacheTTL), cfg.CacheTTL)
	}
	return s, nil
}

// validate bounds scores to [0, 1] and normalizes the risk label
func validate(a *model.MLAssessment) error {
	if a.OverallScore < 0 || a.OverallScore > 1 {
		return fmt.Errorf("overall_score out of range: %v", a.OverallScore)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence out of range: %v", a.Confidence)
	}
	a.OverallRisk = strings.ToLower(strings.TrimSpace(a.OverallRisk))
	if a.OverallRisk == "" {
		a.OverallRisk = riskFor(a.OverallScore)
	}
	return nil
}

func riskFor(score float64) string {
	switch {
	case score >= 0.8:
		return "critical"
	case score >= 0.6:
		return "high"
	case score >= 0.3:
		return "medium"
	default:
		return "low"
	}
}
