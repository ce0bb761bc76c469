package correlate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule shapes
const (
	ShapePair       = "pair"
	ShapeDivergence = "divergence"
)

// Rule declares one correlation. Pair rules look for topic overlap between
// events of different source types. Divergence rules look for the same topic
// surfacing across distinct sub-sources of one source type.
type Rule struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description,omitempty"`
	Shape       string   `yaml:"shape,omitempty"`
	SourceTypes []string `yaml:"source_types"`
	WindowHours int      `yaml:"window_hours"`

	MinTopicOverlap   int     `yaml:"min_topic_overlap"`
	BaseSeverity      float64 `yaml:"base_severity"`
	TopicOverlapBonus float64 `yaml:"topic_overlap_bonus"`
	EscalationBonus   float64 `yaml:"escalation_bonus"`

	// divergence only
	MinDistinctSources int     `yaml:"min_distinct_sources,omitempty"`
	PerSourceBonus     float64 `yaml:"per_source_bonus,omitempty"`
}

// DefaultRules is the built-in rule set used when no rules file is configured
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:                "legislative_oversight",
			Description:       "a bill and an oversight report share a topic",
			SourceTypes:       []string{"bill", "gao", "oig", "crs"},
			WindowHours:       336,
			MinTopicOverlap:   1,
			BaseSeverity:      0.5,
			TopicOverlapBonus: 0.1,
			EscalationBonus:   0.2,
		},
		{
			ID:                "oversight_press",
			Description:       "press or news coverage follows an oversight finding",
			SourceTypes:       []string{"gao", "oig", "press", "news"},
			WindowHours:       168,
			MinTopicOverlap:   1,
			BaseSeverity:      0.4,
			TopicOverlapBonus: 0.1,
			EscalationBonus:   0.25,
		},
		{
			ID:                "hearing_followup",
			Description:       "a hearing touches a topic raised by a report or ruling",
			SourceTypes:       []string{"hearing", "gao", "oig", "court"},
			WindowHours:       720,
			MinTopicOverlap:   1,
			BaseSeverity:      0.45,
			TopicOverlapBonus: 0.1,
			EscalationBonus:   0.2,
		},
		{
			ID:                "litigation_legislation",
			Description:       "a ruling and a bill address the same topic",
			SourceTypes:       []string{"court", "bill"},
			WindowHours:       720,
			MinTopicOverlap:   1,
			BaseSeverity:      0.45,
			TopicOverlapBonus: 0.1,
			EscalationBonus:   0.2,
		},
		{
			ID:                 "regional_divergence",
			Description:        "one topic reported across several jurisdictions",
			Shape:              ShapeDivergence,
			SourceTypes:        []string{"press", "news"},
			WindowHours:        168,
			MinDistinctSources: 3,
			BaseSeverity:       0.4,
			PerSourceBonus:     0.05,
			EscalationBonus:    0.15,
		},
	}
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and validates a rules YAML file
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s declares no rules", path)
	}

	seen := make(map[string]bool, len(f.Rules))
	for i := range f.Rules {
		r := &f.Rules[i]
		normalize(r)
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return f.Rules, nil
}

func normalize(r *Rule) {
	r.ID = strings.TrimSpace(r.ID)
	if r.Shape == "" {
		r.Shape = ShapePair
	}
	for i, st := range r.SourceTypes {
		r.SourceTypes[i] = strings.ToLower(strings.TrimSpace(st))
	}
}

// Validate checks a rule's shape-specific constraints
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is empty")
	}
	if r.WindowHours <= 0 {
		return fmt.Errorf("rule %s: window_hours must be positive", r.ID)
	}
	if r.BaseSeverity < 0 || r.BaseSeverity > 1 {
		return fmt.Errorf("rule %s: base_severity must be within [0, 1]", r.ID)
	}

	switch r.shape() {
	case ShapePair:
		if len(r.SourceTypes) < 2 {
			return fmt.Errorf("rule %s: needs at least two source types", r.ID)
		}
		if r.MinTopicOverlap < 1 {
			return fmt.Errorf("rule %s: min_topic_overlap must be at least 1", r.ID)
		}
	case ShapeDivergence:
		if len(r.SourceTypes) == 0 {
			return fmt.Errorf("rule %s: needs a source type", r.ID)
		}
		if r.MinDistinctSources < 2 {
			return fmt.Errorf("rule %s: min_distinct_sources must be at least 2", r.ID)
		}
	default:
		return fmt.Errorf("rule %s: unknown shape %q (pair, divergence)", r.ID, r.Shape)
	}
	return nil
}

func (r Rule) shape() string {
	if r.Shape == "" {
		return ShapePair
	}
	return r.Shape
}
