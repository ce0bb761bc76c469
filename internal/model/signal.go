package model

import (
	"sort"
	"strings"
	"time"
)

// Severity is an escalation tier. The empty value means no escalation.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders tiers: critical > high > medium > none
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the configurable tiers
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// MatchMode selects how an escalation pattern is tested
type MatchMode string

const (
	MatchKeyword MatchMode = "keyword" // word-boundary match
	MatchPhrase  MatchMode = "phrase"  // substring match
)

// EscalationSignal is an operator-managed pattern
type EscalationSignal struct {
	Pattern     string    `json:"pattern" yaml:"pattern"`
	Type        MatchMode `json:"type" yaml:"type"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Active      bool      `json:"active" yaml:"active"`
}

// Theme is one of a fixed taxonomy
type Theme string

const (
	ThemeHealthcare  Theme = "healthcare"
	ThemeBenefits    Theme = "benefits"
	ThemeOversight   Theme = "oversight"
	ThemeWorkforce   Theme = "workforce"
	ThemeTechnology  Theme = "technology"
	ThemeBudget      Theme = "budget"
	ThemeLegislation Theme = "legislation"
	ThemeLegal       Theme = "legal"
)

// Themes lists the taxonomy in a stable order
func Themes() []Theme {
	return []Theme{
		ThemeHealthcare, ThemeBenefits, ThemeOversight, ThemeWorkforce,
		ThemeTechnology, ThemeBudget, ThemeLegislation, ThemeLegal,
	}
}

// CompoundMember is one canonical event participating in a compound signal
type CompoundMember struct {
	SourceType string     `json:"source_type"`
	EventID    string     `json:"event_id"`
	Title      string     `json:"title"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// CompoundSignal is a correlation across sources or sub-sources
type CompoundSignal struct {
	ID          string           `json:"id"`
	RuleID      string           `json:"rule_id"`
	Severity    float64          `json:"severity_score"`
	Narrative   string           `json:"narrative"`
	WindowHours int              `json:"temporal_window_hours"`
	Members     []CompoundMember `json:"member_events"`
	Topics      []string         `json:"topics"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

// CompoundRefPrefix prefixes the canonical-reference key linking an event to a compound signal
const CompoundRefPrefix = "compound_signal:"

// CompoundRefKey is the reference key an event gets for a compound signal
func CompoundRefKey(id string) string {
	return CompoundRefPrefix + id
}

// IsCompoundRef reports whether a reference key is a compound-signal link
func IsCompoundRef(key string) bool {
	return strings.HasPrefix(key, CompoundRefPrefix)
}

// SortedKeys returns map keys in lexical order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
