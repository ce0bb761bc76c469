package model

import "time"

// RunStatus is the outcome of one agent run
type RunStatus string

const (
	StatusSuccess RunStatus = "SUCCESS" // at least one new event persisted
	StatusNoData  RunStatus = "NO_DATA" // nothing new (empty fetch, or all duplicates/rejected)
	StatusError   RunStatus = "ERROR"   // the agent failed during fetch or processing
)

// AgentResult is the per-run structure handed to consumers
type AgentResult struct {
	Agent           string    `json:"agent"`
	Status          RunStatus `json:"status"`
	FetchedCount    int       `json:"fetched_count"`
	ProcessedCount  int       `json:"processed_count"`
	EscalationCount int       `json:"escalation_count"`
	RejectedCount   int       `json:"rejected_count"`
	DuplicateCount  int       `json:"duplicate_count"`
	Errors          []string  `json:"errors"`
}

// RunRecord is the persisted history of an agent run
type RunRecord struct {
	RunID      string      `json:"run_id"`
	Agent      string      `json:"agent"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Result     AgentResult `json:"result"`
}

// Stats is an aggregate view over the store
type Stats struct {
	CanonicalEvents  int            `json:"canonical_events"`
	RejectedEvents   int            `json:"rejected_events"`
	RelatedCoverage  int            `json:"related_coverage"`
	CompoundSignals  int            `json:"compound_signals"`
	Escalations      int            `json:"escalations"`
	BySourceType     map[string]int `json:"by_source_type"`
	BySeverity       map[string]int `json:"by_severity"`
	OpenCompoundSigs int            `json:"open_compound_signals"`
}
