package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RawEvent is a single item produced by an agent during one fetch.
// It lives only for the duration of one pipeline pass.
type RawEvent struct {
	SourceURL string     `json:"source_url"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	Excerpt   string     `json:"excerpt,omitempty"`
	FetchedAt time.Time  `json:"fetched_at"`
	Meta      SourceMeta `json:"meta"`
}

// SourceMeta carries the well-known per-source fields. Anything a source
// returns that has no typed home goes into Extra.
type SourceMeta struct {
	Published    string            `json:"published,omitempty"`  // raw published date as the source wrote it
	EventDate    string            `json:"event_date,omitempty"` // raw occurrence date (hearing date, decision date)
	ReportNumber string            `json:"report_number,omitempty"`
	BillNumber   string            `json:"bill_number,omitempty"`
	CaseNumber   string            `json:"case_number,omitempty"`
	Committee    string            `json:"committee,omitempty"`
	Jurisdiction string            `json:"jurisdiction,omitempty"` // sub-source for divergence rules (state, circuit)
	Extra        map[string]string `json:"extra,omitempty"`
}

// Precision describes how specific a timestamp is
type Precision string

const (
	PrecisionDatetime Precision = "datetime"
	PrecisionDate     Precision = "date"
	PrecisionMonth    Precision = "month"
	PrecisionUnknown  Precision = "unknown"
)

// Provenance records where a timestamp came from
type Provenance string

const (
	ProvenanceExtracted Provenance = "extracted"
	ProvenanceInferred  Provenance = "inferred"
	ProvenanceMissing   Provenance = "missing"
)

// TimestampResult is what an agent extracts from a raw event
type TimestampResult struct {
	PubTimestamp   *time.Time `json:"pub_timestamp,omitempty"`
	PubPrecision   Precision  `json:"pub_precision"`
	PubSource      Provenance `json:"pub_source"`
	EventTimestamp *time.Time `json:"event_timestamp,omitempty"`
	EventPrecision Precision  `json:"event_precision,omitempty"`
	EventSource    Provenance `json:"event_source,omitempty"`
}

// MissingTimestamp is the result for an event with no usable date
func MissingTimestamp() TimestampResult {
	return TimestampResult{
		PubPrecision: PrecisionUnknown,
		PubSource:    ProvenanceMissing,
	}
}

// CanonicalEvent is the durable record of one real-world occurrence
type CanonicalEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	Theme      *Theme `json:"theme,omitempty"`
	SourceType string `json:"source_type"`
	SourceURL  string `json:"source_url"`

	PubTimestamp   *time.Time `json:"pub_timestamp,omitempty"`
	PubPrecision   Precision  `json:"pub_precision"`
	PubSource      Provenance `json:"pub_source"`
	EventTimestamp *time.Time `json:"event_timestamp,omitempty"`
	EventPrecision Precision  `json:"event_precision,omitempty"`

	Title      string `json:"title"`
	Summary    string `json:"summary,omitempty"`
	RawContent string `json:"raw_content,omitempty"` // truncated to RawContentLimit

	// Jurisdiction is the sub-source (state, circuit) divergence rules count
	Jurisdiction string `json:"jurisdiction,omitempty"`

	IsEscalation   bool     `json:"is_escalation"`
	MatchedSignals []string `json:"matched_signals,omitempty"`
	Severity       Severity `json:"severity,omitempty"`

	IsDeviation     bool   `json:"is_deviation"`
	DeviationReason string `json:"deviation_reason,omitempty"`

	CanonicalRefs map[string]string `json:"canonical_refs,omitempty"`

	IsSurfaced  bool       `json:"is_surfaced"`
	SurfacedVia string     `json:"surfaced_via,omitempty"`
	SurfacedAt  *time.Time `json:"surfaced_at,omitempty"`

	ML *MLAssessment `json:"ml,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MLAssessment holds the optional external scorer output
type MLAssessment struct {
	OverallScore float64 `json:"overall_score"`
	OverallRisk  string  `json:"overall_risk"`
	Confidence   float64 `json:"confidence"`
}

// EffectiveTime is the publication timestamp, or creation time when there is none
func (e *CanonicalEvent) EffectiveTime() time.Time {
	if e.PubTimestamp != nil {
		return *e.PubTimestamp
	}
	return e.CreatedAt
}

// RawContentLimit bounds the raw content snippet kept on a canonical event
const RawContentLimit = 4000

// CanonicalID derives the stable identity of an event from its source type and URL
func CanonicalID(sourceType, sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(sourceType) + "|" + strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:])[:32]
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// RelatedCoverage links a secondary observation to an existing canonical event
type RelatedCoverage struct {
	CanonicalEventID string    `json:"canonical_event_id"`
	SourceType       string    `json:"source_type"`
	SourceURL        string    `json:"source_url"`
	Title            string    `json:"title"`
	Timestamp        time.Time `json:"timestamp"`
}

// Rejection reasons
const (
	RejectTemporalIncomplete = "temporal_incomplete"
	RejectDuplicate          = "duplicate"
)

// RejectedEvent is a write-once audit record
type RejectedEvent struct {
	SourceType         string     `json:"source_type"`
	SourceURL          string     `json:"source_url"`
	Title              string     `json:"title"`
	AttemptedTimestamp *time.Time `json:"attempted_timestamp,omitempty"`
	Reason             string     `json:"reason"`
	FetchedAt          time.Time  `json:"fetched_at"`
}

// Clone returns a deep copy
func (e *CanonicalEvent) Clone() *CanonicalEvent {
	if e == nil {
		return nil
	}
	out := *e
	if e.Theme != nil {
		theme := *e.Theme
		out.Theme = &theme
	}
	out.PubTimestamp = cloneTime(e.PubTimestamp)
	out.EventTimestamp = cloneTime(e.EventTimestamp)
	out.SurfacedAt = cloneTime(e.SurfacedAt)
	if e.MatchedSignals != nil {
		out.MatchedSignals = append([]string(nil), e.MatchedSignals...)
	}
	if e.CanonicalRefs != nil {
		out.CanonicalRefs = make(map[string]string, len(e.CanonicalRefs))
		for k, v := range e.CanonicalRefs {
			out.CanonicalRefs[k] = v
		}
	}
	if e.ML != nil {
		ml := *e.ML
		out.ML = &ml
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
