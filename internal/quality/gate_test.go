package quality

import (
	"testing"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
)

func TestCheck(t *testing.T) {
	ts := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		input  model.TimestampResult
		passed bool
	}{
		{
			name:   "datetime",
			input:  model.TimestampResult{PubTimestamp: &ts, PubPrecision: model.PrecisionDatetime, PubSource: model.ProvenanceExtracted},
			passed: true,
		},
		{
			name:   "inferred date",
			input:  model.TimestampResult{PubTimestamp: &ts, PubPrecision: model.PrecisionDate, PubSource: model.ProvenanceInferred},
			passed: true,
		},
		{
			name:   "month",
			input:  model.TimestampResult{PubTimestamp: &ts, PubPrecision: model.PrecisionMonth},
			passed: true,
		},
		{
			name:   "missing timestamp",
			input:  model.MissingTimestamp(),
			passed: false,
		},
		{
			name:   "timestamp with unknown precision",
			input:  model.TimestampResult{PubTimestamp: &ts, PubPrecision: model.PrecisionUnknown},
			passed: false,
		},
		{
			name:   "precision without timestamp",
			input:  model.TimestampResult{PubPrecision: model.PrecisionDate},
			passed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passed, reason := Check(tt.input)
			if passed != tt.passed {
				t.Fatalf("Check() passed = %v, want %v", passed, tt.passed)
			}
			if passed && reason != "" {
				t.Errorf("expected empty reason on pass, got %q", reason)
			}
			if !passed && reason != model.RejectTemporalIncomplete {
				t.Errorf("expected %q, got %q", model.RejectTemporalIncomplete, reason)
			}
		})
	}
}

func TestRejection(t *testing.T) {
	fetched := time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC)
	raw := model.RawEvent{SourceURL: "https://example.gov/a", Title: "Undated", FetchedAt: fetched}

	r := Rejection("press", raw, model.MissingTimestamp(), model.RejectTemporalIncomplete)
	if r.SourceType != "press" || r.SourceURL != raw.SourceURL || r.Title != "Undated" {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.AttemptedTimestamp != nil || !r.FetchedAt.Equal(fetched) {
		t.Errorf("unexpected timestamps: %+v", r)
	}
}
