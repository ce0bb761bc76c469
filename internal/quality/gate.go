package quality

import (
	"github.com/ppiankov/signalwatch/internal/model"
)

// Check is the timestamp-completeness precondition for entering the canonical
// store. An event passes only with a publication timestamp of known precision.
// The returned reason is empty on pass.
func Check(ts model.TimestampResult) (bool, string) {
	if ts.PubTimestamp == nil || ts.PubTimestamp.IsZero() {
		return false, model.RejectTemporalIncomplete
	}
	if ts.PubPrecision == model.PrecisionUnknown || ts.PubPrecision == "" {
		return false, model.RejectTemporalIncomplete
	}
	return true, ""
}

// Rejection builds the audit record for a raw event that will not be kept
func Rejection(sourceType string, raw model.RawEvent, ts model.TimestampResult, reason string) model.RejectedEvent {
	return model.RejectedEvent{
		SourceType:         sourceType,
		SourceURL:          raw.SourceURL,
		Title:              raw.Title,
		AttemptedTimestamp: ts.PubTimestamp,
		Reason:             reason,
		FetchedAt:          raw.FetchedAt,
	}
}
