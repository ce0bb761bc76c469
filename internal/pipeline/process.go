package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/signalwatch/internal/agent"
	"github.com/ppiankov/signalwatch/internal/classify"
	"github.com/ppiankov/signalwatch/internal/dedupe"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/quality"
	"github.com/sirupsen/logrus"
)

const summaryLimit = 500

// process takes one raw event through the gate, dedupe, escalation and
// classification, and persists it if it is new. It returns the outcome and
// whether the stored event is an escalation.
func (r *Runner) process(ctx context.Context, a agent.Agent, raw model.RawEvent) (string, bool, error) {
	sourceType := a.SourceType()

	// 1. Quality gate
	ts := a.ExtractTimestamps(raw)
	if ok, reason := quality.Check(ts); !ok {
		if err := r.store.InsertRejected(ctx, quality.Rejection(sourceType, raw, ts, reason)); err != nil {
			return outcomeFailed, false, fmt.Errorf("record rejection: %w", err)
		}
		return outcomeRejected, false, nil
	}

	// 2. Same source and URL seen before: keep the row, add any new identifiers
	id := model.CanonicalID(sourceType, raw.SourceURL)
	refs := dedupe.Merge(a.ExtractCanonicalRefs(raw), dedupe.ExtractEntities(raw.Title, raw.Content, raw.SourceURL))

	existing, err := r.store.GetCanonicalEvent(ctx, id)
	if err != nil {
		return outcomeFailed, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	if existing != nil {
		if err := r.store.MergeCanonicalRefs(ctx, id, refs); err != nil {
			return outcomeFailed, false, fmt.Errorf("merge refs: %w", err)
		}
		return outcomeExisting, false, nil
	}

	// 3. Cross-source duplicate
	match, err := r.dedup.FindCanonical(ctx, refs)
	if err != nil {
		return outcomeFailed, false, err
	}
	if match != nil && match.ID != id {
		obs := dedupe.Observation{SourceType: sourceType, Raw: raw, Refs: refs}
		if ts.PubTimestamp != nil {
			obs.Timestamp = *ts.PubTimestamp
		}
		if err := r.dedup.LinkCoverage(ctx, match, obs); err != nil {
			return outcomeFailed, false, err
		}
		r.log.WithFields(logrus.Fields{
			"agent":     a.Name(),
			"event_id":  match.ID,
			"duplicate": raw.SourceURL,
		}).Debug("linked related coverage")
		return outcomeDuplicate, false, nil
	}

	// 4. Escalation and theme
	esc, err := r.checker.Check(ctx, raw.Title, raw.Content, sourceType)
	if err != nil {
		return outcomeFailed, false, err
	}
	theme := classify.Theme(raw.Title, raw.Content, sourceType)

	// 5. Persist
	now := r.now().UTC()
	e := &model.CanonicalEvent{
		ID:             id,
		EventType:      a.EventType(),
		Theme:          theme,
		SourceType:     sourceType,
		SourceURL:      raw.SourceURL,
		PubTimestamp:   ts.PubTimestamp,
		PubPrecision:   ts.PubPrecision,
		PubSource:      ts.PubSource,
		EventTimestamp: ts.EventTimestamp,
		EventPrecision: ts.EventPrecision,
		Title:          raw.Title,
		Summary:        summarize(raw),
		RawContent:     model.Truncate(raw.Content, model.RawContentLimit),
		Jurisdiction:   raw.Meta.Jurisdiction,
		IsEscalation:   esc.IsEscalation,
		MatchedSignals: esc.MatchedSignals,
		Severity:       esc.Severity,
		CanonicalRefs:  refs,
		ML:             esc.ML,
		FetchedAt:      raw.FetchedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = now
	}

	created, err := r.store.UpsertCanonicalEvent(ctx, e)
	if err != nil {
		return outcomeFailed, false, fmt.Errorf("persist %s: %w", id, err)
	}
	if !created {
		// another agent stored the same event first
		return outcomeExisting, false, nil
	}
	return outcomePersisted, e.IsEscalation, nil
}

func summarize(raw model.RawEvent) string {
	if raw.Excerpt != "" {
		return model.Truncate(raw.Excerpt, summaryLimit)
	}
	return model.Truncate(raw.Content, summaryLimit)
}
