package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/store"
)

// ExtractEntities pulls source-agnostic identifiers (report, bill and case
// numbers) out of an event's title, content and URL
func ExtractEntities(title, content, url string) map[string]string {
	text := title + "\n" + content + "\n" + url
	entities := make(map[string]string)
	for _, f := range model.EntityFamilies {
		if v, ok := f.Find(text); ok {
			entities[f.Key] = v
		}
	}
	return entities
}

// Merge combines agent-supplied references with extracted entities. Agent
// values win on key collision.
func Merge(agentRefs, extracted map[string]string) map[string]string {
	out := make(map[string]string, len(agentRefs)+len(extracted))
	for k, v := range extracted {
		out[k] = v
	}
	for k, v := range agentRefs {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Deduplicator resolves new observations against existing canonical events
type Deduplicator struct {
	store store.Store
}

// New creates a deduplicator over s
func New(s store.Store) *Deduplicator {
	return &Deduplicator{store: s}
}

// FindCanonical returns the first existing event sharing an identifier with
// entities, walking keys in lexical order. No entities means no match.
func (d *Deduplicator) FindCanonical(ctx context.Context, entities map[string]string) (*model.CanonicalEvent, error) {
	for _, key := range model.SortedKeys(entities) {
		if model.IsCompoundRef(key) {
			continue
		}
		value := entities[key]
		if value == "" {
			continue
		}
		e, err := d.store.FindByReference(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("lookup %s=%s: %w", key, value, err)
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

// Observation is a secondary sighting of an existing canonical event
type Observation struct {
	SourceType string
	Raw        model.RawEvent
	Timestamp  time.Time
	Refs       map[string]string
}

// LinkCoverage records obs as related coverage of canonical, audits it as a
// duplicate and merges any new identifiers into the canonical event
func (d *Deduplicator) LinkCoverage(ctx context.Context, canonical *model.CanonicalEvent, obs Observation) error {
	ts := obs.Timestamp
	if ts.IsZero() {
		ts = obs.Raw.FetchedAt
	}

	err := d.store.InsertRelatedCoverage(ctx, model.RelatedCoverage{
		CanonicalEventID: canonical.ID,
		SourceType:       obs.SourceType,
		SourceURL:        obs.Raw.SourceURL,
		Title:            obs.Raw.Title,
		Timestamp:        ts,
	})
	if err != nil {
		return fmt.Errorf("insert related coverage: %w", err)
	}

	attempted := ts
	err = d.store.InsertRejected(ctx, model.RejectedEvent{
		SourceType:         obs.SourceType,
		SourceURL:          obs.Raw.SourceURL,
		Title:              obs.Raw.Title,
		AttemptedTimestamp: &attempted,
		Reason:             model.RejectDuplicate,
		FetchedAt:          obs.Raw.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("insert duplicate record: %w", err)
	}

	if len(obs.Refs) > 0 {
		if err := d.store.MergeCanonicalRefs(ctx, canonical.ID, obs.Refs); err != nil {
			return fmt.Errorf("merge refs: %w", err)
		}
	}
	return nil
}
