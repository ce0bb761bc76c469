package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
)

// MemoryStore keeps everything in process memory. Used for tests and dry runs.
type MemoryStore struct {
	mu sync.RWMutex

	events     map[string]*model.CanonicalEvent
	eventOrder []string
	rejected   []model.RejectedEvent
	related    map[string][]model.RelatedCoverage

	signals     map[string]model.EscalationSignal
	signalOrder []string

	compounds     map[string]model.CompoundSignal
	compoundOrder []string

	runs []model.RunRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:    make(map[string]*model.CanonicalEvent),
		related:   make(map[string][]model.RelatedCoverage),
		signals:   make(map[string]model.EscalationSignal),
		compounds: make(map[string]model.CompoundSignal),
	}
}

func (m *MemoryStore) UpsertCanonicalEvent(ctx context.Context, e *model.CanonicalEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.events[e.ID]; ok {
		mergeRefs(existing, e.CanonicalRefs)
		return false, nil
	}

	stored := e.Clone()
	if stored.CanonicalRefs == nil {
		stored.CanonicalRefs = make(map[string]string)
	}
	m.events[e.ID] = stored
	m.eventOrder = append(m.eventOrder, e.ID)
	return true, nil
}

func (m *MemoryStore) GetCanonicalEvent(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

func (m *MemoryStore) FindByReference(ctx context.Context, value string) (*model.CanonicalEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.eventOrder {
		e := m.events[id]
		for k, v := range e.CanonicalRefs {
			if v == value && !model.IsCompoundRef(k) {
				return e.Clone(), nil
			}
		}
	}
	return nil, nil
}

func (m *MemoryStore) MergeCanonicalRefs(ctx context.Context, eventID string, refs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return ErrNotFound
	}
	mergeRefs(e, refs)
	return nil
}

func mergeRefs(e *model.CanonicalEvent, refs map[string]string) {
	if len(refs) == 0 {
		return
	}
	if e.CanonicalRefs == nil {
		e.CanonicalRefs = make(map[string]string, len(refs))
	}
	changed := false
	for k, v := range refs {
		if _, exists := e.CanonicalRefs[k]; !exists {
			e.CanonicalRefs[k] = v
			changed = true
		}
	}
	if changed {
		e.UpdatedAt = time.Now().UTC()
	}
}

func (m *MemoryStore) ListCanonicalEvents(ctx context.Context, f EventFilter) ([]*model.CanonicalEvent, error) {
	m.mu.RLock()
	var out []*model.CanonicalEvent
	for _, id := range m.eventOrder {
		e := m.events[id]
		if matchesFilter(e, f) {
			out = append(out, e.Clone())
		}
	}
	m.mu.RUnlock()

	sortEvents(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// sortEvents orders by effective time, then id
func sortEvents(events []*model.CanonicalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].EffectiveTime(), events[j].EffectiveTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return events[i].ID < events[j].ID
	})
}

func (m *MemoryStore) InsertRejected(ctx context.Context, r model.RejectedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, r)
	return nil
}

// Rejected returns the audit trail, for tests
func (m *MemoryStore) Rejected() []model.RejectedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.RejectedEvent(nil), m.rejected...)
}

func (m *MemoryStore) InsertRelatedCoverage(ctx context.Context, rc model.RelatedCoverage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.related[rc.CanonicalEventID] {
		if existing.SourceURL == rc.SourceURL {
			return nil
		}
	}
	m.related[rc.CanonicalEventID] = append(m.related[rc.CanonicalEventID], rc)
	return nil
}

func (m *MemoryStore) ListRelatedCoverage(ctx context.Context, eventID string) ([]model.RelatedCoverage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.RelatedCoverage(nil), m.related[eventID]...), nil
}

func (m *MemoryStore) ListActiveEscalationSignals(ctx context.Context) ([]model.EscalationSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.EscalationSignal
	for _, p := range m.signalOrder {
		if s := m.signals[p]; s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListEscalationSignals(ctx context.Context) ([]model.EscalationSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.EscalationSignal, 0, len(m.signalOrder))
	for _, p := range m.signalOrder {
		out = append(out, m.signals[p])
	}
	return out, nil
}

func (m *MemoryStore) UpsertEscalationSignal(ctx context.Context, s model.EscalationSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.signals[s.Pattern]; !exists {
		m.signalOrder = append(m.signalOrder, s.Pattern)
	}
	m.signals[s.Pattern] = s
	return nil
}

func (m *MemoryStore) SetEscalationSignalActive(ctx context.Context, pattern string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[pattern]
	if !ok {
		return ErrNotFound
	}
	s.Active = active
	m.signals[pattern] = s
	return nil
}

func (m *MemoryStore) SeedEscalationSignals(ctx context.Context, signals []model.EscalationSignal) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.signals) > 0 {
		return 0, nil
	}
	for _, s := range signals {
		if _, exists := m.signals[s.Pattern]; exists {
			continue
		}
		m.signals[s.Pattern] = s
		m.signalOrder = append(m.signalOrder, s.Pattern)
	}
	return len(m.signalOrder), nil
}

func (m *MemoryStore) InsertCompoundSignal(ctx context.Context, s model.CompoundSignal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.compounds[s.ID]; exists {
		return false, nil
	}
	m.compounds[s.ID] = s
	m.compoundOrder = append(m.compoundOrder, s.ID)
	return true, nil
}

func (m *MemoryStore) GetCompoundSignal(ctx context.Context, id string) (*model.CompoundSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.compounds[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) ListCompoundSignals(ctx context.Context, f CompoundFilter) ([]model.CompoundSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.CompoundSignal
	for _, id := range m.compoundOrder {
		if s := m.compounds[id]; matchesCompoundFilter(s, f) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkSurfaced(ctx context.Context, ids []string, via string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range ids {
		e, ok := m.events[id]
		if !ok || e.IsSurfaced {
			continue
		}
		surfacedAt := at
		e.IsSurfaced = true
		e.SurfacedVia = via
		e.SurfacedAt = &surfacedAt
		n++
	}
	return n, nil
}

func (m *MemoryStore) ResolveCompoundSignal(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.compounds[id]
	if !ok {
		return ErrNotFound
	}
	if s.ResolvedAt == nil {
		s.ResolvedAt = &at
		m.compounds[id] = s
	}
	return nil
}

func (m *MemoryStore) RecordRun(ctx context.Context, r model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func (m *MemoryStore) LastSuccessfulRun(ctx context.Context, agent string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *time.Time
	for i := range m.runs {
		r := m.runs[i]
		if r.Agent != agent || r.Result.Status == model.StatusError {
			continue
		}
		if last == nil || r.StartedAt.After(*last) {
			t := r.StartedAt
			last = &t
		}
	}
	return last, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (model.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := model.Stats{
		CanonicalEvents: len(m.events),
		RejectedEvents:  len(m.rejected),
		CompoundSignals: len(m.compounds),
		BySourceType:    make(map[string]int),
		BySeverity:      make(map[string]int),
	}
	for _, e := range m.events {
		stats.BySourceType[e.SourceType]++
		if e.IsEscalation {
			stats.Escalations++
			stats.BySeverity[string(e.Severity)]++
		}
	}
	for _, rc := range m.related {
		stats.RelatedCoverage += len(rc)
	}
	for _, s := range m.compounds {
		if s.ResolvedAt == nil {
			stats.OpenCompoundSigs++
		}
	}
	return stats, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
