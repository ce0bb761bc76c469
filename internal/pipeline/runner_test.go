package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/signalwatch/internal/agent"
	"github.com/ppiankov/signalwatch/internal/escalation"
	"github.com/ppiankov/signalwatch/internal/logging"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/store"
)

type fakeAgent struct {
	name       string
	sourceType string
	events     []model.RawEvent
	err        error
	delay      time.Duration
	panicMsg   string

	mu     sync.Mutex
	sinces []*time.Time
}

func (f *fakeAgent) Name() string       { return f.name }
func (f *fakeAgent) SourceType() string { return f.sourceType }
func (f *fakeAgent) EventType() string  { return "report" }

func (f *fakeAgent) FetchNew(ctx context.Context, since *time.Time) ([]model.RawEvent, error) {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	f.mu.Unlock()
	return f.fetch(ctx)
}

func (f *fakeAgent) Backfill(ctx context.Context, start, end time.Time) ([]model.RawEvent, error) {
	return f.fetch(ctx)
}

func (f *fakeAgent) fetch(ctx context.Context) ([]model.RawEvent, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

func (f *fakeAgent) ExtractTimestamps(raw model.RawEvent) model.TimestampResult {
	t, precision, ok := agent.ParseTimestamp(raw.Meta.Published)
	if !ok {
		return model.MissingTimestamp()
	}
	return model.TimestampResult{PubTimestamp: &t, PubPrecision: precision, PubSource: model.ProvenanceExtracted}
}

func (f *fakeAgent) ExtractCanonicalRefs(raw model.RawEvent) map[string]string {
	if raw.Meta.ReportNumber == "" {
		return map[string]string{}
	}
	return map[string]string{"gao_report": model.NormalizeRef(raw.Meta.ReportNumber)}
}

func rawEvent(url, title, published string) model.RawEvent {
	return model.RawEvent{
		SourceURL: url,
		Title:     title,
		Content:   title + " details",
		FetchedAt: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		Meta:      model.SourceMeta{Published: published},
	}
}

func newRunner(t *testing.T, s store.Store, opts Options, agents ...agent.Agent) *Runner {
	t.Helper()
	opts.Log = logging.Discard()
	return NewRunner(s, agents, escalation.NewChecker(s, nil, logging.Discard()), opts)
}

func TestRunAgent_IdempotentIngestion(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a := &fakeAgent{name: "gao", sourceType: "gao", events: []model.RawEvent{
		rawEvent("https://www.gao.gov/products/gao-25-106789", "Claims Backlog Persists", "2025-02-10"),
	}}
	r := newRunner(t, s, Options{}, a)

	first, err := r.RunAgent(ctx, "gao")
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != model.StatusSuccess || first.ProcessedCount != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, _ := r.RunAgent(ctx, "gao")
	if second.Status != model.StatusNoData || second.FetchedCount != 1 || second.ProcessedCount != 0 {
		t.Errorf("unexpected second result: %+v", second)
	}

	events, _ := s.ListCanonicalEvents(ctx, store.EventFilter{})
	if len(events) != 1 {
		t.Fatalf("expected exactly one canonical event, got %d", len(events))
	}
	e := events[0]
	if e.ID != model.CanonicalID("gao", "https://www.gao.gov/products/gao-25-106789") {
		t.Errorf("unexpected id %s", e.ID)
	}
	if e.CanonicalRefs["gao_report"] != "GAO-25-106789" {
		t.Errorf("entities not extracted: %v", e.CanonicalRefs)
	}
	if e.Theme == nil || *e.Theme != model.ThemeBenefits {
		t.Errorf("unexpected theme: %v", e.Theme)
	}
	related, _ := s.ListRelatedCoverage(ctx, e.ID)
	if len(related) != 0 {
		t.Errorf("a re-fetch must not link coverage to itself: %+v", related)
	}
}

func TestRunAgent_QualityGate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a := &fakeAgent{name: "press", sourceType: "press", events: []model.RawEvent{
		rawEvent("https://www.va.gov/a", "Undated release", ""),
		rawEvent("https://www.va.gov/b", "Vague release", "sometime soon"),
	}}
	r := newRunner(t, s, Options{}, a)

	result, _ := r.RunAgent(ctx, "press")
	if result.Status != model.StatusNoData || result.RejectedCount != 2 {
		t.Errorf("unexpected result: %+v", result)
	}

	events, _ := s.ListCanonicalEvents(ctx, store.EventFilter{})
	if len(events) != 0 {
		t.Errorf("rejected events must not be stored, got %d", len(events))
	}
	for _, rej := range s.Rejected() {
		if rej.Reason != model.RejectTemporalIncomplete {
			t.Errorf("unexpected reason %q", rej.Reason)
		}
	}
}

func TestRunAgent_CrossSourceDuplicate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	report := rawEvent("https://www.gao.gov/products/gao-25-106789", "VA Disability Claims", "2025-02-10")
	report.Meta.ReportNumber = "GAO-25-106789"
	gao := &fakeAgent{name: "gao", sourceType: "gao", events: []model.RawEvent{report}}

	story := rawEvent("https://news.example.com/2025/02/11/watchdog", "Watchdog slams claims backlog", "2025-02-11")
	story.Content = "The report (gao-25-106789) found delays. H.R. 1234 would respond."
	news := &fakeAgent{name: "news", sourceType: "news", events: []model.RawEvent{story}}

	r := newRunner(t, s, Options{}, gao, news)
	if res, _ := r.RunAgent(ctx, "gao"); res.Status != model.StatusSuccess {
		t.Fatalf("gao run failed: %+v", res)
	}

	res, _ := r.RunAgent(ctx, "news")
	if res.Status != model.StatusNoData || res.DuplicateCount != 1 {
		t.Fatalf("unexpected news result: %+v", res)
	}

	reportID := model.CanonicalID("gao", report.SourceURL)
	related, _ := s.ListRelatedCoverage(ctx, reportID)
	if len(related) != 1 || related[0].SourceType != "news" {
		t.Errorf("unexpected related coverage: %+v", related)
	}
	canonical, _ := s.GetCanonicalEvent(ctx, reportID)
	if canonical.CanonicalRefs["bill"] != "H.R.1234" {
		t.Errorf("new identifiers not merged: %v", canonical.CanonicalRefs)
	}
}

func TestRunAgent_Escalation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_ = s.UpsertEscalationSignal(ctx, model.EscalationSignal{Pattern: "subpoena", Type: model.MatchKeyword, Severity: model.SeverityHigh, Active: true})

	a := &fakeAgent{name: "hearings", sourceType: "hearing", events: []model.RawEvent{
		rawEvent("https://veterans.house.gov/1", "House Committee Issues Subpoena to Agency", "2025-02-12"),
		rawEvent("https://veterans.house.gov/2", "Committee schedules markup", "2025-02-12"),
	}}
	r := newRunner(t, s, Options{}, a)

	result, _ := r.RunAgent(ctx, "hearings")
	if result.ProcessedCount != 2 || result.EscalationCount != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	escalated, _ := s.ListCanonicalEvents(ctx, store.EventFilter{EscalatedOnly: true})
	if len(escalated) != 1 || escalated[0].Severity != model.SeverityHigh {
		t.Fatalf("unexpected escalations: %+v", escalated)
	}
}

func TestRunAgent_SinceLastSuccessfulRun(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	clock := time.Date(2025, 2, 15, 6, 0, 0, 0, time.UTC)
	a := &fakeAgent{name: "gao", sourceType: "gao"}
	r := newRunner(t, s, Options{Now: func() time.Time { return clock }}, a)

	_, _ = r.RunAgent(ctx, "gao")
	clock = clock.Add(time.Hour)
	_, _ = r.RunAgent(ctx, "gao")

	if len(a.sinces) != 2 {
		t.Fatalf("expected 2 fetches, got %d", len(a.sinces))
	}
	if a.sinces[0] != nil {
		t.Errorf("first run must have no since, got %v", a.sinces[0])
	}
	if a.sinces[1] == nil || !a.sinces[1].Equal(time.Date(2025, 2, 15, 6, 0, 0, 0, time.UTC)) {
		t.Errorf("second run since = %v", a.sinces[1])
	}
}

func TestRunAll_OrderAndIsolation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	slow := &fakeAgent{name: "slow", sourceType: "gao", delay: 50 * time.Millisecond, events: []model.RawEvent{
		rawEvent("https://www.gao.gov/x", "Audit of contracting", "2025-02-10"),
	}}
	broken := &fakeAgent{name: "broken", sourceType: "news", err: context.DeadlineExceeded}
	panicky := &fakeAgent{name: "panicky", sourceType: "press", panicMsg: "parser exploded"}
	empty := &fakeAgent{name: "empty", sourceType: "bill"}

	r := newRunner(t, s, Options{}, slow, broken, panicky, empty)
	results := r.RunAll(ctx)

	want := []struct {
		agent  string
		status model.RunStatus
	}{
		{"slow", model.StatusSuccess},
		{"broken", model.StatusError},
		{"panicky", model.StatusError},
		{"empty", model.StatusNoData},
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, w := range want {
		if results[i].Agent != w.agent || results[i].Status != w.status {
			t.Errorf("result %d = %s/%s, want %s/%s", i, results[i].Agent, results[i].Status, w.agent, w.status)
		}
	}
	if !strings.Contains(strings.Join(results[2].Errors, " "), "parser exploded") {
		t.Errorf("panic not captured: %v", results[2].Errors)
	}
}

func TestRunAgent_Deadline(t *testing.T) {
	s := store.NewMemoryStore()
	a := &fakeAgent{name: "stuck", sourceType: "news", delay: time.Minute}
	r := newRunner(t, s, Options{Deadline: 20 * time.Millisecond}, a)

	result, _ := r.RunAgent(context.Background(), "stuck")
	if result.Status != model.StatusError {
		t.Fatalf("expected ERROR, got %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "deadline of 20ms exceeded") {
		t.Errorf("unexpected errors: %v", result.Errors)
	}

	// the run is still recorded, and does not count as successful
	last, _ := s.LastSuccessfulRun(context.Background(), "stuck")
	if last != nil {
		t.Errorf("failed run must not advance the poll window, got %v", last)
	}
}

func TestRunAgent_Unknown(t *testing.T) {
	r := newRunner(t, store.NewMemoryStore(), Options{})
	if _, err := r.RunAgent(context.Background(), "nope"); err == nil {
		t.Error("expected unknown agent error")
	}
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a := &fakeAgent{name: "gao", sourceType: "gao", events: []model.RawEvent{
		rawEvent("https://www.gao.gov/old", "Older report on budget", "2024-01-05"),
	}}
	r := newRunner(t, s, Options{}, a)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	result, err := r.Backfill(ctx, "gao", start, end)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.StatusSuccess || result.ProcessedCount != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	last, _ := s.LastSuccessfulRun(ctx, "gao")
	if last != nil {
		t.Error("backfill must not move the poll window")
	}

	if _, err := r.Backfill(ctx, "gao", end, start); err == nil {
		t.Error("expected inverted range error")
	}
}
