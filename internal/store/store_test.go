package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ppiankov/signalwatch/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqlite, err := Open(ctx, model.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "signalwatch.db")})
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func testEvent(sourceType, url, title string, pub time.Time) *model.CanonicalEvent {
	theme := model.ThemeOversight
	return &model.CanonicalEvent{
		ID:           model.CanonicalID(sourceType, url),
		EventType:    "report",
		Theme:        &theme,
		SourceType:   sourceType,
		SourceURL:    url,
		PubTimestamp: &pub,
		PubPrecision: model.PrecisionDate,
		PubSource:    model.ProvenanceExtracted,
		Title:        title,
		CanonicalRefs: map[string]string{
			"gao_report": "GAO-24-106789",
		},
		FetchedAt: pub,
		CreatedAt: pub,
		UpdatedAt: pub,
	}
}

var pubDate = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

func TestStore_UpsertIsIdempotent(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := testEvent("gao", "https://www.gao.gov/products/gao-24-106789", "Disability Claims Backlog", pubDate)

			created, err := s.UpsertCanonicalEvent(ctx, e)
			if err != nil || !created {
				t.Fatalf("first upsert: created=%v err=%v", created, err)
			}

			again := e.Clone()
			again.Title = "changed"
			again.CanonicalRefs = map[string]string{"gao_report": "OTHER", "bill": "H.R. 1234"}
			created, err = s.UpsertCanonicalEvent(ctx, again)
			if err != nil || created {
				t.Fatalf("second upsert: created=%v err=%v", created, err)
			}

			got, err := s.GetCanonicalEvent(ctx, e.ID)
			if err != nil || got == nil {
				t.Fatalf("get: %v %v", got, err)
			}
			if got.Title != "Disability Claims Backlog" {
				t.Errorf("existing row was overwritten: %q", got.Title)
			}
			want := map[string]string{"gao_report": "GAO-24-106789", "bill": "H.R. 1234"}
			if diff := cmp.Diff(want, got.CanonicalRefs); diff != "" {
				t.Errorf("refs mismatch (-want +got):\n%s", diff)
			}
			if got.PubTimestamp == nil || !got.PubTimestamp.Equal(pubDate) {
				t.Errorf("pub timestamp not preserved: %v", got.PubTimestamp)
			}
			if got.Theme == nil || *got.Theme != model.ThemeOversight {
				t.Errorf("theme not preserved: %v", got.Theme)
			}

			missing, err := s.GetCanonicalEvent(ctx, "nope")
			if err != nil || missing != nil {
				t.Errorf("expected nil for unknown id, got %v %v", missing, err)
			}
		})
	}
}

func TestStore_MergeAndFindByReference(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := testEvent("gao", "https://www.gao.gov/products/gao-24-106789", "Backlog", pubDate)
			if _, err := s.UpsertCanonicalEvent(ctx, e); err != nil {
				t.Fatal(err)
			}

			if err := s.MergeCanonicalRefs(ctx, e.ID, map[string]string{
				"gao_report":              "SHOULD-NOT-WIN",
				model.CompoundRefKey("x"): "rule-1",
			}); err != nil {
				t.Fatalf("merge failed: %v", err)
			}

			found, err := s.FindByReference(ctx, "GAO-24-106789")
			if err != nil || found == nil || found.ID != e.ID {
				t.Fatalf("expected to find event by reference, got %v %v", found, err)
			}
			if found.CanonicalRefs["gao_report"] != "GAO-24-106789" {
				t.Errorf("existing key overwritten: %v", found.CanonicalRefs)
			}
			if found.CanonicalRefs[model.CompoundRefKey("x")] != "rule-1" {
				t.Errorf("new key not merged: %v", found.CanonicalRefs)
			}

			if none, _ := s.FindByReference(ctx, "rule-1"); none != nil {
				t.Error("compound links must not be matched as entity references")
			}
			if err := s.MergeCanonicalRefs(ctx, "missing", map[string]string{"a": "b"}); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_MarkSurfaced(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := testEvent("oig", "https://www.vaoig.gov/reports/1", "Inspection", pubDate)
			if _, err := s.UpsertCanonicalEvent(ctx, e); err != nil {
				t.Fatal(err)
			}

			first := pubDate.Add(time.Hour)
			n, err := s.MarkSurfaced(ctx, []string{e.ID, "missing"}, "digest", first)
			if err != nil || n != 1 {
				t.Fatalf("expected 1 event marked, got %d, %v", n, err)
			}
			n, err = s.MarkSurfaced(ctx, []string{e.ID}, "email", first.Add(time.Hour))
			if err != nil || n != 0 {
				t.Errorf("already surfaced event re-marked: %d, %v", n, err)
			}

			got, _ := s.GetCanonicalEvent(ctx, e.ID)
			if !got.IsSurfaced || got.SurfacedVia != "digest" || got.SurfacedAt == nil || !got.SurfacedAt.Equal(first) {
				t.Errorf("unexpected surfaced state: %v %q %v", got.IsSurfaced, got.SurfacedVia, got.SurfacedAt)
			}
		})
	}
}

func TestStore_ListCanonicalEvents(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			older := testEvent("gao", "https://a/1", "older", pubDate.Add(-30*24*time.Hour))
			newer := testEvent("bill", "https://b/2", "newer", pubDate)
			newer.IsEscalation = true
			newer.Severity = model.SeverityHigh
			newer.MatchedSignals = []string{"subpoena"}
			for _, e := range []*model.CanonicalEvent{newer, older} {
				if _, err := s.UpsertCanonicalEvent(ctx, e); err != nil {
					t.Fatal(err)
				}
			}

			all, err := s.ListCanonicalEvents(ctx, EventFilter{})
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 2 || all[0].ID != older.ID {
				t.Fatalf("expected chronological order, got %d events", len(all))
			}

			since := pubDate.Add(-24 * time.Hour)
			recent, _ := s.ListCanonicalEvents(ctx, EventFilter{Since: &since})
			if len(recent) != 1 || recent[0].ID != newer.ID {
				t.Errorf("time filter failed: %v", recent)
			}

			bills, _ := s.ListCanonicalEvents(ctx, EventFilter{SourceTypes: []string{"bill"}})
			if len(bills) != 1 || bills[0].SourceType != "bill" {
				t.Errorf("source filter failed: %v", bills)
			}

			flagged, _ := s.ListCanonicalEvents(ctx, EventFilter{FlaggedOnly: true})
			if len(flagged) != 1 || flagged[0].MatchedSignals[0] != "subpoena" {
				t.Errorf("flag filter failed: %v", flagged)
			}
		})
	}
}

func TestStore_EscalationSignals(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defaults := []model.EscalationSignal{
				{Pattern: "subpoena", Type: model.MatchKeyword, Severity: model.SeverityHigh, Active: true},
				{Pattern: "criminal referral", Type: model.MatchPhrase, Severity: model.SeverityCritical, Active: true},
			}

			n, err := s.SeedEscalationSignals(ctx, defaults)
			if err != nil || n != 2 {
				t.Fatalf("seed: n=%d err=%v", n, err)
			}
			n, _ = s.SeedEscalationSignals(ctx, defaults)
			if n != 0 {
				t.Errorf("second seed should be a no-op, inserted %d", n)
			}

			if err := s.SetEscalationSignalActive(ctx, "subpoena", false); err != nil {
				t.Fatal(err)
			}
			active, _ := s.ListActiveEscalationSignals(ctx)
			if len(active) != 1 || active[0].Pattern != "criminal referral" {
				t.Errorf("unexpected active set: %v", active)
			}

			if err := s.UpsertEscalationSignal(ctx, model.EscalationSignal{
				Pattern: "subpoena", Type: model.MatchKeyword, Severity: model.SeverityCritical, Active: true,
			}); err != nil {
				t.Fatal(err)
			}
			all, _ := s.ListEscalationSignals(ctx)
			if len(all) != 2 {
				t.Fatalf("expected 2 signals, got %d", len(all))
			}
			for _, sig := range all {
				if sig.Pattern == "subpoena" && (sig.Severity != model.SeverityCritical || !sig.Active) {
					t.Errorf("upsert did not update: %+v", sig)
				}
			}

			if err := s.SetEscalationSignalActive(ctx, "unknown", true); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_CompoundSignals(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sig := model.CompoundSignal{
				ID:          "abc123",
				RuleID:      "legislative_oversight",
				Severity:    0.6,
				Narrative:   "gao and bill coverage share disability_benefits",
				WindowHours: 336,
				Members: []model.CompoundMember{
					{SourceType: "gao", EventID: "e1", Title: "Report"},
					{SourceType: "bill", EventID: "e2", Title: "Act"},
				},
				Topics:    []string{"disability_benefits"},
				CreatedAt: pubDate,
			}

			created, err := s.InsertCompoundSignal(ctx, sig)
			if err != nil || !created {
				t.Fatalf("insert: created=%v err=%v", created, err)
			}
			created, _ = s.InsertCompoundSignal(ctx, sig)
			if created {
				t.Error("duplicate compound signal inserted")
			}

			open, _ := s.ListCompoundSignals(ctx, CompoundFilter{OpenOnly: true})
			if len(open) != 1 {
				t.Fatalf("expected 1 open signal, got %d", len(open))
			}
			if diff := cmp.Diff(sig, open[0]); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			if err := s.ResolveCompoundSignal(ctx, sig.ID, pubDate.Add(time.Hour)); err != nil {
				t.Fatal(err)
			}
			open, _ = s.ListCompoundSignals(ctx, CompoundFilter{OpenOnly: true})
			if len(open) != 0 {
				t.Errorf("resolved signal still open")
			}
			if err := s.ResolveCompoundSignal(ctx, "missing", pubDate); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_RunsAndStats(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			last, err := s.LastSuccessfulRun(ctx, "gao")
			if err != nil || last != nil {
				t.Fatalf("expected no prior run, got %v %v", last, err)
			}

			ok := pubDate
			failed := pubDate.Add(time.Hour)
			runs := []model.RunRecord{
				{RunID: "r1", Agent: "gao", StartedAt: ok, FinishedAt: ok, Result: model.AgentResult{Agent: "gao", Status: model.StatusNoData}},
				{RunID: "r2", Agent: "gao", StartedAt: failed, FinishedAt: failed, Result: model.AgentResult{Agent: "gao", Status: model.StatusError, Errors: []string{"boom"}}},
			}
			for _, r := range runs {
				if err := s.RecordRun(ctx, r); err != nil {
					t.Fatal(err)
				}
			}

			last, err = s.LastSuccessfulRun(ctx, "gao")
			if err != nil || last == nil || !last.Equal(ok) {
				t.Errorf("expected last successful run at %v, got %v", ok, last)
			}

			e := testEvent("gao", "https://a/1", "t", pubDate)
			e.IsEscalation = true
			e.Severity = model.SeverityHigh
			s.UpsertCanonicalEvent(ctx, e)
			s.InsertRejected(ctx, model.RejectedEvent{SourceType: "gao", SourceURL: "https://a/2", Reason: model.RejectTemporalIncomplete, FetchedAt: pubDate})
			s.InsertRelatedCoverage(ctx, model.RelatedCoverage{CanonicalEventID: e.ID, SourceType: "news", SourceURL: "https://n/1", Timestamp: pubDate})
			s.InsertRelatedCoverage(ctx, model.RelatedCoverage{CanonicalEventID: e.ID, SourceType: "news", SourceURL: "https://n/1", Timestamp: pubDate})

			stats, err := s.Stats(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if stats.CanonicalEvents != 1 || stats.RejectedEvents != 1 || stats.RelatedCoverage != 1 || stats.Escalations != 1 {
				t.Errorf("unexpected stats: %+v", stats)
			}
			if stats.BySeverity["high"] != 1 || stats.BySourceType["gao"] != 1 {
				t.Errorf("unexpected breakdown: %+v", stats)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), model.StoreConfig{Driver: "mongo"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
