package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/store"
)

// Group is the flagged events sharing one severity
type Group struct {
	Severity model.Severity          `json:"severity"`
	Events   []*model.CanonicalEvent `json:"events"`
}

// Digest summarizes flagged events and compound signals over a range
type Digest struct {
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	GeneratedAt time.Time              `json:"generated_at"`
	Groups      []Group                `json:"groups"`
	Compounds   []model.CompoundSignal `json:"compound_signals"`
	Total       int                    `json:"total_flagged"`
}

// Build collects escalated and deviation events in [start, end], grouped by
// severity with the newest first, plus compound signals created in range
func Build(ctx context.Context, s store.Store, start, end time.Time) (*Digest, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("digest end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	events, err := s.ListCanonicalEvents(ctx, store.EventFilter{Since: &start, Until: &end, FlaggedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list flagged events: %w", err)
	}
	compounds, err := s.ListCompoundSignals(ctx, store.CompoundFilter{Since: &start, Until: &end})
	if err != nil {
		return nil, fmt.Errorf("list compound signals: %w", err)
	}

	bySeverity := make(map[model.Severity][]*model.CanonicalEvent)
	for _, e := range events {
		bySeverity[e.Severity] = append(bySeverity[e.Severity], e)
	}

	d := &Digest{
		Start:       start.UTC(),
		End:         end.UTC(),
		GeneratedAt: time.Now().UTC(),
		Groups:      []Group{},
		Compounds:   compounds,
		Total:       len(events),
	}
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityNone} {
		group := bySeverity[sev]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].EffectiveTime().After(group[j].EffectiveTime())
		})
		d.Groups = append(d.Groups, Group{Severity: sev, Events: group})
	}

	sort.SliceStable(d.Compounds, func(i, j int) bool {
		return d.Compounds[i].Severity > d.Compounds[j].Severity
	})
	if d.Compounds == nil {
		d.Compounds = []model.CompoundSignal{}
	}
	return d, nil
}

// Via is the channel recorded on events a digest delivered
const Via = "digest"

// MarkSurfaced records every flagged event in d as surfaced through the
// digest. Events surfaced earlier keep their first channel.
func MarkSurfaced(ctx context.Context, s store.Store, d *Digest) (int, error) {
	var ids []string
	for _, g := range d.Groups {
		for _, e := range g.Events {
			ids = append(ids, e.ID)
		}
	}
	n, err := s.MarkSurfaced(ctx, ids, Via, d.GeneratedAt)
	if err != nil {
		return n, fmt.Errorf("mark surfaced: %w", err)
	}
	return n, nil
}

// RenderJSON encodes the digest as indented JSON
func RenderJSON(d *Digest) ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

var markdown = template.Must(template.New("digest").Funcs(template.FuncMap{
	"date":     func(t time.Time) string { return t.Format(time.DateOnly) },
	"label":    severityLabel,
	"join":     strings.Join,
	"pct":      func(v float64) string { return fmt.Sprintf("%.0f%%", v*100) },
	"reason":   reason,
	"whenOf":   func(e *model.CanonicalEvent) string { return e.EffectiveTime().Format(time.DateOnly) },
	"resolved": func(s model.CompoundSignal) bool { return s.ResolvedAt != nil },
}).Parse(`# Signal digest {{date .Start}} to {{date .End}}

{{.Total}} flagged event(s), {{len .Compounds}} compound signal(s).
{{range .Groups}}
## {{label .Severity}}
{{range .Events}}
- **{{.Title}}** ({{.SourceType}}, {{whenOf .}}) {{reason .}}
  {{.SourceURL}}
{{- end}}
{{end}}
{{- if .Compounds}}
## Compound signals
{{range .Compounds}}
- **{{.RuleID}}** severity {{pct .Severity}}{{if resolved .}} (resolved){{end}}: {{.Narrative}}
  topics: {{join .Topics ", "}}
{{- end}}
{{end}}`))

// RenderMarkdown renders the digest as a Markdown document
func RenderMarkdown(d *Digest) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("render digest: %w", err)
	}
	return buf.Bytes(), nil
}

func severityLabel(s model.Severity) string {
	if s == model.SeverityNone {
		return "Deviations"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

func reason(e *model.CanonicalEvent) string {
	var parts []string
	if len(e.MatchedSignals) > 0 {
		parts = append(parts, "matched: "+strings.Join(e.MatchedSignals, ", "))
	}
	if e.IsDeviation && e.DeviationReason != "" {
		parts = append(parts, "deviation: "+e.DeviationReason)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, "; ") + "]"
}
