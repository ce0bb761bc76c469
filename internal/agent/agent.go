package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/sirupsen/logrus"
)

// Agent is the contract every source implements
type Agent interface {
	// Name is the unique, operator-facing agent name
	Name() string

	// SourceType is the source family (gao, oig, bill, press, news, court, ...)
	SourceType() string

	// EventType labels events this agent produces
	EventType() string

	// FetchNew polls for events published after since. A nil since means
	// first run; the agent falls back to its lookback window.
	FetchNew(ctx context.Context, since *time.Time) ([]model.RawEvent, error)

	// Backfill fetches events published within [start, end]
	Backfill(ctx context.Context, start, end time.Time) ([]model.RawEvent, error)

	// ExtractTimestamps derives publication and occurrence timestamps
	ExtractTimestamps(raw model.RawEvent) model.TimestampResult

	// ExtractCanonicalRefs pulls source-specific identifiers (report, bill, case numbers)
	ExtractCanonicalRefs(raw model.RawEvent) map[string]string
}

// Env carries shared collaborators into agent constructors
type Env struct {
	Fetcher         *Fetcher
	Robots          *RobotsChecker // nil disables robots.txt checks
	Log             logrus.FieldLogger
	DefaultLookback time.Duration
	Now             func() time.Time
}

// Base implements the parts of Agent every source shares
type Base struct {
	name         string
	sourceType   string
	eventType    string
	url          string
	dependency   string
	jurisdiction string
	lookback     time.Duration
	refPatterns  []refPattern
	now          func() time.Time
	log          logrus.FieldLogger
}

type refPattern struct {
	key string
	re  *regexp.Regexp
}

// NewBase validates cfg and compiles its reference patterns
func NewBase(cfg model.SourceConfig, env Env) (Base, error) {
	if cfg.Name == "" {
		return Base{}, fmt.Errorf("source has no name")
	}
	if cfg.URL == "" {
		return Base{}, fmt.Errorf("source %s has no url", cfg.Name)
	}
	sourceType := strings.ToLower(strings.TrimSpace(cfg.SourceType))
	if sourceType == "" {
		return Base{}, fmt.Errorf("source %s has no source_type", cfg.Name)
	}

	b := Base{
		name:         cfg.Name,
		sourceType:   sourceType,
		eventType:    cfg.EventType,
		url:          cfg.URL,
		dependency:   cfg.Dependency,
		jurisdiction: cfg.Jurisdiction,
		lookback:     cfg.Lookback,
		now:          env.Now,
		log:          env.Log,
	}
	if b.eventType == "" {
		b.eventType = defaultEventType(sourceType)
	}
	if b.dependency == "" {
		b.dependency = DependencyFor(cfg.URL)
	}
	if b.lookback <= 0 {
		b.lookback = env.DefaultLookback
	}
	if b.lookback <= 0 {
		b.lookback = 7 * 24 * time.Hour
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.log == nil {
		b.log = logrus.StandardLogger()
	}
	b.log = b.log.WithField("agent", cfg.Name)

	patterns := defaultRefPatterns(sourceType)
	for k, v := range cfg.RefPatterns {
		patterns[k] = v
	}
	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		re, err := regexp.Compile(patterns[k])
		if err != nil {
			return Base{}, fmt.Errorf("source %s: invalid ref pattern %s: %w", cfg.Name, k, err)
		}
		b.refPatterns = append(b.refPatterns, refPattern{key: k, re: re})
	}

	return b, nil
}

func (b *Base) Name() string       { return b.name }
func (b *Base) SourceType() string { return b.sourceType }
func (b *Base) EventType() string  { return b.eventType }

// Dependency is the resilience dependency the agent's fetches count against
func (b *Base) Dependency() string { return b.dependency }

// ExtractTimestamps reads the published and event dates the parser recorded,
// falling back to a date embedded in the URL path
func (b *Base) ExtractTimestamps(raw model.RawEvent) model.TimestampResult {
	return extractTimestamps(raw)
}

// ExtractCanonicalRefs combines typed metadata with the configured patterns
func (b *Base) ExtractCanonicalRefs(raw model.RawEvent) map[string]string {
	refs := make(map[string]string)

	if raw.Meta.ReportNumber != "" {
		refs[reportKey(b.sourceType)] = model.NormalizeRef(raw.Meta.ReportNumber)
	}
	if raw.Meta.BillNumber != "" {
		refs["bill"] = model.NormalizeRef(raw.Meta.BillNumber)
	}
	if raw.Meta.CaseNumber != "" {
		refs["court_case"] = model.NormalizeCaseNumber(raw.Meta.CaseNumber)
	}

	text := raw.Title + "\n" + raw.Content + "\n" + raw.SourceURL
	for _, p := range b.refPatterns {
		if _, exists := refs[p.key]; exists {
			continue
		}
		if value, ok := model.FindRef(p.re, text); ok {
			refs[p.key] = value
		}
	}
	return refs
}

// window returns the fetch-new lower bound
func (b *Base) window(since *time.Time) time.Time {
	if since != nil {
		return *since
	}
	return b.now().Add(-b.lookback)
}

// stamp fills fetch time and default jurisdiction
func (b *Base) stamp(events []model.RawEvent) {
	now := b.now().UTC()
	for i := range events {
		events[i].FetchedAt = now
		if events[i].Meta.Jurisdiction == "" {
			events[i].Meta.Jurisdiction = b.jurisdiction
		}
	}
}

// filterSince keeps events published after since, compared at the event's
// own precision: a date-only item published on the cursor's day is kept.
// Events without a readable date are kept so the quality gate can record them.
func filterSince(events []model.RawEvent, since time.Time) []model.RawEvent {
	var out []model.RawEvent
	for _, e := range events {
		ts := extractTimestamps(e)
		if ts.PubTimestamp == nil {
			out = append(out, e)
			continue
		}
		if ts.PubPrecision == model.PrecisionDatetime {
			if ts.PubTimestamp.After(since) {
				out = append(out, e)
			}
			continue
		}
		if !ts.PubTimestamp.Before(truncateTo(since, ts.PubPrecision)) {
			out = append(out, e)
		}
	}
	return out
}

// truncateTo floors t to the start of its day or month in UTC
func truncateTo(t time.Time, p model.Precision) time.Time {
	t = t.UTC()
	switch p {
	case model.PrecisionDate:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case model.PrecisionMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// filterRange keeps events published within [start, end]; undated events are dropped
func filterRange(events []model.RawEvent, start, end time.Time) []model.RawEvent {
	var out []model.RawEvent
	for _, e := range events {
		ts := extractTimestamps(e)
		if ts.PubTimestamp == nil {
			continue
		}
		if ts.PubTimestamp.Before(truncateTo(start, ts.PubPrecision)) || ts.PubTimestamp.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func defaultEventType(sourceType string) string {
	switch sourceType {
	case "gao", "oig", "crs":
		return "report"
	case "bill", "congress":
		return "bill"
	case "hearing":
		return "hearing"
	case "court":
		return "court_opinion"
	case "press":
		return "press_release"
	case "news":
		return "news"
	default:
		return "notice"
	}
}

func reportKey(sourceType string) string {
	switch sourceType {
	case "gao":
		return "gao_report"
	case "oig":
		return "oig_report"
	default:
		return "report_number"
	}
}
