package correlate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/classify"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/store"
	"github.com/sirupsen/logrus"
)

// Options tune an Engine
type Options struct {
	Log logrus.FieldLogger
	Now func() time.Time
}

// Engine derives compound signals from stored canonical events. It runs as a
// single-threaded batch pass after ingestion.
type Engine struct {
	store store.Store
	rules []Rule
	log   logrus.FieldLogger
	now   func() time.Time
}

// Summary reports one correlation pass
type Summary struct {
	Rules   int                    `json:"rules"`
	Found   int                    `json:"found"`
	Created []model.CompoundSignal `json:"created"`
}

// NewEngine creates an engine; nil rules selects DefaultRules
func NewEngine(s store.Store, rules []Rule, opts Options) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{store: s, rules: rules, log: log, now: now}
}

// Rules returns the engine's rule set
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Run evaluates every rule. Signals already stored are re-derived with the
// same id and skipped, so overlapping runs never duplicate a signal.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	now := e.now().UTC()
	summary := Summary{Created: []model.CompoundSignal{}}

	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		signals, err := e.evaluate(ctx, rule, now)
		if err != nil {
			return summary, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		summary.Rules++
		summary.Found += len(signals)

		for _, sig := range signals {
			created, err := e.store.InsertCompoundSignal(ctx, sig)
			if err != nil {
				return summary, fmt.Errorf("store compound signal %s: %w", sig.ID, err)
			}
			if err := e.link(ctx, sig); err != nil {
				return summary, err
			}
			if !created {
				continue
			}
			compoundSignals.WithLabelValues(rule.ID).Inc()
			summary.Created = append(summary.Created, sig)
			e.log.WithFields(logrus.Fields{
				"rule":     rule.ID,
				"signal":   sig.ID,
				"severity": sig.Severity,
				"members":  len(sig.Members),
				"topics":   sig.Topics,
			}).Info("compound signal created")
		}
	}
	return summary, nil
}

// Resolve marks a compound signal resolved by an operator
func (e *Engine) Resolve(ctx context.Context, id string) error {
	if err := e.store.ResolveCompoundSignal(ctx, id, e.now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("compound signal %s: %w", id, err)
		}
		return err
	}
	return nil
}

// link back-references the signal from each member event
func (e *Engine) link(ctx context.Context, sig model.CompoundSignal) error {
	refs := map[string]string{model.CompoundRefKey(sig.ID): sig.RuleID}
	for _, m := range sig.Members {
		err := e.store.MergeCanonicalRefs(ctx, m.EventID, refs)
		if errors.Is(err, store.ErrNotFound) {
			e.log.WithField("event", m.EventID).Warn("compound member no longer stored")
			continue
		}
		if err != nil {
			return fmt.Errorf("link %s to %s: %w", m.EventID, sig.ID, err)
		}
	}
	return nil
}

func (e *Engine) evaluate(ctx context.Context, rule Rule, now time.Time) ([]model.CompoundSignal, error) {
	since := now.Add(-time.Duration(rule.WindowHours) * time.Hour)
	events, err := e.store.ListCanonicalEvents(ctx, store.EventFilter{
		SourceTypes: rule.SourceTypes,
		Since:       &since,
		Until:       &now,
	})
	if err != nil {
		return nil, err
	}

	tagged := make([]taggedEvent, 0, len(events))
	for _, ev := range events {
		tagged = append(tagged, taggedEvent{event: ev, topics: classify.Topics(ev.Title + " " + ev.Summary)})
	}

	if rule.shape() == ShapeDivergence {
		return divergence(rule, tagged, now), nil
	}
	return pairs(rule, tagged, now), nil
}

type taggedEvent struct {
	event  *model.CanonicalEvent
	topics []string
}

func (t taggedEvent) has(topic string) bool {
	for _, x := range t.topics {
		if x == topic {
			return true
		}
	}
	return false
}

func groupBySourceType(events []taggedEvent) (map[string][]taggedEvent, []string) {
	groups := make(map[string][]taggedEvent)
	for _, t := range events {
		groups[t.event.SourceType] = append(groups[t.event.SourceType], t)
	}
	types := make([]string, 0, len(groups))
	for st := range groups {
		types = append(types, st)
	}
	sort.Strings(types)
	return groups, types
}

// pairs emits one signal per pair of source types whose topics overlap
func pairs(rule Rule, events []taggedEvent, now time.Time) []model.CompoundSignal {
	groups, types := groupBySourceType(events)

	var out []model.CompoundSignal
	for i := 0; i < len(types); i++ {
		for j := i + 1; j < len(types); j++ {
			left, right := groups[types[i]], groups[types[j]]

			shared := intersect(topicUnion(left), topicUnion(right))
			var members []taggedEvent
			if len(shared) > 0 {
				members = append(withAnyTopic(left, shared), withAnyTopic(right, shared)...)
			} else if TitleSimilarity(titles(left), titles(right)) >= TitleMatchThreshold {
				shared = []string{TitleMatchTopic}
				members = append(append(members, left...), right...)
			}
			if len(shared) < rule.MinTopicOverlap {
				continue
			}

			sortMembers(members)
			severity := rule.BaseSeverity + rule.TopicOverlapBonus*float64(len(shared)-rule.MinTopicOverlap)
			if anyEscalated(members) {
				severity += rule.EscalationBonus
			}
			narrative := fmt.Sprintf("%s and %s coverage converge on %s within %dh: %s",
				types[i], types[j], strings.Join(shared, ", "), rule.WindowHours, titleList(members))
			out = append(out, newSignal(rule, members, shared, severity, narrative, now))
		}
	}
	return out
}

// divergence emits one signal per (source type, topic) reported by enough
// distinct jurisdictions
func divergence(rule Rule, events []taggedEvent, now time.Time) []model.CompoundSignal {
	groups, types := groupBySourceType(events)

	var out []model.CompoundSignal
	for _, st := range types {
		byTopic := make(map[string][]taggedEvent)
		for _, t := range groups[st] {
			if strings.TrimSpace(t.event.Jurisdiction) == "" {
				continue
			}
			for _, topic := range t.topics {
				byTopic[topic] = append(byTopic[topic], t)
			}
		}

		topics := make([]string, 0, len(byTopic))
		for topic := range byTopic {
			topics = append(topics, topic)
		}
		sort.Strings(topics)

		for _, topic := range topics {
			members := byTopic[topic]
			jurisdictions := distinctJurisdictions(members)
			if len(jurisdictions) < rule.MinDistinctSources {
				continue
			}

			sortMembers(members)
			severity := rule.BaseSeverity + rule.PerSourceBonus*float64(len(jurisdictions)-rule.MinDistinctSources)
			if anyEscalated(members) {
				severity += rule.EscalationBonus
			}
			narrative := fmt.Sprintf("%s reported by %s sources in %d jurisdictions (%s) within %dh: %s",
				topic, st, len(jurisdictions), strings.Join(jurisdictions, ", "), rule.WindowHours, titleList(members))
			out = append(out, newSignal(rule, members, []string{topic}, severity, narrative, now))
		}
	}
	return out
}

// sortMembers orders members oldest first
func sortMembers(members []taggedEvent) {
	sort.SliceStable(members, func(i, j int) bool {
		ti, tj := members[i].event.EffectiveTime(), members[j].event.EffectiveTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return members[i].event.ID < members[j].event.ID
	})
}

func newSignal(rule Rule, members []taggedEvent, topics []string, severity float64, narrative string, now time.Time) model.CompoundSignal {
	ms := make([]model.CompoundMember, 0, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ts := m.event.EffectiveTime()
		ms = append(ms, model.CompoundMember{
			SourceType: m.event.SourceType,
			EventID:    m.event.ID,
			Title:      m.event.Title,
			Timestamp:  &ts,
		})
		ids = append(ids, m.event.ID)
	}

	sorted := append([]string(nil), topics...)
	sort.Strings(sorted)

	return model.CompoundSignal{
		ID:          SignalID(rule.ID, ids, sorted),
		RuleID:      rule.ID,
		Severity:    clamp(severity),
		Narrative:   narrative,
		WindowHours: rule.WindowHours,
		Members:     ms,
		Topics:      sorted,
		CreatedAt:   now,
	}
}

// SignalID derives a compound signal id from its rule, member ids and topics.
// Input order does not matter.
func SignalID(ruleID string, memberIDs, topics []string) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	ts := append([]string(nil), topics...)
	sort.Strings(ts)

	sum := sha256.Sum256([]byte(ruleID + "|" + strings.Join(ids, ",") + "|" + strings.Join(ts, ",")))
	return hex.EncodeToString(sum[:])[:32]
}

func clamp(v float64) float64 {
	v = math.Round(v*100) / 100
	return math.Max(0, math.Min(1, v))
}

func topicUnion(events []taggedEvent) map[string]bool {
	set := make(map[string]bool)
	for _, t := range events {
		for _, topic := range t.topics {
			set[topic] = true
		}
	}
	return set
}

func intersect(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if b[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func withAnyTopic(events []taggedEvent, topics []string) []taggedEvent {
	var out []taggedEvent
	for _, t := range events {
		for _, topic := range topics {
			if t.has(topic) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func titles(events []taggedEvent) []string {
	out := make([]string, 0, len(events))
	for _, t := range events {
		out = append(out, t.event.Title)
	}
	return out
}

func anyEscalated(events []taggedEvent) bool {
	for _, t := range events {
		if t.event.IsEscalation {
			return true
		}
	}
	return false
}

func distinctJurisdictions(events []taggedEvent) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range events {
		j := strings.ToUpper(strings.TrimSpace(t.event.Jurisdiction))
		if j != "" && !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	sort.Strings(out)
	return out
}

// titleList quotes up to three member titles
func titleList(events []taggedEvent) string {
	const limit = 3
	var parts []string
	for i, t := range events {
		if i == limit {
			break
		}
		parts = append(parts, fmt.Sprintf("%q", t.event.Title))
	}
	s := strings.Join(parts, "; ")
	if len(events) > limit {
		s += fmt.Sprintf(" (+%d more)", len(events)-limit)
	}
	return s
}
