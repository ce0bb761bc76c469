package escalation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ppiankov/signalwatch/internal/mlscore"
	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/resilience"
	"github.com/ppiankov/signalwatch/internal/store"
	"github.com/sirupsen/logrus"
)

// Result is the escalation verdict for one event
type Result struct {
	IsEscalation   bool
	MatchedSignals []string
	Severity       model.Severity
	ML             *model.MLAssessment
}

type compiledSignal struct {
	signal model.EscalationSignal
	re     *regexp.Regexp // keyword mode only
	phrase string         // phrase mode only
}

// Matcher tests text against a fixed signal set
type Matcher struct {
	signals []compiledSignal
}

// NewMatcher compiles signals. Inactive signals and empty patterns are skipped.
func NewMatcher(signals []model.EscalationSignal) *Matcher {
	m := &Matcher{}
	for _, s := range signals {
		pattern := strings.ToLower(strings.TrimSpace(s.Pattern))
		if !s.Active || pattern == "" {
			continue
		}
		c := compiledSignal{signal: s}
		if s.Type == model.MatchPhrase {
			c.phrase = pattern
		} else {
			c.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(pattern) + `\b`)
		}
		m.signals = append(m.signals, c)
	}
	return m
}

// Match returns the patterns found in the lowercased title and content, in
// signal order, and the highest severity among them
func (m *Matcher) Match(title, content string) ([]string, model.Severity) {
	text := strings.ToLower(title + " " + content)

	var matched []string
	severity := model.SeverityNone
	for _, c := range m.signals {
		var hit bool
		if c.re != nil {
			hit = c.re.MatchString(text)
		} else {
			hit = strings.Contains(text, c.phrase)
		}
		if !hit {
			continue
		}
		matched = append(matched, c.signal.Pattern)
		if c.signal.Severity.Rank() > severity.Rank() {
			severity = c.signal.Severity
		}
	}
	return matched, severity
}

// Len is the number of active signals
func (m *Matcher) Len() int {
	return len(m.signals)
}

// Checker flags escalation-worthy events against the store's active signals
// and optionally asks an ML scorer for a second opinion
type Checker struct {
	store  store.Store
	scorer mlscore.Scorer
	log    logrus.FieldLogger

	mu      sync.RWMutex
	matcher *Matcher
}

// NewChecker creates a checker; scorer may be nil
func NewChecker(s store.Store, scorer mlscore.Scorer, log logrus.FieldLogger) *Checker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Checker{store: s, scorer: scorer, log: log}
}

// Refresh reloads the active signal set. The runner calls it once per agent run.
func (c *Checker) Refresh(ctx context.Context) error {
	signals, err := c.store.ListActiveEscalationSignals(ctx)
	if err != nil {
		return fmt.Errorf("load escalation signals: %w", err)
	}
	m := NewMatcher(signals)

	c.mu.Lock()
	c.matcher = m
	c.mu.Unlock()
	return nil
}

func (c *Checker) current(ctx context.Context) (*Matcher, error) {
	c.mu.RLock()
	m := c.matcher
	c.mu.RUnlock()
	if m != nil {
		return m, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.matcher, nil
}

// Check evaluates one event. A failing or absent scorer never changes the
// pattern verdict; it only leaves Result.ML nil.
func (c *Checker) Check(ctx context.Context, title, content, sourceType string) (Result, error) {
	m, err := c.current(ctx)
	if err != nil {
		return Result{}, err
	}

	matched, severity := m.Match(title, content)
	result := Result{
		IsEscalation:   len(matched) > 0,
		MatchedSignals: matched,
		Severity:       severity,
	}

	if c.scorer != nil {
		a, err := c.scorer.Score(ctx, mlscore.Request{Title: title, Content: content, SourceType: sourceType})
		var open *resilience.CircuitOpenError
		switch {
		case errors.As(err, &open):
			c.log.WithField("scorer", c.scorer.Name()).Debug("ml scorer circuit open, skipping")
		case err != nil:
			c.log.WithError(err).WithField("scorer", c.scorer.Name()).Warn("ml scoring failed")
		default:
			result.ML = a
		}
	}
	return result, nil
}
