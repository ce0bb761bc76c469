package escalation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/signalwatch/internal/model"
	"github.com/ppiankov/signalwatch/internal/store"
	"gopkg.in/yaml.v3"
)

type signalsFile struct {
	Signals []fileSignal `yaml:"signals"`
}

// fileSignal defaults Active to true when the key is absent
type fileSignal struct {
	Pattern     string          `yaml:"pattern"`
	Type        model.MatchMode `yaml:"type"`
	Severity    model.Severity  `yaml:"severity"`
	Description string          `yaml:"description"`
	Active      *bool           `yaml:"active"`
}

// LoadSignals reads and validates an escalation signal YAML file
func LoadSignals(path string) ([]model.EscalationSignal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signals file: %w", err)
	}
	var f signalsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse signals file: %w", err)
	}

	out := make([]model.EscalationSignal, 0, len(f.Signals))
	for i, fs := range f.Signals {
		s := model.EscalationSignal{
			Pattern:     strings.TrimSpace(fs.Pattern),
			Type:        fs.Type,
			Severity:    fs.Severity,
			Description: fs.Description,
			Active:      fs.Active == nil || *fs.Active,
		}
		if s.Type == "" {
			s.Type = model.MatchKeyword
		}
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Validate checks a signal before it is stored
func Validate(s model.EscalationSignal) error {
	if strings.TrimSpace(s.Pattern) == "" {
		return fmt.Errorf("pattern is empty")
	}
	if s.Type != model.MatchKeyword && s.Type != model.MatchPhrase {
		return fmt.Errorf("unknown match type %q (keyword, phrase)", s.Type)
	}
	if !s.Severity.Valid() {
		return fmt.Errorf("unknown severity %q (critical, high, medium)", s.Severity)
	}
	return nil
}

// Seed installs the default library into an empty store, then upserts any
// signals from path. A file signal an operator has disabled stays disabled.
// It returns how many signals were written.
func Seed(ctx context.Context, s store.Store, path string) (int, error) {
	n, err := s.SeedEscalationSignals(ctx, DefaultSignals())
	if err != nil {
		return 0, fmt.Errorf("seed default signals: %w", err)
	}
	if path == "" {
		return n, nil
	}

	extra, err := LoadSignals(path)
	if err != nil {
		return n, err
	}
	stored, err := s.ListEscalationSignals(ctx)
	if err != nil {
		return n, fmt.Errorf("list signals: %w", err)
	}
	disabled := make(map[string]bool)
	for _, sig := range stored {
		if !sig.Active {
			disabled[sig.Pattern] = true
		}
	}

	for _, sig := range extra {
		if disabled[sig.Pattern] {
			sig.Active = false
		}
		if err := s.UpsertEscalationSignal(ctx, sig); err != nil {
			return n, fmt.Errorf("upsert signal %q: %w", sig.Pattern, err)
		}
		n++
	}
	return n, nil
}
