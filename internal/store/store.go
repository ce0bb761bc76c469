package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an addressed record does not exist
var ErrNotFound = errors.New("not found")

// EventFilter selects canonical events. Time bounds apply to the event's
// effective time (publication timestamp, or creation time when missing).
type EventFilter struct {
	SourceTypes   []string
	Since         *time.Time
	Until         *time.Time
	EscalatedOnly bool
	FlaggedOnly   bool // escalated or deviation
	Limit         int
}

// CompoundFilter selects compound signals by creation time
type CompoundFilter struct {
	OpenOnly bool
	Since    *time.Time
	Until    *time.Time
}

// Store is the persistence contract the pipeline, correlation engine and CLI share.
// Implementations must tolerate concurrent idempotent upserts from several agents.
type Store interface {
	// UpsertCanonicalEvent inserts the event unless its id exists. Canonical
	// references are merged either way. created reports whether a row was added.
	UpsertCanonicalEvent(ctx context.Context, e *model.CanonicalEvent) (created bool, err error)
	// GetCanonicalEvent returns nil, nil when the id is unknown
	GetCanonicalEvent(ctx context.Context, id string) (*model.CanonicalEvent, error)
	// FindByReference returns the earliest event carrying value in its canonical references
	FindByReference(ctx context.Context, value string) (*model.CanonicalEvent, error)
	// MergeCanonicalRefs adds keys that are not yet present; existing keys are kept
	MergeCanonicalRefs(ctx context.Context, eventID string, refs map[string]string) error
	ListCanonicalEvents(ctx context.Context, f EventFilter) ([]*model.CanonicalEvent, error)
	// MarkSurfaced records that events reached an operator through via. Events
	// already surfaced keep their first channel and time; unknown ids are skipped.
	MarkSurfaced(ctx context.Context, ids []string, via string, at time.Time) (int, error)

	InsertRejected(ctx context.Context, r model.RejectedEvent) error
	InsertRelatedCoverage(ctx context.Context, rc model.RelatedCoverage) error
	ListRelatedCoverage(ctx context.Context, eventID string) ([]model.RelatedCoverage, error)

	ListActiveEscalationSignals(ctx context.Context) ([]model.EscalationSignal, error)
	ListEscalationSignals(ctx context.Context) ([]model.EscalationSignal, error)
	UpsertEscalationSignal(ctx context.Context, s model.EscalationSignal) error
	SetEscalationSignalActive(ctx context.Context, pattern string, active bool) error
	// SeedEscalationSignals inserts defaults only when no signal exists yet
	SeedEscalationSignals(ctx context.Context, signals []model.EscalationSignal) (int, error)

	// InsertCompoundSignal is idempotent on the signal id
	InsertCompoundSignal(ctx context.Context, s model.CompoundSignal) (created bool, err error)
	GetCompoundSignal(ctx context.Context, id string) (*model.CompoundSignal, error)
	ListCompoundSignals(ctx context.Context, f CompoundFilter) ([]model.CompoundSignal, error)
	ResolveCompoundSignal(ctx context.Context, id string, at time.Time) error

	RecordRun(ctx context.Context, r model.RunRecord) error
	// LastSuccessfulRun returns the start of the agent's latest non-ERROR run, or nil
	LastSuccessfulRun(ctx context.Context, agent string) (*time.Time, error)

	Stats(ctx context.Context) (model.Stats, error)
	Close() error
}

// Open creates the store selected by cfg and applies the schema
func Open(ctx context.Context, cfg model.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		driver := cfg.Driver
		dsn := cfg.DSN
		if driver == "sqlite" && dsn == "" {
			dsn = "signalwatch.db"
		}

		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
		}

		dialect := DialectPostgres
		if driver == "sqlite" {
			dialect = DialectSQLite
			// single writer avoids SQLITE_BUSY under concurrent agents
			db.SetMaxOpenConns(1)
		}

		s := NewSQLStore(db, dialect)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

func matchesFilter(e *model.CanonicalEvent, f EventFilter) bool {
	if len(f.SourceTypes) > 0 {
		found := false
		for _, st := range f.SourceTypes {
			if st == e.SourceType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	t := e.EffectiveTime()
	if f.Since != nil && t.Before(*f.Since) {
		return false
	}
	if f.Until != nil && t.After(*f.Until) {
		return false
	}
	if f.EscalatedOnly && !e.IsEscalation {
		return false
	}
	if f.FlaggedOnly && !e.IsEscalation && !e.IsDeviation {
		return false
	}
	return true
}

func matchesCompoundFilter(s model.CompoundSignal, f CompoundFilter) bool {
	if f.OpenOnly && s.ResolvedAt != nil {
		return false
	}
	if f.Since != nil && s.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && s.CreatedAt.After(*f.Until) {
		return false
	}
	return true
}
