package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ppiankov/signalwatch/internal/model"
)

func TestRebind(t *testing.T) {
	got := rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)")
	want := "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
}

func TestSQLStore_PostgresCompoundInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	s := NewSQLStore(db, DialectPostgres)
	created := time.Unix(1_700_000_000, 0).UTC()
	sig := model.CompoundSignal{
		ID:          "sig-1",
		RuleID:      "legislative_oversight",
		Severity:    0.5,
		Narrative:   "n",
		WindowHours: 336,
		Members:     []model.CompoundMember{{SourceType: "gao", EventID: "e1", Title: "t"}},
		Topics:      []string{"claims_backlog"},
		CreatedAt:   created,
	}

	mock.ExpectExec("INSERT INTO compound_signals .* VALUES \\(\\$1, \\$2, \\$3, \\$4, \\$5, \\$6, \\$7, \\$8, \\$9\\) ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("sig-1", "legislative_oversight", 0.5, "n", 336, sqlmock.AnyArg(), `["claims_backlog"]`, created.UnixMilli(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO compound_signals").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.InsertCompoundSignal(context.Background(), sig)
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}
	ok, err = s.InsertCompoundSignal(context.Background(), sig)
	if err != nil || ok {
		t.Fatalf("conflicting insert should report not created: ok=%v err=%v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_PostgresLastSuccessfulRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	started := time.Unix(1_700_000_000, 0).UTC()
	mock.ExpectQuery("SELECT MAX\\(started_at\\) FROM agent_runs WHERE agent = \\$1 AND status <> \\$2").
		WithArgs("congress", "ERROR").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(started.UnixMilli()))

	s := NewSQLStore(db, DialectPostgres)
	last, err := s.LastSuccessfulRun(context.Background(), "congress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last == nil || !last.Equal(started) {
		t.Errorf("expected %v, got %v", started, last)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStore_PostgresMergeMissingEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM canonical_events WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	s := NewSQLStore(db, DialectPostgres)
	err = s.MergeCanonicalRefs(context.Background(), "missing", map[string]string{"bill": "H.R. 1"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
