package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
)

// Dialect selects placeholder style
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// SQLStore persists to sqlite (modernc) or postgres (lib/pq) through database/sql.
// Queries are written with ? placeholders and rebound for postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database. Call Migrate before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS canonical_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		theme TEXT,
		source_type TEXT NOT NULL,
		source_url TEXT NOT NULL,
		pub_ts BIGINT,
		pub_precision TEXT NOT NULL,
		pub_source TEXT NOT NULL,
		event_ts BIGINT,
		event_precision TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		raw_content TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL DEFAULT '',
		is_escalation INTEGER NOT NULL DEFAULT 0,
		matched_signals TEXT NOT NULL DEFAULT '[]',
		severity TEXT NOT NULL DEFAULT '',
		is_deviation INTEGER NOT NULL DEFAULT 0,
		deviation_reason TEXT NOT NULL DEFAULT '',
		is_surfaced INTEGER NOT NULL DEFAULT 0,
		surfaced_via TEXT NOT NULL DEFAULT '',
		surfaced_at BIGINT,
		ml TEXT,
		fetched_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		effective_ts BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_source_effective ON canonical_events (source_type, effective_ts)`,
	`CREATE TABLE IF NOT EXISTS canonical_refs (
		event_id TEXT NOT NULL,
		ref_key TEXT NOT NULL,
		ref_value TEXT NOT NULL,
		PRIMARY KEY (event_id, ref_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refs_value ON canonical_refs (ref_value)`,
	`CREATE TABLE IF NOT EXISTS rejected_events (
		source_type TEXT NOT NULL,
		source_url TEXT NOT NULL,
		title TEXT NOT NULL,
		attempted_ts BIGINT,
		reason TEXT NOT NULL,
		fetched_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS related_coverage (
		canonical_event_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_url TEXT NOT NULL,
		title TEXT NOT NULL,
		ts BIGINT NOT NULL,
		PRIMARY KEY (canonical_event_id, source_url)
	)`,
	`CREATE TABLE IF NOT EXISTS escalation_signals (
		pattern TEXT PRIMARY KEY,
		match_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS compound_signals (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		severity DOUBLE PRECISION NOT NULL,
		narrative TEXT NOT NULL,
		window_hours INTEGER NOT NULL,
		members TEXT NOT NULL,
		topics TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		resolved_at BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS agent_runs (
		run_id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at BIGINT NOT NULL,
		finished_at BIGINT NOT NULL,
		fetched INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		escalations INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		duplicates INTEGER NOT NULL,
		errors TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_agent ON agent_runs (agent, started_at)`,
}

// Migrate creates tables and indexes if missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	if s.dialect == DialectPostgres {
		return rebind(query)
	}
	return query
}

// rebind rewrites ? placeholders as $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const eventColumns = `id, event_type, theme, source_type, source_url, pub_ts, pub_precision, pub_source,
	event_ts, event_precision, title, summary, raw_content, jurisdiction, is_escalation, matched_signals, severity,
	is_deviation, deviation_reason, is_surfaced, surfaced_via, surfaced_at, ml, fetched_at, created_at,
	updated_at, effective_ts`

func (s *SQLStore) UpsertCanonicalEvent(ctx context.Context, e *model.CanonicalEvent) (bool, error) {
	args, err := eventArgs(e)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`INSERT INTO canonical_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`), args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", e.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	created := affected > 0

	if err := s.mergeRefsTx(ctx, tx, e.ID, e.CanonicalRefs, !created); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return created, nil
}

func (s *SQLStore) mergeRefsTx(ctx context.Context, tx *sql.Tx, eventID string, refs map[string]string, touch bool) error {
	added := int64(0)
	for _, k := range model.SortedKeys(refs) {
		res, err := tx.ExecContext(ctx, s.q(`INSERT INTO canonical_refs (event_id, ref_key, ref_value)
			VALUES (?, ?, ?) ON CONFLICT (event_id, ref_key) DO NOTHING`), eventID, k, refs[k])
		if err != nil {
			return fmt.Errorf("failed to merge reference %s: %w", k, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added += n
	}

	if touch && added > 0 {
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE canonical_events SET updated_at = ? WHERE id = ?`),
			time.Now().UTC().UnixMilli(), eventID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetCanonicalEvent(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM canonical_events WHERE id = ?`), id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadRefs(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLStore) FindByReference(ctx context.Context, value string) (*model.CanonicalEvent, error) {
	var id string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT e.id FROM canonical_refs r
		JOIN canonical_events e ON e.id = r.event_id
		WHERE r.ref_value = ? AND r.ref_key NOT LIKE ?
		ORDER BY e.created_at, e.id LIMIT 1`), value, model.CompoundRefPrefix+"%").Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetCanonicalEvent(ctx, id)
}

func (s *SQLStore) MergeCanonicalRefs(ctx context.Context, eventID string, refs map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM canonical_events WHERE id = ?`), eventID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if err := s.mergeRefsTx(ctx, tx, eventID, refs, true); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListCanonicalEvents(ctx context.Context, f EventFilter) ([]*model.CanonicalEvent, error) {
	var where []string
	var args []any

	if len(f.SourceTypes) > 0 {
		marks := make([]string, len(f.SourceTypes))
		for i, st := range f.SourceTypes {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "source_type IN ("+strings.Join(marks, ", ")+")")
	}
	if f.Since != nil {
		where = append(where, "effective_ts >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.Until != nil {
		where = append(where, "effective_ts <= ?")
		args = append(args, f.Until.UnixMilli())
	}
	if f.EscalatedOnly {
		where = append(where, "is_escalation = 1")
	}
	if f.FlaggedOnly {
		where = append(where, "(is_escalation = 1 OR is_deviation = 1)")
	}

	query := `SELECT ` + eventColumns + ` FROM canonical_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY effective_ts, id"
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}

	var out []*model.CanonicalEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// refs are loaded after the cursor closes; sqlite runs with a single connection
	for _, e := range out {
		if err := s.loadRefs(ctx, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) loadRefs(ctx context.Context, e *model.CanonicalEvent) error {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT ref_key, ref_value FROM canonical_refs WHERE event_id = ?`), e.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	e.CanonicalRefs = make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		e.CanonicalRefs[k] = v
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func eventArgs(e *model.CanonicalEvent) ([]any, error) {
	matched, err := json.Marshal(nonNilStrings(e.MatchedSignals))
	if err != nil {
		return nil, err
	}
	var ml sql.NullString
	if e.ML != nil {
		b, err := json.Marshal(e.ML)
		if err != nil {
			return nil, err
		}
		ml = sql.NullString{String: string(b), Valid: true}
	}
	var theme sql.NullString
	if e.Theme != nil {
		theme = sql.NullString{String: string(*e.Theme), Valid: true}
	}

	return []any{
		e.ID, e.EventType, theme, e.SourceType, e.SourceURL,
		nullMillis(e.PubTimestamp), string(e.PubPrecision), string(e.PubSource),
		nullMillis(e.EventTimestamp), string(e.EventPrecision),
		e.Title, e.Summary, e.RawContent, e.Jurisdiction,
		boolInt(e.IsEscalation), string(matched), string(e.Severity),
		boolInt(e.IsDeviation), e.DeviationReason,
		boolInt(e.IsSurfaced), e.SurfacedVia, nullMillis(e.SurfacedAt),
		ml, e.FetchedAt.UnixMilli(), e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli(),
		e.EffectiveTime().UnixMilli(),
	}, nil
}

func scanEvent(row rowScanner) (*model.CanonicalEvent, error) {
	var (
		e                                    model.CanonicalEvent
		theme, ml                            sql.NullString
		pubTS, eventTS, surfacedAt           sql.NullInt64
		pubPrecision, pubSource, eventPrec   string
		matched, severity                    string
		escalation, deviation, surfaced      int
		fetchedAt, createdAt, updatedAt, eff int64
	)
	err := row.Scan(
		&e.ID, &e.EventType, &theme, &e.SourceType, &e.SourceURL,
		&pubTS, &pubPrecision, &pubSource,
		&eventTS, &eventPrec,
		&e.Title, &e.Summary, &e.RawContent, &e.Jurisdiction,
		&escalation, &matched, &severity,
		&deviation, &e.DeviationReason,
		&surfaced, &e.SurfacedVia, &surfacedAt,
		&ml, &fetchedAt, &createdAt, &updatedAt, &eff,
	)
	if err != nil {
		return nil, err
	}

	if theme.Valid {
		t := model.Theme(theme.String)
		e.Theme = &t
	}
	e.PubTimestamp = fromNullMillis(pubTS)
	e.PubPrecision = model.Precision(pubPrecision)
	e.PubSource = model.Provenance(pubSource)
	e.EventTimestamp = fromNullMillis(eventTS)
	e.EventPrecision = model.Precision(eventPrec)
	e.IsEscalation = escalation != 0
	e.Severity = model.Severity(severity)
	e.IsDeviation = deviation != 0
	e.IsSurfaced = surfaced != 0
	e.SurfacedAt = fromNullMillis(surfacedAt)
	e.FetchedAt = fromMillis(fetchedAt)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)

	if err := json.Unmarshal([]byte(matched), &e.MatchedSignals); err != nil {
		return nil, fmt.Errorf("corrupt matched_signals for %s: %w", e.ID, err)
	}
	if len(e.MatchedSignals) == 0 {
		e.MatchedSignals = nil
	}
	if ml.Valid {
		e.ML = &model.MLAssessment{}
		if err := json.Unmarshal([]byte(ml.String), e.ML); err != nil {
			return nil, fmt.Errorf("corrupt ml assessment for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func (s *SQLStore) InsertRejected(ctx context.Context, r model.RejectedEvent) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO rejected_events
		(source_type, source_url, title, attempted_ts, reason, fetched_at) VALUES (?, ?, ?, ?, ?, ?)`),
		r.SourceType, r.SourceURL, r.Title, nullMillis(r.AttemptedTimestamp), r.Reason, r.FetchedAt.UnixMilli())
	return err
}

func (s *SQLStore) InsertRelatedCoverage(ctx context.Context, rc model.RelatedCoverage) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO related_coverage
		(canonical_event_id, source_type, source_url, title, ts) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (canonical_event_id, source_url) DO NOTHING`),
		rc.CanonicalEventID, rc.SourceType, rc.SourceURL, rc.Title, rc.Timestamp.UnixMilli())
	return err
}

func (s *SQLStore) ListRelatedCoverage(ctx context.Context, eventID string) ([]model.RelatedCoverage, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT canonical_event_id, source_type, source_url, title, ts
		FROM related_coverage WHERE canonical_event_id = ? ORDER BY ts, source_url`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RelatedCoverage
	for rows.Next() {
		var rc model.RelatedCoverage
		var ts int64
		if err := rows.Scan(&rc.CanonicalEventID, &rc.SourceType, &rc.SourceURL, &rc.Title, &ts); err != nil {
			return nil, err
		}
		rc.Timestamp = fromMillis(ts)
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *SQLStore) listSignals(ctx context.Context, activeOnly bool) ([]model.EscalationSignal, error) {
	query := `SELECT pattern, match_type, severity, description, active FROM escalation_signals`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, pattern`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EscalationSignal
	for rows.Next() {
		var sig model.EscalationSignal
		var mode, severity string
		var active int
		if err := rows.Scan(&sig.Pattern, &mode, &severity, &sig.Description, &active); err != nil {
			return nil, err
		}
		sig.Type = model.MatchMode(mode)
		sig.Severity = model.Severity(severity)
		sig.Active = active != 0
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListActiveEscalationSignals(ctx context.Context) ([]model.EscalationSignal, error) {
	return s.listSignals(ctx, true)
}

func (s *SQLStore) ListEscalationSignals(ctx context.Context) ([]model.EscalationSignal, error) {
	return s.listSignals(ctx, false)
}

const upsertSignalSQL = `INSERT INTO escalation_signals (pattern, match_type, severity, description, active, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (pattern) DO UPDATE SET match_type = excluded.match_type, severity = excluded.severity,
	description = excluded.description, active = excluded.active`

func (s *SQLStore) UpsertEscalationSignal(ctx context.Context, sig model.EscalationSignal) error {
	_, err := s.db.ExecContext(ctx, s.q(upsertSignalSQL),
		sig.Pattern, string(sig.Type), string(sig.Severity), sig.Description, boolInt(sig.Active), time.Now().UTC().UnixMilli())
	return err
}

func (s *SQLStore) SetEscalationSignalActive(ctx context.Context, pattern string, active bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE escalation_signals SET active = ? WHERE pattern = ?`), boolInt(active), pattern)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SeedEscalationSignals(ctx context.Context, signals []model.EscalationSignal) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_signals`).Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	now := time.Now().UTC().UnixMilli()
	inserted := 0
	for _, sig := range signals {
		res, err := tx.ExecContext(ctx, s.q(`INSERT INTO escalation_signals
			(pattern, match_type, severity, description, active, created_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (pattern) DO NOTHING`),
			sig.Pattern, string(sig.Type), string(sig.Severity), sig.Description, boolInt(sig.Active), now)
		if err != nil {
			return 0, fmt.Errorf("failed to seed signal %q: %w", sig.Pattern, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, tx.Commit()
}

func (s *SQLStore) InsertCompoundSignal(ctx context.Context, sig model.CompoundSignal) (bool, error) {
	members, err := json.Marshal(sig.Members)
	if err != nil {
		return false, err
	}
	topics, err := json.Marshal(nonNilStrings(sig.Topics))
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO compound_signals
		(id, rule_id, severity, narrative, window_hours, members, topics, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		sig.ID, sig.RuleID, sig.Severity, sig.Narrative, sig.WindowHours, string(members), string(topics),
		sig.CreatedAt.UnixMilli(), nullMillis(sig.ResolvedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert compound signal %s: %w", sig.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const compoundColumns = `id, rule_id, severity, narrative, window_hours, members, topics, created_at, resolved_at`

func scanCompound(row rowScanner) (model.CompoundSignal, error) {
	var sig model.CompoundSignal
	var members, topics string
	var createdAt int64
	var resolvedAt sql.NullInt64
	if err := row.Scan(&sig.ID, &sig.RuleID, &sig.Severity, &sig.Narrative, &sig.WindowHours,
		&members, &topics, &createdAt, &resolvedAt); err != nil {
		return sig, err
	}
	if err := json.Unmarshal([]byte(members), &sig.Members); err != nil {
		return sig, fmt.Errorf("corrupt members for %s: %w", sig.ID, err)
	}
	if err := json.Unmarshal([]byte(topics), &sig.Topics); err != nil {
		return sig, fmt.Errorf("corrupt topics for %s: %w", sig.ID, err)
	}
	sig.CreatedAt = fromMillis(createdAt)
	sig.ResolvedAt = fromNullMillis(resolvedAt)
	return sig, nil
}

func (s *SQLStore) GetCompoundSignal(ctx context.Context, id string) (*model.CompoundSignal, error) {
	sig, err := scanCompound(s.db.QueryRowContext(ctx, s.q(`SELECT `+compoundColumns+` FROM compound_signals WHERE id = ?`), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *SQLStore) ListCompoundSignals(ctx context.Context, f CompoundFilter) ([]model.CompoundSignal, error) {
	var where []string
	var args []any
	if f.OpenOnly {
		where = append(where, "resolved_at IS NULL")
	}
	if f.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, f.Until.UnixMilli())
	}

	query := `SELECT ` + compoundColumns + ` FROM compound_signals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CompoundSignal
	for rows.Next() {
		sig, err := scanCompound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkSurfaced(ctx context.Context, ids []string, via string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks := make([]string, len(ids))
	args := []any{via, at.UnixMilli()}
	for i, id := range ids {
		marks[i] = "?"
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE canonical_events SET is_surfaced = 1, surfaced_via = ?, surfaced_at = ?
		WHERE is_surfaced = 0 AND id IN (`+strings.Join(marks, ", ")+`)`), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLStore) ResolveCompoundSignal(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE compound_signals SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`),
		at.UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	existing, err := s.GetCompoundSignal(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) RecordRun(ctx context.Context, r model.RunRecord) error {
	errs, err := json.Marshal(nonNilStrings(r.Result.Errors))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO agent_runs
		(run_id, agent, status, started_at, finished_at, fetched, processed, escalations, rejected, duplicates, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.RunID, r.Agent, string(r.Result.Status), r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		r.Result.FetchedCount, r.Result.ProcessedCount, r.Result.EscalationCount,
		r.Result.RejectedCount, r.Result.DuplicateCount, string(errs))
	return err
}

func (s *SQLStore) LastSuccessfulRun(ctx context.Context, agent string) (*time.Time, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT MAX(started_at) FROM agent_runs WHERE agent = ? AND status <> ?`),
		agent, string(model.StatusError)).Scan(&last)
	if err != nil {
		return nil, err
	}
	return fromNullMillis(last), nil
}

func (s *SQLStore) Stats(ctx context.Context) (model.Stats, error) {
	stats := model.Stats{
		BySourceType: make(map[string]int),
		BySeverity:   make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM canonical_events`, &stats.CanonicalEvents},
		{`SELECT COUNT(*) FROM rejected_events`, &stats.RejectedEvents},
		{`SELECT COUNT(*) FROM related_coverage`, &stats.RelatedCoverage},
		{`SELECT COUNT(*) FROM compound_signals`, &stats.CompoundSignals},
		{`SELECT COUNT(*) FROM compound_signals WHERE resolved_at IS NULL`, &stats.OpenCompoundSigs},
		{`SELECT COUNT(*) FROM canonical_events WHERE is_escalation = 1`, &stats.Escalations},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return stats, err
		}
	}

	if err := s.groupCount(ctx, `SELECT source_type, COUNT(*) FROM canonical_events GROUP BY source_type`, stats.BySourceType); err != nil {
		return stats, err
	}
	if err := s.groupCount(ctx, `SELECT severity, COUNT(*) FROM canonical_events WHERE is_escalation = 1 GROUP BY severity`, stats.BySeverity); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *SQLStore) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
