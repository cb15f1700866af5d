// Package store persists completed calls in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a call id has no stored record.
var ErrNotFound = errors.New("call not found")

// Store wraps SQLite access for call records.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			call_id TEXT PRIMARY KEY,
			caller_id TEXT,
			status TEXT,
			category TEXT,
			priority TEXT,
			severity INTEGER,
			confidence INTEGER,
			standardized_code TEXT,
			urgent_brief TEXT,
			source TEXT,
			transcript TEXT,
			assessment_json TEXT,
			started_at TIMESTAMP,
			ended_at TIMESTAMP,
			dispatch_seconds INTEGER,
			outcome TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_ended ON calls(ended_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CallRecord is the persisted form of a call.
type CallRecord struct {
	CallID           string     `json:"call_id"`
	CallerID         string     `json:"caller_id"`
	Status           string     `json:"status"`
	Category         string     `json:"category"`
	Priority         string     `json:"priority"`
	Severity         int        `json:"severity"`
	Confidence       int        `json:"confidence"`
	StandardizedCode string     `json:"standardized_code"`
	UrgentBrief      string     `json:"urgent_brief"`
	Source           string     `json:"source"`
	Transcript       string     `json:"transcript"`
	AssessmentJSON   string     `json:"assessment_json"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	DispatchSeconds  int        `json:"dispatch_seconds"`
	Outcome          string     `json:"outcome"`
}

const callColumns = `call_id, caller_id, status, category, priority, severity, confidence, standardized_code,
	urgent_brief, source, transcript, assessment_json, started_at, ended_at, dispatch_seconds, outcome`

// SaveCall inserts or replaces a call record.
func (s *Store) SaveCall(ctx context.Context, c CallRecord) error {
	if c.AssessmentJSON == "" {
		c.AssessmentJSON = "{}"
	}
	var ended any
	if c.EndedAt != nil {
		ended = *c.EndedAt
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO calls(`+callColumns+`)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(call_id) DO UPDATE SET caller_id=excluded.caller_id, status=excluded.status,
			category=excluded.category, priority=excluded.priority, severity=excluded.severity,
			confidence=excluded.confidence, standardized_code=excluded.standardized_code,
			urgent_brief=excluded.urgent_brief, source=excluded.source, transcript=excluded.transcript,
			assessment_json=excluded.assessment_json, ended_at=excluded.ended_at,
			dispatch_seconds=excluded.dispatch_seconds, outcome=excluded.outcome`,
		c.CallID, c.CallerID, c.Status, c.Category, c.Priority, c.Severity, c.Confidence, c.StandardizedCode,
		c.UrgentBrief, c.Source, c.Transcript, c.AssessmentJSON, c.StartedAt, ended, c.DispatchSeconds, c.Outcome)
	if err != nil {
		return fmt.Errorf("save call %s: %w", c.CallID, err)
	}
	return nil
}

// GetCall fetches one record by id.
func (s *Store) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id=?`, callID)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return c, err
}

// ListCalls returns the most recently started records first.
func (s *Store) ListCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+callColumns+` FROM calls ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var calls []CallRecord
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// DeleteEndedBefore removes records that ended before cutoff.
func (s *Store) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE ended_at IS NOT NULL AND ended_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAll removes every record.
func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calls`)
	return err
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(sc scanner) (CallRecord, error) {
	var c CallRecord
	var ended sql.NullTime
	err := sc.Scan(&c.CallID, &c.CallerID, &c.Status, &c.Category, &c.Priority, &c.Severity, &c.Confidence,
		&c.StandardizedCode, &c.UrgentBrief, &c.Source, &c.Transcript, &c.AssessmentJSON, &c.StartedAt, &ended,
		&c.DispatchSeconds, &c.Outcome)
	if err != nil {
		return CallRecord{}, err
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return c, nil
}
