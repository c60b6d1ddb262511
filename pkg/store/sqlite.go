package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded EventStore used for development and tests.
//
// Timestamps are stored as fixed-width UTC text so that lexicographic ordering
// in SQL matches chronological ordering at microsecond precision.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	tool_name TEXT,
	timestamp TEXT NOT NULL,
	environment TEXT,
	model_version TEXT,
	prompt_version TEXT,
	input_hash TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	previous_event_hash TEXT,
	event_hash TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_events_agent_id ON events (agent_id);
CREATE INDEX IF NOT EXISTS idx_events_action_type ON events (action_type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
CREATE INDEX IF NOT EXISTS idx_agent_timestamp ON events (agent_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_agent_action ON events (agent_id, action_type);
`

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	// SQLite supports a single writer; one pooled connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return s, nil
}

const sqliteEventColumns = `event_id, agent_id, action_type, tool_name, timestamp, environment, model_version, prompt_version, input_hash, output_hash, previous_event_hash, event_hash`

func (s *SQLiteStore) Insert(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO events (` + sqliteEventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.EventID, e.AgentID, e.ActionType, e.ToolName, sqliteTime(e.Timestamp),
		e.Environment, e.ModelVersion, e.PromptVersion,
		e.InputHash, e.OutputHash, e.PreviousEventHash, e.EventHash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, eventID string) (*Event, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events WHERE event_id = ?`
	e, err := sqliteScanEvent(s.db.QueryRowContext(ctx, query, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *SQLiteStore) TipHash(ctx context.Context, agentID string) (*string, error) {
	query := `
		SELECT event_hash FROM events
		WHERE agent_id = ?
		ORDER BY timestamp DESC, event_id DESC
		LIMIT 1
	`
	var hash string
	err := s.db.QueryRowContext(ctx, query, agentID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tip: %w", err)
	}
	return &hash, nil
}

func (s *SQLiteStore) ChainEvents(ctx context.Context, agentID string, from, to *time.Time) ([]*Event, error) {
	query := `SELECT ` + sqliteEventColumns + ` FROM events WHERE agent_id = ?`
	args := []any{agentID}
	if from != nil {
		query += " AND timestamp >= ?"
		args = append(args, sqliteTime(*from))
	}
	if to != nil {
		query += " AND timestamp <= ?"
		args = append(args, sqliteTime(*to))
	}
	query += " ORDER BY timestamp ASC, event_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	return sqliteCollectEvents(rows)
}

func (s *SQLiteStore) HasEarlier(ctx context.Context, agentID string, ts time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM events WHERE agent_id = ? AND timestamp < ?)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, agentID, sqliteTime(ts)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check earlier events: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter, page, pageSize int) ([]*Event, int, error) {
	where, args := sqliteFilterClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := `SELECT ` + sqliteEventColumns + ` FROM events` + where + ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	events, err := sqliteCollectEvents(rows)
	return events, total, err
}

func (s *SQLiteStore) ListAll(ctx context.Context, f Filter) ([]*Event, error) {
	where, args := sqliteFilterClause(f)
	query := `SELECT ` + sqliteEventColumns + ` FROM events` + where + ` ORDER BY timestamp ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return sqliteCollectEvents(rows)
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqliteFilterClause(f Filter) (string, []any) {
	var clauses []string
	var args []any
	if f.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.ActionType != "" {
		clauses = append(clauses, "action_type = ?")
		args = append(args, f.ActionType)
	}
	if f.StartTime != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, sqliteTime(*f.StartTime))
	}
	if f.EndTime != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, sqliteTime(*f.EndTime))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func sqliteScanEvent(row rowScanner) (*Event, error) {
	var e Event
	var rawTS string
	var toolName, environment, modelVersion, promptVersion, prevHash sql.NullString
	err := row.Scan(
		&e.EventID, &e.AgentID, &e.ActionType, &toolName, &rawTS,
		&environment, &modelVersion, &promptVersion,
		&e.InputHash, &e.OutputHash, &prevHash, &e.EventHash,
	)
	if err != nil {
		return nil, err
	}
	ts, err := time.ParseInLocation(sqliteTimeLayout, rawTS, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("corrupt timestamp %q: %w", rawTS, err)
	}
	e.Timestamp = ts
	e.ToolName = nullableString(toolName)
	e.Environment = nullableString(environment)
	e.ModelVersion = nullableString(modelVersion)
	e.PromptVersion = nullableString(promptVersion)
	e.PreviousEventHash = nullableString(prevHash)
	return &e, nil
}

func sqliteCollectEvents(rows *sql.Rows) ([]*Event, error) {
	defer func() { _ = rows.Close() }()
	var events []*Event
	for rows.Next() {
		e, err := sqliteScanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
