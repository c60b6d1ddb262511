package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is the production EventStore over PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	tool_name TEXT,
	timestamp TIMESTAMPTZ NOT NULL,
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

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the schema if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

const pgEventColumns = `event_id, agent_id, action_type, tool_name, timestamp, environment, model_version, prompt_version, input_hash, output_hash, previous_event_hash, event_hash`

func (s *PostgresStore) Insert(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO events (` + pgEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.EventID, e.AgentID, e.ActionType, e.ToolName, e.Timestamp.UTC(),
		e.Environment, e.ModelVersion, e.PromptVersion,
		e.InputHash, e.OutputHash, e.PreviousEventHash, e.EventHash,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, eventID string) (*Event, error) {
	query := `SELECT ` + pgEventColumns + ` FROM events WHERE event_id = $1`
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) TipHash(ctx context.Context, agentID string) (*string, error) {
	query := `
		SELECT event_hash FROM events
		WHERE agent_id = $1
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

func (s *PostgresStore) ChainEvents(ctx context.Context, agentID string, from, to *time.Time) ([]*Event, error) {
	query := `SELECT ` + pgEventColumns + ` FROM events WHERE agent_id = $1`
	args := []any{agentID}
	if from != nil {
		args = append(args, from.UTC())
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if to != nil {
		args = append(args, to.UTC())
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	query += " ORDER BY timestamp ASC, event_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresStore) HasEarlier(ctx context.Context, agentID string, ts time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM events WHERE agent_id = $1 AND timestamp < $2)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, agentID, ts.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check earlier events: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter, page, pageSize int) ([]*Event, int, error) {
	where, args := pgFilterClause(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM events` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`SELECT `+pgEventColumns+` FROM events%s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	events, err := collectEvents(rows)
	return events, total, err
}

func (s *PostgresStore) ListAll(ctx context.Context, f Filter) ([]*Event, error) {
	where, args := pgFilterClause(f)
	query := `SELECT ` + pgEventColumns + ` FROM events` + where + ` ORDER BY timestamp ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func pgFilterClause(f Filter) (string, []any) {
	var clauses []string
	var args []any
	if f.AgentID != "" {
		args = append(args, f.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if f.ActionType != "" {
		args = append(args, f.ActionType)
		clauses = append(clauses, fmt.Sprintf("action_type = $%d", len(args)))
	}
	if f.StartTime != nil {
		args = append(args, f.StartTime.UTC())
		clauses = append(clauses, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if f.EndTime != nil {
		args = append(args, f.EndTime.UTC())
		clauses = append(clauses, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var toolName, environment, modelVersion, promptVersion, prevHash sql.NullString
	err := row.Scan(
		&e.EventID, &e.AgentID, &e.ActionType, &toolName, &e.Timestamp,
		&environment, &modelVersion, &promptVersion,
		&e.InputHash, &e.OutputHash, &prevHash, &e.EventHash,
	)
	if err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.ToolName = nullableString(toolName)
	e.Environment = nullableString(environment)
	e.ModelVersion = nullableString(modelVersion)
	e.PromptVersion = nullableString(promptVersion)
	e.PreviousEventHash = nullableString(prevHash)
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	defer func() { _ = rows.Close() }()
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
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

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
