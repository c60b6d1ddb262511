package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pgColumns = strings.Split(pgEventColumns, ", ")

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresInsert(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	e := testEvent("e1", "agent-1", ts)

	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(e.EventID, e.AgentID, e.ActionType, nil, ts,
			nil, nil, nil, e.InputHash, e.OutputHash, nil, e.EventHash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Insert(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	e := testEvent("e1", "agent-1", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	mock.ExpectExec(`INSERT INTO events`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "events_event_hash_key"})

	assert.ErrorIs(t, s.Insert(context.Background(), e), ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertOtherErrorWrapped(t *testing.T) {
	s, mock := newMockStore(t)
	e := testEvent("e1", "agent-1", time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO events`).WillReturnError(boom)

	err := s.Insert(context.Background(), e)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, boom)
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 8, 24, 10, 0, 0, 123456000, time.UTC)

	rows := sqlmock.NewRows(pgColumns).AddRow(
		"e1", "agent-1", "llm_call", "browser", ts,
		nil, nil, nil, strings.Repeat("0", 64), strings.Repeat("1", 64),
		nil, strings.Repeat("a", 64),
	)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+pgEventColumns+` FROM events WHERE event_id = $1`)).
		WithArgs("e1").
		WillReturnRows(rows)

	got, err := s.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.EventID)
	require.NotNil(t, got.ToolName)
	assert.Equal(t, "browser", *got.ToolName)
	assert.Nil(t, got.Environment)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestPostgresGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM events WHERE event_id`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(pgColumns))

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresTipHash(t *testing.T) {
	s, mock := newMockStore(t)

	t.Run("empty chain", func(t *testing.T) {
		mock.ExpectQuery(`SELECT event_hash FROM events`).
			WithArgs("agent-1").
			WillReturnRows(sqlmock.NewRows([]string{"event_hash"}))

		tip, err := s.TipHash(context.Background(), "agent-1")
		require.NoError(t, err)
		assert.Nil(t, tip)
	})

	t.Run("existing tip", func(t *testing.T) {
		want := strings.Repeat("a", 64)
		mock.ExpectQuery(`SELECT event_hash FROM events`).
			WithArgs("agent-1").
			WillReturnRows(sqlmock.NewRows([]string{"event_hash"}).AddRow(want))

		tip, err := s.TipHash(context.Background(), "agent-1")
		require.NoError(t, err)
		require.NotNil(t, tip)
		assert.Equal(t, want, *tip)
	})
}

func TestPostgresHasEarlier(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("agent-1", ts).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	earlier, err := s.HasEarlier(context.Background(), "agent-1", ts)
	require.NoError(t, err)
	assert.True(t, earlier)
}

func TestPostgresListPaginates(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE agent_id = \$1`).
		WithArgs("agent-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	rows := sqlmock.NewRows(pgColumns).AddRow(
		"e7", "agent-1", "llm_call", nil, ts,
		nil, nil, nil, strings.Repeat("0", 64), strings.Repeat("1", 64),
		nil, strings.Repeat("a", 64),
	)
	mock.ExpectQuery(`ORDER BY timestamp DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("agent-1", 1, 2).
		WillReturnRows(rows)

	events, total, err := s.List(context.Background(), Filter{AgentID: "agent-1"}, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, events, 1)
	assert.Equal(t, "e7", events[0].EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresChainEventsWindowPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(`AND timestamp >= \$2 AND timestamp <= \$3 ORDER BY timestamp ASC, event_id ASC`).
		WithArgs("agent-1", from, to).
		WillReturnRows(sqlmock.NewRows(pgColumns))

	events, err := s.ChainEvents(context.Background(), "agent-1", &from, &to)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
