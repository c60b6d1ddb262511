package ledger_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionledger/core/pkg/archive"
	"github.com/actionledger/core/pkg/ledger"
	"github.com/actionledger/core/pkg/store"
)

func archiveEventForDay(id, agentID string, ts time.Time) *store.Event {
	return &store.Event{
		EventID:    id,
		AgentID:    agentID,
		ActionType: "llm_call",
		Timestamp:  ts,
		InputHash:  strings.Repeat("0", 64),
		OutputHash: strings.Repeat("1", 64),
		EventHash:  strings.Repeat("e", 64),
	}
}

func TestReconcileEmptyDay(t *testing.T) {
	s := newSQLiteStore(t)
	r := ledger.NewReconciler(s, newFileArchive(t))

	report, err := r.Reconcile(context.Background(), "agent-1", time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, "agent-1", report.AgentID)
	assert.Equal(t, "2026-08-24", report.Date)
	assert.Equal(t, 0, report.DBEvents)
	assert.Equal(t, 0, report.ArchiveEvents)
}

func TestReconcileParity(t *testing.T) {
	s := newSQLiteStore(t)
	w := newFileArchive(t)
	a := ledger.NewAppender(s, w, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.Append(ctx, payload("agent-1"))
		require.NoError(t, err)
	}

	report, err := ledger.NewReconciler(s, w).Reconcile(ctx, "agent-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.DBEvents)
	assert.Equal(t, 3, report.ArchiveEvents)
	assert.Zero(t, report.MissingInArchive)
	assert.Zero(t, report.Mismatches)
	assert.Empty(t, report.ErrorMessage)
}

func TestReconcileDetectsMissingArchiveWrites(t *testing.T) {
	s := newSQLiteStore(t)
	w := newFileArchive(t)
	ctx := context.Background()

	// Two appends land in the archive, one happens while it is down.
	healthy := ledger.NewAppender(s, w, quietLogger())
	_, err := healthy.Append(ctx, payload("agent-1"))
	require.NoError(t, err)
	_, err = healthy.Append(ctx, payload("agent-1"))
	require.NoError(t, err)

	broken := ledger.NewAppender(s, failingArchive{}, quietLogger())
	_, err = broken.Append(ctx, payload("agent-1"))
	require.NoError(t, err)

	report, err := ledger.NewReconciler(s, w).Reconcile(ctx, "agent-1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 3, report.DBEvents)
	assert.Equal(t, 2, report.ArchiveEvents)
	assert.Equal(t, 1, report.MissingInArchive)
	assert.Zero(t, report.Mismatches)
	assert.Equal(t, "1 events missing from archive", report.ErrorMessage)
}

func TestReconcileDetectsMismatchedRecord(t *testing.T) {
	root := t.TempDir()
	w, err := archive.NewFileWriter(root)
	require.NoError(t, err)
	s := newSQLiteStore(t)
	a := ledger.NewAppender(s, w, quietLogger())
	ctx := context.Background()

	e, err := a.Append(ctx, payload("agent-1"))
	require.NoError(t, err)

	// Rewrite the archive line with a different event_id under the same hash.
	day := e.Timestamp.UTC().Format("2006-01-02")
	path := filepath.Join(root, "agent-1", day+".jsonl")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec archive.Record
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &rec))
	rec.EventID = "someone-else"
	forged, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(forged, '\n'), 0o644))

	report, err := ledger.NewReconciler(s, w).Reconcile(ctx, "agent-1", e.Timestamp)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.Mismatches)
	assert.Zero(t, report.MissingInArchive)
	assert.Equal(t, "1 hash mismatches", report.ErrorMessage)
}

func TestReconcileIgnoresArchiveOnlyRecords(t *testing.T) {
	s := newSQLiteStore(t)
	w := newFileArchive(t)
	ctx := context.Background()

	// An archive record with no primary counterpart: the primary store is
	// authoritative, so the day still reconciles clean.
	day := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	orphan := archiveEventForDay("orphan", "agent-1", day)
	require.NoError(t, w.WriteEvent(ctx, orphan))

	report, err := ledger.NewReconciler(s, w).Reconcile(ctx, "agent-1", day)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 0, report.DBEvents)
	assert.Equal(t, 1, report.ArchiveEvents)
}

func TestReconcileScopedToDay(t *testing.T) {
	s := newSQLiteStore(t)
	w := newFileArchive(t)
	a := ledger.NewAppender(s, w, quietLogger())
	ctx := context.Background()

	_, err := a.Append(ctx, payload("agent-1"))
	require.NoError(t, err)

	// Yesterday has no events on either side.
	report, err := ledger.NewReconciler(s, w).Reconcile(ctx, "agent-1", time.Now().UTC().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 0, report.DBEvents)
	assert.Equal(t, 0, report.ArchiveEvents)
}
