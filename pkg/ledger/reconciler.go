package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/actionledger/core/pkg/archive"
	"github.com/actionledger/core/pkg/store"
)

// Report is the outcome of a primary-vs-archive reconciliation for one agent
// and one UTC day.
type Report struct {
	AgentID          string
	Date             string
	Valid            bool
	DBEvents         int
	ArchiveEvents    int
	Mismatches       int
	MissingInArchive int
	ErrorMessage     string
}

// Reconciler cross-checks the primary store against the archive. It alters
// neither store. Events present only in the archive are not reported: the
// primary store is authoritative, though ArchiveEvents still exposes the raw
// count for operators.
type Reconciler struct {
	store   store.EventStore
	archive archive.Writer
}

func NewReconciler(s store.EventStore, w archive.Writer) *Reconciler {
	return &Reconciler{store: s, archive: w}
}

// Reconcile compares every primary event of the agent on the given day with
// the archive file keyed by (agent, day). An event is missing when no archive
// record carries its event_hash; a mismatch when the record exists but names
// a different event_id.
func (r *Reconciler) Reconcile(ctx context.Context, agentID string, day time.Time) (Report, error) {
	day = day.UTC()
	startOfDay := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24*time.Hour - time.Microsecond)

	dbEvents, err := r.store.ChainEvents(ctx, agentID, &startOfDay, &endOfDay)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: load primary events: %w", err)
	}

	records, err := r.archive.ReadEvents(ctx, agentID, day)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: read archive: %w", err)
	}

	byHash := make(map[string]archive.Record, len(records))
	for _, rec := range records {
		byHash[rec.EventHash] = rec
	}

	report := Report{
		AgentID:       agentID,
		Date:          startOfDay.Format("2006-01-02"),
		DBEvents:      len(dbEvents),
		ArchiveEvents: len(records),
	}

	for _, e := range dbEvents {
		rec, ok := byHash[e.EventHash]
		if !ok {
			report.MissingInArchive++
			continue
		}
		if rec.EventID != e.EventID {
			report.Mismatches++
		}
	}

	report.Valid = report.Mismatches == 0 && report.MissingInArchive == 0
	if !report.Valid {
		var parts []string
		if report.MissingInArchive > 0 {
			parts = append(parts, fmt.Sprintf("%d events missing from archive", report.MissingInArchive))
		}
		if report.Mismatches > 0 {
			parts = append(parts, fmt.Sprintf("%d hash mismatches", report.Mismatches))
		}
		report.ErrorMessage = strings.Join(parts, "; ")
	}
	return report, nil
}
