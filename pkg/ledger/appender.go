// Package ledger coordinates the append-only write path: per-agent leases,
// hash-chain linkage, primary-store commit, and the dual write to the archive.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/actionledger/core/pkg/archive"
	"github.com/actionledger/core/pkg/canonical"
	"github.com/actionledger/core/pkg/chain"
	"github.com/actionledger/core/pkg/store"
)

// NewEvent is the validated append payload. Timestamps, IDs, and chain hashes
// are never client-supplied; the appender generates them.
type NewEvent struct {
	AgentID       string
	ActionType    string
	ToolName      *string
	Environment   *string
	ModelVersion  *string
	PromptVersion *string
	InputHash     string
	OutputHash    string
}

// Appender extends per-agent chains one event at a time. An exclusive lease
// keyed by agent_id covers tip read, insert, and archive hand-off, so at most
// one append is in flight per agent while appends across agents run in
// parallel.
type Appender struct {
	store   store.EventStore
	archive archive.Writer
	lease   agentLease
	logger  *slog.Logger

	storeTimeout   time.Duration
	archiveTimeout time.Duration

	// archiveDegraded flips on a failed post-commit archive write and is
	// surfaced through health checks; the request itself still succeeds.
	archiveDegraded atomic.Bool
}

// Option configures an Appender.
type Option func(*Appender)

// WithTimeouts bounds the store and archive operations inside the lease.
func WithTimeouts(storeTimeout, archiveTimeout time.Duration) Option {
	return func(a *Appender) {
		a.storeTimeout = storeTimeout
		a.archiveTimeout = archiveTimeout
	}
}

func NewAppender(s store.EventStore, w archive.Writer, logger *slog.Logger, opts ...Option) *Appender {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Appender{
		store:          s,
		archive:        w,
		logger:         logger.With("component", "appender"),
		storeTimeout:   5 * time.Second,
		archiveTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append creates, links, persists, and archives one event.
//
// Cancellation is honored only before the lease is acquired. Once inside the
// critical section the commit and the archive write run to completion or
// failure under bounded timeouts, detached from the caller's context.
func (a *Appender) Append(ctx context.Context, payload NewEvent) (*store.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release := a.lease.acquire(payload.AgentID)
	defer release()

	// Server-assigned identity and instant, stamped inside the lease so that
	// commit order and timestamp order agree per agent. Microsecond precision
	// matches the canonical timestamp layout exactly.
	e := &store.Event{
		EventID:       uuid.New().String(),
		AgentID:       payload.AgentID,
		ActionType:    payload.ActionType,
		ToolName:      payload.ToolName,
		Timestamp:     time.Now().UTC().Truncate(time.Microsecond),
		Environment:   payload.Environment,
		ModelVersion:  payload.ModelVersion,
		PromptVersion: payload.PromptVersion,
		InputHash:     payload.InputHash,
		OutputHash:    payload.OutputHash,
	}

	// Past this point the caller's cancellation no longer applies.
	base := context.WithoutCancel(ctx)

	storeCtx, cancel := context.WithTimeout(base, a.storeTimeout)
	defer cancel()

	prev, err := a.store.TipHash(storeCtx, payload.AgentID)
	if err != nil {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	e.PreviousEventHash = prev
	e.EventHash = chain.ComputeEventHash(e.CanonicalFields())

	if err := a.store.Insert(storeCtx, e); err != nil {
		return nil, err
	}

	// Post-commit dual write. The primary store is authoritative; a failure
	// here degrades health and is later surfaced by the reconciler, but the
	// committed event stands.
	archiveCtx, cancelArchive := context.WithTimeout(base, a.archiveTimeout)
	defer cancelArchive()
	if err := a.archive.WriteEvent(archiveCtx, e); err != nil {
		a.archiveDegraded.Store(true)
		a.logger.Error("archive write failed",
			"agent_id", e.AgentID,
			"event_id", e.EventID,
			"date", canonical.NormalizeTimestamp(e.Timestamp)[:10],
			"error", err,
		)
	} else {
		a.archiveDegraded.Store(false)
	}

	return e, nil
}

// ArchiveDegraded reports whether the most recent archive write failed.
func (a *Appender) ArchiveDegraded() bool {
	return a.archiveDegraded.Load()
}
