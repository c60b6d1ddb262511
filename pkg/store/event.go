// Package store implements the authoritative event store for the action
// ledger: an append-only, hash-chained collection of agent events over SQL.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/actionledger/core/pkg/canonical"
)

var (
	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("event not found")
	// ErrConflict is returned on a uniqueness violation (event_id or
	// event_hash). Retrying the same row is unsafe; callers must regenerate.
	ErrConflict = errors.New("event already exists")
)

// Event is a single immutable ledger record. Once persisted no field is ever
// mutated; the chain links events of one agent through PreviousEventHash.
type Event struct {
	EventID           string    `json:"event_id"`
	AgentID           string    `json:"agent_id"`
	ActionType        string    `json:"action_type"`
	ToolName          *string   `json:"tool_name"`
	Timestamp         time.Time `json:"timestamp"`
	Environment       *string   `json:"environment"`
	ModelVersion      *string   `json:"model_version"`
	PromptVersion     *string   `json:"prompt_version"`
	InputHash         string    `json:"input_hash"`
	OutputHash        string    `json:"output_hash"`
	PreviousEventHash *string   `json:"previous_event_hash"`
	EventHash         string    `json:"event_hash"`
}

// CanonicalFields returns the hashable view of the event.
func (e *Event) CanonicalFields() canonical.Fields {
	return canonical.Fields{
		EventID:           e.EventID,
		AgentID:           e.AgentID,
		ActionType:        e.ActionType,
		ToolName:          e.ToolName,
		Timestamp:         e.Timestamp,
		Environment:       e.Environment,
		ModelVersion:      e.ModelVersion,
		PromptVersion:     e.PromptVersion,
		InputHash:         e.InputHash,
		OutputHash:        e.OutputHash,
		PreviousEventHash: e.PreviousEventHash,
	}
}

// Filter narrows event queries. Nil/empty fields match everything.
type Filter struct {
	AgentID    string
	ActionType string
	StartTime  *time.Time
	EndTime    *time.Time
}

// EventStore is the primary durable store for events. Only the append
// coordinator writes; every other component reads.
type EventStore interface {
	// Insert persists a new event. Returns ErrConflict when event_id or
	// event_hash collides with an existing row.
	Insert(ctx context.Context, e *Event) error

	// Get retrieves a single event by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, eventID string) (*Event, error)

	// TipHash returns the event_hash of the most recent event for the agent
	// under (timestamp desc, event_id desc) ordering, or nil for a new chain.
	TipHash(ctx context.Context, agentID string) (*string, error)

	// ChainEvents returns the agent's events with timestamps inside the
	// inclusive [from, to] range, ordered (timestamp asc, event_id asc).
	// Nil bounds are open.
	ChainEvents(ctx context.Context, agentID string, from, to *time.Time) ([]*Event, error)

	// HasEarlier reports whether any event for the agent precedes ts.
	HasEarlier(ctx context.Context, agentID string, ts time.Time) (bool, error)

	// List returns one page of filtered events ordered by timestamp
	// descending, plus the total match count.
	List(ctx context.Context, f Filter, page, pageSize int) ([]*Event, int, error)

	// ListAll returns every filtered event ordered by timestamp ascending.
	ListAll(ctx context.Context, f Filter) ([]*Event, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	Close() error
}
