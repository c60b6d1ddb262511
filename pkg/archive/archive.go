// Package archive implements the append-only event archive: one JSON Lines
// file per agent per UTC day, redundant to the primary store and used by the
// reconciler to detect divergence.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/actionledger/core/pkg/canonical"
	"github.com/actionledger/core/pkg/store"
)

// Record is one archived event line. Field order matches append order on disk.
type Record struct {
	EventID           string  `json:"event_id"`
	AgentID           string  `json:"agent_id"`
	ActionType        string  `json:"action_type"`
	ToolName          *string `json:"tool_name"`
	Timestamp         string  `json:"timestamp"`
	Environment       *string `json:"environment"`
	ModelVersion      *string `json:"model_version"`
	PromptVersion     *string `json:"prompt_version"`
	InputHash         string  `json:"input_hash"`
	OutputHash        string  `json:"output_hash"`
	PreviousEventHash *string `json:"previous_event_hash"`
	EventHash         string  `json:"event_hash"`
}

// RecordFromEvent converts a stored event into its archive line form.
func RecordFromEvent(e *store.Event) Record {
	return Record{
		EventID:           e.EventID,
		AgentID:           e.AgentID,
		ActionType:        e.ActionType,
		ToolName:          e.ToolName,
		Timestamp:         canonical.NormalizeTimestamp(e.Timestamp),
		Environment:       e.Environment,
		ModelVersion:      e.ModelVersion,
		PromptVersion:     e.PromptVersion,
		InputHash:         e.InputHash,
		OutputHash:        e.OutputHash,
		PreviousEventHash: e.PreviousEventHash,
		EventHash:         e.EventHash,
	}
}

// Writer is the archive capability. The primary store stays authoritative:
// write failures degrade health but never fail an append.
type Writer interface {
	// WriteEvent appends the event to the archive file for its agent and day.
	WriteEvent(ctx context.Context, e *store.Event) error

	// ReadEvents returns every archived record for the agent on the given
	// UTC day, in file (append) order. A missing file yields an empty slice.
	ReadEvents(ctx context.Context, agentID string, day time.Time) ([]Record, error)

	// CheckHealth verifies the archive is writable.
	CheckHealth(ctx context.Context) error
}

// New selects an archive backend by name. Only the local file backend is
// implemented; the name is threaded through configuration so a remote backend
// can slot in without touching callers.
func New(backend, root string) (Writer, error) {
	switch backend {
	case "", "file":
		return NewFileWriter(root)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", backend)
	}
}
