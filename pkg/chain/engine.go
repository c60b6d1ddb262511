// Package chain computes and verifies the per-agent hash chains of the ledger.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/actionledger/core/pkg/canonical"
	"github.com/actionledger/core/pkg/store"
)

// ComputeEventHash returns the lowercase hex SHA-256 over the canonical
// encoding of the hashable fields. The previous event hash is part of the
// input, which is what links the chain.
func ComputeEventHash(f canonical.Fields) string {
	return canonical.Hash(f)
}

// VerifyEvent reports whether the stored event hash matches the hash
// recomputed from the event's content.
func VerifyEvent(e *store.Event) bool {
	return ComputeEventHash(e.CanonicalFields()) == e.EventHash
}

// Result is the outcome of a chain verification. Verification failures are
// data, not errors: a broken chain still yields a Result.
type Result struct {
	Valid               bool
	EventsChecked       int
	FirstInvalidEventID string
	ErrorMessage        string
}

// Verifier walks stored chains and checks content hashes and linkage.
type Verifier struct {
	store store.EventStore
}

func NewVerifier(s store.EventStore) *Verifier {
	return &Verifier{store: s}
}

// VerifyChain verifies the agent's events inside the inclusive [from, to]
// range, ordered (timestamp asc, event_id asc).
//
// With no from bound the walk runs in full-chain mode: the first event must be
// the genesis unless an earlier event exists in the store. With a from bound
// the window is anchored on the first event's own claimed predecessor.
func (v *Verifier) VerifyChain(ctx context.Context, agentID string, from, to *time.Time) (Result, error) {
	events, err := v.store.ChainEvents(ctx, agentID, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("verify chain: %w", err)
	}
	if len(events) == 0 {
		return Result{Valid: true}, nil
	}

	var expectedPrev *string
	if from != nil {
		expectedPrev = events[0].PreviousEventHash
	}

	checked := 0
	for i, e := range events {
		checked++

		if !VerifyEvent(e) {
			return Result{
				EventsChecked:       checked,
				FirstInvalidEventID: e.EventID,
				ErrorMessage:        fmt.Sprintf("event hash mismatch for event %s", e.EventID),
			}, nil
		}

		if i == 0 && from == nil {
			if e.PreviousEventHash != nil {
				// Tolerated if an earlier event exists: this window simply
				// does not start at the genesis.
				earlier, err := v.store.HasEarlier(ctx, agentID, e.Timestamp)
				if err != nil {
					return Result{}, fmt.Errorf("verify chain: %w", err)
				}
				if !earlier {
					return Result{
						EventsChecked:       checked,
						FirstInvalidEventID: e.EventID,
						ErrorMessage:        "first event should have no previous hash",
					}, nil
				}
			}
		} else if i > 0 {
			if !hashesEqual(e.PreviousEventHash, expectedPrev) {
				return Result{
					EventsChecked:       checked,
					FirstInvalidEventID: e.EventID,
					ErrorMessage:        "chain broken: previous_event_hash mismatch",
				}, nil
			}
		}

		expectedPrev = &e.EventHash
	}

	return Result{Valid: true, EventsChecked: checked}, nil
}

func hashesEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
