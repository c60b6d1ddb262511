//go:build property
// +build property

package canonical_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/actionledger/core/pkg/canonical"
)

func hexOf(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fieldsFrom(eventID, agentID, actionType, toolName string, unixMicros int64) canonical.Fields {
	return canonical.Fields{
		EventID:           eventID,
		AgentID:           agentID,
		ActionType:        actionType,
		ToolName:          optional(toolName),
		Timestamp:         time.UnixMicro(unixMicros).UTC(),
		InputHash:         hexOf("in:" + eventID),
		OutputHash:        hexOf("out:" + eventID),
		PreviousEventHash: optional(hexOf("prev:" + agentID)),
	}
}

func TestCanonicalEncodingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	micros := gen.Int64Range(0, 4102444800000000) // up to year 2100

	properties.Property("encoding is deterministic", prop.ForAll(
		func(eventID, agentID, actionType, toolName string, ts int64) bool {
			f := fieldsFrom(eventID, agentID, actionType, toolName, ts)
			a := canonical.Encode(f)
			b := canonical.Encode(f)
			return string(a) == string(b) && canonical.Hash(f) == canonical.Hash(f)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), micros,
	))

	properties.Property("encoding matches RFC 8785 transform", prop.ForAll(
		func(eventID, agentID, actionType, toolName string, ts int64) bool {
			f := fieldsFrom(eventID, agentID, actionType, toolName, ts)
			obj := map[string]any{
				"event_id":            f.EventID,
				"agent_id":            f.AgentID,
				"action_type":         f.ActionType,
				"tool_name":           f.ToolName,
				"timestamp":           canonical.NormalizeTimestamp(f.Timestamp),
				"environment":         f.Environment,
				"model_version":       f.ModelVersion,
				"prompt_version":      f.PromptVersion,
				"input_hash":          f.InputHash,
				"output_hash":         f.OutputHash,
				"previous_event_hash": f.PreviousEventHash,
			}
			raw, err := json.Marshal(obj)
			if err != nil {
				return false
			}
			oracle, err := jcs.Transform(raw)
			if err != nil {
				return false
			}
			return string(oracle) == string(canonical.Encode(f))
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), micros,
	))

	properties.Property("any field change changes the hash", prop.ForAll(
		func(eventID, agentID, actionType string, ts int64) bool {
			f := fieldsFrom(eventID, agentID, actionType, "", ts)
			mutated := f
			mutated.ActionType = f.ActionType + "x"
			return canonical.Hash(f) != canonical.Hash(mutated)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(), micros,
	))

	properties.TestingRun(t)
}
