package api

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/actionledger/core/pkg/ledger"
)

var (
	// agentIDPattern forbids path separators and traversal sequences;
	// agent_id becomes a directory name in the archive.
	agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
	hexHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// validAgentID reports whether s is a well-formed agent identifier. Applied to
// query parameters as well as bodies: agent_id reaches the filesystem as an
// archive directory name.
func validAgentID(s string) bool {
	return agentIDPattern.MatchString(s)
}

// EventCreate is the append request body.
type EventCreate struct {
	AgentID       string  `json:"agent_id"`
	ActionType    string  `json:"action_type"`
	ToolName      *string `json:"tool_name"`
	Environment   *string `json:"environment"`
	ModelVersion  *string `json:"model_version"`
	PromptVersion *string `json:"prompt_version"`
	InputHash     string  `json:"input_hash"`
	OutputHash    string  `json:"output_hash"`
}

// Validate checks the payload and returns the normalized append request.
// Hashes are lowercased; all other fields pass through untouched.
func (c *EventCreate) Validate() (ledger.NewEvent, error) {
	if !agentIDPattern.MatchString(c.AgentID) {
		return ledger.NewEvent{}, fmt.Errorf("agent_id must contain only letters, numbers, dots, underscores, and hyphens (1-128 chars)")
	}
	if l := len(c.ActionType); l < 1 || l > 100 {
		return ledger.NewEvent{}, fmt.Errorf("action_type must be 1-100 characters")
	}
	if err := checkOptional("tool_name", c.ToolName, 255); err != nil {
		return ledger.NewEvent{}, err
	}
	if err := checkOptional("environment", c.Environment, 100); err != nil {
		return ledger.NewEvent{}, err
	}
	if err := checkOptional("model_version", c.ModelVersion, 100); err != nil {
		return ledger.NewEvent{}, err
	}
	if err := checkOptional("prompt_version", c.PromptVersion, 100); err != nil {
		return ledger.NewEvent{}, err
	}
	if !hexHashPattern.MatchString(c.InputHash) {
		return ledger.NewEvent{}, fmt.Errorf("input_hash must be exactly 64 hexadecimal characters")
	}
	if !hexHashPattern.MatchString(c.OutputHash) {
		return ledger.NewEvent{}, fmt.Errorf("output_hash must be exactly 64 hexadecimal characters")
	}

	return ledger.NewEvent{
		AgentID:       c.AgentID,
		ActionType:    c.ActionType,
		ToolName:      c.ToolName,
		Environment:   c.Environment,
		ModelVersion:  c.ModelVersion,
		PromptVersion: c.PromptVersion,
		InputHash:     strings.ToLower(c.InputHash),
		OutputHash:    strings.ToLower(c.OutputHash),
	}, nil
}

func checkOptional(name string, value *string, maxLen int) error {
	if value == nil {
		return nil
	}
	if len(*value) > maxLen {
		return fmt.Errorf("%s must be at most %d characters", name, maxLen)
	}
	return nil
}
