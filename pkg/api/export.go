package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/actionledger/core/pkg/archive"
	"github.com/actionledger/core/pkg/canonical"
	"github.com/actionledger/core/pkg/store"
)

var csvHeader = []string{
	"event_id",
	"agent_id",
	"action_type",
	"tool_name",
	"timestamp",
	"environment",
	"model_version",
	"prompt_version",
	"input_hash",
	"output_hash",
	"previous_event_hash",
	"event_hash",
}

// handleExport streams a filtered dump of the ledger, ascending by timestamp,
// as a CSV or JSON attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "csv" && format != "json" {
		WriteUnprocessable(w, "format must be csv or json")
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	events, err := s.store.ListAll(r.Context(), filter)
	if err != nil {
		s.logger.Error("export failed", "error", err)
		WriteServiceUnavailable(w, "event store unavailable")
		return
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	if format == "csv" {
		s.exportCSV(w, events, stamp)
		return
	}
	s.exportJSON(w, events, stamp)
}

func (s *Server) exportCSV(w http.ResponseWriter, events []*store.Event, stamp string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=events_export_%s.csv", stamp))

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, e := range events {
		_ = cw.Write([]string{
			e.EventID,
			e.AgentID,
			e.ActionType,
			orEmpty(e.ToolName),
			canonical.NormalizeTimestamp(e.Timestamp),
			orEmpty(e.Environment),
			orEmpty(e.ModelVersion),
			orEmpty(e.PromptVersion),
			e.InputHash,
			e.OutputHash,
			orEmpty(e.PreviousEventHash),
			e.EventHash,
		})
	}
	cw.Flush()
}

func (s *Server) exportJSON(w http.ResponseWriter, events []*store.Event, stamp string) {
	records := make([]archive.Record, 0, len(events))
	for _, e := range events {
		records = append(records, archive.RecordFromEvent(e))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=events_export_%s.json", stamp))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"exported_at":  canonical.NormalizeTimestamp(time.Now()),
		"total_events": len(records),
		"events":       records,
	})
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
