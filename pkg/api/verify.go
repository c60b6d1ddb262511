package api

import (
	"net/http"
	"time"
)

// verifyResponse is the chain-verification verdict. Verification failures are
// data: the endpoint answers 200 with is_valid=false rather than erroring.
type verifyResponse struct {
	AgentID             string `json:"agent_id"`
	IsValid             bool   `json:"is_valid"`
	EventsChecked       int    `json:"events_checked"`
	FirstInvalidEventID string `json:"first_invalid_event_id,omitempty"`
	ErrorMessage        string `json:"error_message,omitempty"`
}

// archiveVerifyResponse is the primary-vs-archive reconciliation report.
type archiveVerifyResponse struct {
	AgentID          string `json:"agent_id"`
	Date             string `json:"date"`
	IsValid          bool   `json:"is_valid"`
	DBEvents         int    `json:"db_events"`
	ArchiveEvents    int    `json:"archive_events"`
	Mismatches       int    `json:"mismatches"`
	MissingInArchive int    `json:"missing_in_archive"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	agentID := q.Get("agent_id")
	if agentID == "" {
		WriteUnprocessable(w, "agent_id is required")
		return
	}
	if !validAgentID(agentID) {
		WriteUnprocessable(w, "agent_id must contain only letters, numbers, dots, underscores, and hyphens (1-128 chars)")
		return
	}

	from, err := parseTimeParam(q.Get("start_time"), "start_time")
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	to, err := parseTimeParam(q.Get("end_time"), "end_time")
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	result, err := s.verifier.VerifyChain(r.Context(), agentID, from, to)
	if err != nil {
		s.logger.Error("chain verification failed", "agent_id", agentID, "error", err)
		WriteServiceUnavailable(w, "event store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		AgentID:             agentID,
		IsValid:             result.Valid,
		EventsChecked:       result.EventsChecked,
		FirstInvalidEventID: result.FirstInvalidEventID,
		ErrorMessage:        result.ErrorMessage,
	})
}

func (s *Server) handleVerifyArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	agentID := q.Get("agent_id")
	if agentID == "" {
		WriteUnprocessable(w, "agent_id is required")
		return
	}
	if !validAgentID(agentID) {
		WriteUnprocessable(w, "agent_id must contain only letters, numbers, dots, underscores, and hyphens (1-128 chars)")
		return
	}
	rawDate := q.Get("date")

	day, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		// A malformed date yields an invalid report, not a 4xx.
		writeJSON(w, http.StatusOK, archiveVerifyResponse{
			AgentID:      agentID,
			Date:         rawDate,
			ErrorMessage: "Invalid date format. Use YYYY-MM-DD.",
		})
		return
	}

	report, err := s.reconciler.Reconcile(r.Context(), agentID, day)
	if err != nil {
		s.logger.Error("reconciliation failed", "agent_id", agentID, "date", rawDate, "error", err)
		WriteServiceUnavailable(w, "reconciliation unavailable")
		return
	}

	writeJSON(w, http.StatusOK, archiveVerifyResponse{
		AgentID:          report.AgentID,
		Date:             report.Date,
		IsValid:          report.Valid,
		DBEvents:         report.DBEvents,
		ArchiveEvents:    report.ArchiveEvents,
		Mismatches:       report.Mismatches,
		MissingInArchive: report.MissingInArchive,
		ErrorMessage:     report.ErrorMessage,
	})
}
