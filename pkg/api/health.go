package api

import (
	"fmt"
	"net/http"
)

// healthResponse reports the database and archive sub-checks. Overall status
// is "healthy" only when both pass; any failure degrades the whole service
// without taking it down.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Archive  string `json:"archive"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	ctx := r.Context()

	database := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		database = fmt.Sprintf("unhealthy: %v", err)
	}

	archiveStatus := "healthy"
	if err := s.archive.CheckHealth(ctx); err != nil {
		archiveStatus = fmt.Sprintf("unhealthy: %v", err)
	} else if s.appender.ArchiveDegraded() {
		archiveStatus = "degraded: last archive write failed"
	}

	status := "healthy"
	if database != "healthy" || archiveStatus != "healthy" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:   status,
		Database: database,
		Archive:  archiveStatus,
	})
}
