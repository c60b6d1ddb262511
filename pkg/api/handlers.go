package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/actionledger/core/pkg/store"
)

// listResponse is the paginated event listing body.
type listResponse struct {
	Events   []*store.Event `json:"events"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createEvent(w, r)
	case http.MethodGet:
		s.listEvents(w, r)
	default:
		WriteMethodNotAllowed(w)
	}
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var body EventCreate
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		WriteUnprocessable(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	payload, err := body.Validate()
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	event, err := s.appender.Append(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			WriteConflict(w, "event hash or id already exists")
		case errors.Is(err, context.Canceled):
			// Client went away before the lease was acquired.
			return
		default:
			s.logger.Error("append failed", "agent_id", payload.AgentID, "error", err)
			WriteServiceUnavailable(w, "event store unavailable")
		}
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	page, pageSize, err := parsePagination(r)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}

	events, total, err := s.store.List(r.Context(), filter, page, pageSize)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		WriteServiceUnavailable(w, "event store unavailable")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}

	writeJSON(w, http.StatusOK, listResponse{
		Events:   events,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	eventID := strings.TrimPrefix(r.URL.Path, "/events/")
	if eventID == "" || strings.Contains(eventID, "/") {
		WriteNotFound(w, "")
		return
	}

	event, err := s.store.Get(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, fmt.Sprintf("Event %s not found", eventID))
			return
		}
		s.logger.Error("get event failed", "event_id", eventID, "error", err)
		WriteServiceUnavailable(w, "event store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		AgentID:    q.Get("agent_id"),
		ActionType: q.Get("action_type"),
	}
	if f.AgentID != "" && !validAgentID(f.AgentID) {
		return store.Filter{}, fmt.Errorf("agent_id must contain only letters, numbers, dots, underscores, and hyphens (1-128 chars)")
	}

	start, err := parseTimeParam(q.Get("start_time"), "start_time")
	if err != nil {
		return store.Filter{}, err
	}
	end, err := parseTimeParam(q.Get("end_time"), "end_time")
	if err != nil {
		return store.Filter{}, err
	}
	f.StartTime = start
	f.EndTime = end
	return f, nil
}

func parsePagination(r *http.Request) (page, pageSize int, err error) {
	page, pageSize = 1, 50
	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("page must be an integer >= 1")
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 || pageSize > 1000 {
			return 0, 0, fmt.Errorf("page_size must be an integer between 1 and 1000")
		}
	}
	return page, pageSize, nil
}

// parseTimeParam accepts ISO-8601 instants, with or without sub-second digits.
func parseTimeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("%s must be an ISO-8601 timestamp", name)
}
