package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"flightsurety/storage/eventlog"
)

type eventsResponse struct {
	Events []eventlog.Entry `json:"events"`
	// Next is the cursor to pass as ?after= for the following page.
	Next uint64 `json:"next"`
}

// handleListEvents serves GET /v1/events?type=&flightKey=&after=&limit=.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.events == nil {
		http.Error(w, "event archive disabled", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	filter := eventlog.Filter{
		Type:      strings.TrimSpace(query.Get("type")),
		FlightKey: strings.TrimSpace(query.Get("flightKey")),
	}
	if raw := strings.TrimSpace(query.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "after must be an unsigned integer", http.StatusBadRequest)
			return
		}
		filter.AfterSeq = after
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	entries, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list archived events", slog.Any("error", err))
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	resp := eventsResponse{Events: entries, Next: filter.AfterSeq}
	if n := len(entries); n > 0 {
		resp.Next = entries[n-1].Seq
	}
	if resp.Events == nil {
		resp.Events = []eventlog.Entry{}
	}
	_ = json.NewEncoder(w).Encode(resp)
}
