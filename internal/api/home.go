package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/journal"
)

// handleGetHome returns the house layout with a report line per item.
// ?format=text returns the plain-text report instead.
func (s *Server) handleGetHome(w http.ResponseWriter, r *http.Request) {
	if s.home == nil {
		writeUnavailable(w, "home not configured")
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // Best-effort write to response
		w.Write([]byte(s.home.Report()))
		return
	}

	writeJSON(w, http.StatusOK, s.home.Summary())
}

// handleListEvents returns journal events, newest first.
//
// Query parameters: device_id, kind, since (RFC 3339), limit.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "event journal not enabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		DeviceID: q.Get("device_id"),
		Kind:     journal.Kind(q.Get("kind")),
	}

	if filter.Kind != "" && !filter.Kind.Valid() {
		writeBadRequest(w, "unknown event kind: "+string(filter.Kind))
		return
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	events, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing events failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
