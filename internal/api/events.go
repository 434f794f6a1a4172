package api

import (
	"net/http"
	"strconv"
)

// handleListEvents returns recent connection events from the audit log.
// Returns 404 when the audit log is not enabled.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log is not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "failed to read audit log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": entries,
		"count":  len(entries),
	})
}
