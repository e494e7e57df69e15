package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/sensorhub-core/internal/audit"
)

// handleListIngests returns the ingest history, most recent first.
//
// Query parameters: outcome, limit (default 50, max 200), offset.
func (s *Server) handleListIngests(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "ingest history is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Outcome: q.Get("outcome")}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing ingest history failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, "reading ingest history failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
