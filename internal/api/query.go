package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/sensorhub-core/internal/query"
)

// deviceParam is the query parameter naming the device on read routes.
const deviceParam = "iddevice"

// handleDevices lists every device with stored readings.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.query.Devices(r.Context())
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleCategories lists the category labels stored for ?iddevice=.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.query.Categories(r.Context(), r.URL.Query().Get(deviceParam))
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// handleSeries returns the series table for /data/{category}?iddevice=.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the client escaped the label.
	category := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(category); err == nil {
		category = unescaped
	}
	category = strings.TrimSuffix(category, "/")
	if category == "" {
		writeBadRequest(w, "category is required")
		return
	}

	table, err := s.query.Series(r.Context(), r.URL.Query().Get(deviceParam), category)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, query.ErrDeviceRequired) {
		writeBadRequest(w, "query parameter \""+deviceParam+"\" is required")
		return
	}
	s.logger.Error("query failed",
		"path", r.URL.Path,
		"error", err,
		"request_id", requestID(r.Context()),
	)
	writeInternalError(w, "reading measurements failed")
}
