package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/nerrad567/sensorhub-core/internal/audit"
	"github.com/nerrad567/sensorhub-core/internal/ingest"
)

// Multipart field names accepted for uploads. "ficheiro" is kept for the
// original upload form.
var uploadFields = map[string]bool{"file": true, "ficheiro": true}

// IngestResponse is returned by a successful ingest call.
type IngestResponse struct {
	Message    string `json:"message"`
	Inserted   int64  `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	IngestID   string `json:"ingest_id"`
}

// handleIngest stores an uploaded CSV or JSON payload.
//
// Accepted bodies:
//   - multipart/form-data with a "file" (or "ficheiro") part named *.csv or *.json
//   - application/json
//   - text/csv
//
// The payload is streamed through the parser into the writer; it is never
// held in memory as a whole.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	format, body, err := s.openPayload(r)
	if err != nil {
		s.writeIngestError(w, r, format, ingest.Result{}, err)
		return
	}

	res, err := s.writer.Ingest(r.Context(), s.parser.Parse(format, body))
	if err != nil {
		s.writeIngestError(w, r, format, res, err)
		return
	}

	s.recordIngest(r, format, res, audit.OutcomeSuccess, nil)
	s.logger.Info("payload ingested",
		"ingest_id", res.IngestID,
		"format", format,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"request_id", requestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, IngestResponse{
		Message:    fmt.Sprintf("%d measurements inserted, %d duplicates ignored", res.Inserted, res.Duplicates),
		Inserted:   res.Inserted,
		Duplicates: res.Duplicates,
		IngestID:   res.IngestID,
	})
}

// openPayload resolves the request body and its format.
func (s *Server) openPayload(r *http.Request) (ingest.Format, io.Reader, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, fmt.Errorf("%w: content type %q", ingest.ErrUnsupportedFormat, r.Header.Get("Content-Type"))
	}

	switch mediaType {
	case "multipart/form-data":
		return openUpload(r)
	case "application/json":
		return ingest.FormatJSON, r.Body, nil
	case "text/csv":
		return ingest.FormatCSV, r.Body, nil
	default:
		return "", nil, fmt.Errorf("%w: content type %q", ingest.ErrUnsupportedFormat, mediaType)
	}
}

// openUpload returns the first file part of a multipart body. Parts are read
// in order, so the file is streamed straight from the connection.
func openUpload(r *http.Request) (ingest.Format, io.Reader, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ingest.ErrMalformedPayload, err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", nil, errMissingFile
		}
		if err != nil {
			return "", nil, fmt.Errorf("reading multipart body: %w", err)
		}

		if !uploadFields[part.FormName()] {
			part.Close()
			continue
		}

		format, err := ingest.FormatFromFilename(part.FileName())
		if err != nil {
			return "", nil, err
		}
		return format, part, nil
	}
}

// writeIngestError maps an ingest failure to a status code.
func (s *Server) writeIngestError(w http.ResponseWriter, r *http.Request, format ingest.Format, res ingest.Result, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.recordIngest(r, format, res, audit.OutcomeTooLarge, err)
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit))

	case errors.Is(err, ingest.ErrMalformedPayload),
		errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, errMissingFile):
		s.recordIngest(r, format, res, audit.OutcomeMalformed, err)
		writeBadRequest(w, err.Error())

	case errors.Is(err, context.Canceled):
		s.recordIngest(r, format, res, audit.OutcomeError, err)
		s.logger.Warn("ingest cancelled by client", "request_id", requestID(r.Context()))

	default:
		s.recordIngest(r, format, res, audit.OutcomeError, err)
		s.logger.Error("ingest failed",
			"format", format,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeInternalError(w, "storing measurements failed")
	}
}

// recordIngest counts the call and appends it to the ingest history.
// History failures are logged; they never change the response.
func (s *Server) recordIngest(r *http.Request, format ingest.Format, res ingest.Result, outcome string, cause error) {
	label := string(format)
	if label == "" {
		label = "unknown"
	}
	s.recorder.RecordIngest(label, outcome)

	if s.history == nil {
		return
	}
	entry := &audit.Entry{
		ID:         res.IngestID,
		Format:     label,
		Outcome:    outcome,
		Inserted:   res.Inserted,
		Duplicates: res.Duplicates,
		RequestID:  requestID(r.Context()),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := s.history.Create(context.WithoutCancel(r.Context()), entry); err != nil {
		s.logger.Warn("recording ingest history failed", "ingest_id", entry.ID, "error", err)
	}
}
