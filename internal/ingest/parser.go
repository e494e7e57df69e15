package ingest

import (
	"fmt"
	"io"
	"iter"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/metrics"
	"github.com/nerrad567/sensorhub-core/internal/measurement"
)

// Format identifies a payload encoding.
type Format string

// Supported payload formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Skip reasons reported to the records_skipped_total metric.
const (
	SkipMissingTimestamp = "missing_timestamp"
	SkipInvalidTimestamp = "invalid_timestamp"
	SkipMissingDevice    = "missing_device"
	SkipMissingData      = "missing_data"
	SkipInvalidValue     = "invalid_value"
	SkipFilteredCategory = "filtered_category"
	SkipInvalidRecord    = "invalid_record"
)

// stateLabel is the field carrying the device status. It is attached to the
// other readings of its record, never stored as a category.
const stateLabel = "estado"

// FormatFromFilename infers the payload format from an upload's file name.
// The extension is matched case-insensitively.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (expected .csv or .json)", ErrUnsupportedFormat, name)
	}
}

// RawTuple is one validated reading produced by the parser.
//
// Timestamp is UTC, DeviceID is non-empty and Value is finite.
type RawTuple struct {
	Timestamp time.Time
	DeviceID  string
	Label     string
	Value     float64
	State     *float64
}

// Measurement converts the tuple into its stored form.
func (t RawTuple) Measurement() measurement.Measurement {
	return measurement.Measurement{
		Timestamp:        t.Timestamp,
		DeviceID:         t.DeviceID,
		Category:         Normalize(t.Label),
		CategoryOriginal: t.Label,
		Value:            t.Value,
		State:            t.State,
	}
}

// Logger is the logging interface used by the ingest package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ParserOptions configures a Parser.
type ParserOptions struct {
	// Filter selects which category labels are kept. Zero value keeps all.
	Filter CategoryFilter

	// Logger receives one debug line per skipped record. Optional.
	Logger Logger

	// Metrics counts skipped records by reason. Optional.
	Metrics *metrics.Metrics
}

// Parser turns CSV or JSON payloads into lazy sequences of RawTuple.
//
// Malformed individual records are skipped and logged; only a payload that
// cannot be read at all ends the sequence with an error. Sequences are
// single-pass and pull-driven by the consumer.
type Parser struct {
	filter  CategoryFilter
	logger  Logger
	metrics *metrics.Metrics
}

// NewParser creates a parser.
func NewParser(opts ParserOptions) *Parser {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Parser{
		filter:  opts.Filter,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Parse dispatches to ParseCSV or ParseJSON.
func (p *Parser) Parse(format Format, r io.Reader) iter.Seq2[RawTuple, error] {
	switch format {
	case FormatCSV:
		return p.ParseCSV(r)
	case FormatJSON:
		return p.ParseJSON(r)
	default:
		return func(yield func(RawTuple, error) bool) {
			yield(RawTuple{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format))
		}
	}
}

// skip logs and counts a dropped record.
func (p *Parser) skip(reason string, args ...any) {
	p.metrics.RecordSkip(reason)
	p.logger.Debug("record skipped", append([]any{"reason", reason}, args...)...)
}

// maxEpoch bounds accepted timestamps to keep float conversion exact.
const maxEpoch = 1 << 53

// parseEpoch parses epoch seconds as UTC. Integral floats such as
// "1700000000.0" are accepted; fractional seconds are not.
func parseEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.Abs(f) > maxEpoch {
			return time.Time{}, fmt.Errorf("invalid epoch seconds %q", s)
		}
		sec = int64(f)
	}
	return time.Unix(sec, 0).UTC(), nil
}

// parseValue parses a finite float reading.
func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
