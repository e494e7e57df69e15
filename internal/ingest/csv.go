package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Required CSV header columns.
const (
	csvTimestampColumn = "Timestamp"
	csvDeviceColumn    = "DeviceID"
)

// csvLayout describes where each field lives in a CSV row.
type csvLayout struct {
	timestamp  int
	device     int
	state      int // -1 when absent
	categories []csvColumn
}

type csvColumn struct {
	index int
	label string
}

// ParseCSV streams tuples from a CSV payload with a header row.
//
// The header must contain Timestamp (epoch seconds) and DeviceID; an optional
// estado column (any case) carries the row's state. Every other column is a
// category. A row with a bad timestamp or empty device is skipped; an empty
// or non-numeric cell skips only that category.
func (p *Parser) ParseCSV(r io.Reader) iter.Seq2[RawTuple, error] {
	return func(yield func(RawTuple, error) bool) {
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = true

		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			yield(RawTuple{}, fmt.Errorf("%w: empty csv payload", ErrMalformedPayload))
			return
		}
		if err != nil {
			yield(RawTuple{}, csvReadError("reading csv header", err))
			return
		}

		layout, err := p.csvLayout(header)
		if err != nil {
			yield(RawTuple{}, err)
			return
		}

		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				p.skip(SkipInvalidRecord, "line", parseErr.StartLine, "error", parseErr.Err)
				continue
			}
			if err != nil {
				yield(RawTuple{}, fmt.Errorf("reading csv: %w", err))
				return
			}

			line, _ := reader.FieldPos(0)
			if !p.emitCSVRow(layout, record, line, yield) {
				return
			}
		}
	}
}

// csvLayout locates the required columns and the category columns.
func (p *Parser) csvLayout(header []string) (csvLayout, error) {
	layout := csvLayout{timestamp: -1, device: -1, state: -1}

	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}

		switch {
		case name == csvTimestampColumn:
			layout.timestamp = i
		case name == csvDeviceColumn:
			layout.device = i
		case strings.EqualFold(name, stateLabel):
			layout.state = i
		case Normalize(name) == "":
			p.logger.Debug("ignoring unnamed csv column", "index", i)
		case !p.filter.Allows(name):
			p.metrics.RecordSkip(SkipFilteredCategory)
			p.logger.Debug("csv column rejected by category filter", "label", name)
		default:
			layout.categories = append(layout.categories, csvColumn{index: i, label: name})
		}
	}

	var missing []string
	if layout.timestamp < 0 {
		missing = append(missing, csvTimestampColumn)
	}
	if layout.device < 0 {
		missing = append(missing, csvDeviceColumn)
	}
	if len(missing) > 0 {
		return csvLayout{}, fmt.Errorf("%w: csv header missing required column(s) %s",
			ErrMalformedPayload, strings.Join(missing, ", "))
	}
	return layout, nil
}

// emitCSVRow yields the tuples of one data row. It returns false when the
// consumer stops the iteration.
func (p *Parser) emitCSVRow(layout csvLayout, record []string, line int, yield func(RawTuple, error) bool) bool {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	tsCell := cell(layout.timestamp)
	if tsCell == "" {
		p.skip(SkipMissingTimestamp, "line", line)
		return true
	}
	ts, err := parseEpoch(tsCell)
	if err != nil {
		p.skip(SkipInvalidTimestamp, "line", line, "timestamp", tsCell)
		return true
	}

	device := cell(layout.device)
	if device == "" {
		p.skip(SkipMissingDevice, "line", line)
		return true
	}

	var state *float64
	if v, ok := parseValue(cell(layout.state)); ok {
		state = &v
	}

	for _, col := range layout.categories {
		raw := cell(col.index)
		if raw == "" {
			continue
		}
		value, ok := parseValue(raw)
		if !ok {
			p.skip(SkipInvalidValue, "line", line, "label", col.label)
			continue
		}
		t := RawTuple{Timestamp: ts, DeviceID: device, Label: col.label, Value: value, State: state}
		if !yield(t, nil) {
			return false
		}
	}
	return true
}

// csvReadError classifies an error hit while reading the header.
func csvReadError(op string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %s: %w", ErrMalformedPayload, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
