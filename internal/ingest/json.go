package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
)

// Accepted JSON field names. The first entry is canonical and wins when an
// object carries more than one spelling.
var (
	jsonTimestampKeys = []string{"timestamp", "Timestamp"}
	jsonDeviceKeys    = []string{"deviceid", "Deviceid", "DeviceID"}
	jsonStateKeys     = []string{"estado", "Estado"}
)

const jsonDataKey = "data"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type jsonField struct {
	key   string
	value json.RawMessage
}

// ParseJSON streams tuples from a JSON payload holding one object or an array
// of objects:
//
//	{"timestamp": 1700000000, "deviceid": "station01", "estado": 1,
//	 "data": {"Temperature(C)": 21.5, "Humidity(%)": "40"}}
//
// Array elements are decoded one at a time. An object with a missing or
// invalid timestamp or device is skipped; a non-numeric data value skips
// only that category. Syntax errors end the sequence with
// ErrMalformedPayload.
func (p *Parser) ParseJSON(r io.Reader) iter.Seq2[RawTuple, error] {
	return func(yield func(RawTuple, error) bool) {
		br := bufio.NewReader(r)
		first, err := peekValueStart(br)
		if errors.Is(err, io.EOF) {
			yield(RawTuple{}, fmt.Errorf("%w: empty json payload", ErrMalformedPayload))
			return
		}
		if err != nil {
			yield(RawTuple{}, fmt.Errorf("reading json: %w", err))
			return
		}

		dec := json.NewDecoder(br)

		switch first {
		case '[':
			if _, err := dec.Token(); err != nil {
				yield(RawTuple{}, jsonError(err))
				return
			}
			for index := 0; dec.More(); index++ {
				var obj map[string]json.RawMessage
				err := dec.Decode(&obj)
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &typeErr) {
					p.skip(SkipInvalidRecord, "index", index, "error", err)
					continue
				}
				if err != nil {
					yield(RawTuple{}, jsonError(err))
					return
				}
				if !p.emitJSONObject(obj, index, yield) {
					return
				}
			}
			if _, err := dec.Token(); err != nil {
				yield(RawTuple{}, jsonError(err))
				return
			}
		case '{':
			var obj map[string]json.RawMessage
			if err := dec.Decode(&obj); err != nil {
				yield(RawTuple{}, jsonError(err))
				return
			}
			if !p.emitJSONObject(obj, 0, yield) {
				return
			}
		default:
			yield(RawTuple{}, fmt.Errorf("%w: expected a json object or array, got %q", ErrMalformedPayload, first))
			return
		}

		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			yield(RawTuple{}, fmt.Errorf("%w: unexpected data after json value", ErrMalformedPayload))
		}
	}
}

// emitJSONObject yields the tuples of one object. It returns false when the
// consumer stops the iteration.
func (p *Parser) emitJSONObject(obj map[string]json.RawMessage, index int, yield func(RawTuple, error) bool) bool {
	if obj == nil {
		p.skip(SkipInvalidRecord, "index", index)
		return true
	}

	rawTS, ok := lookup(obj, jsonTimestampKeys)
	if !ok {
		p.skip(SkipMissingTimestamp, "index", index)
		return true
	}
	ts, ok := jsonEpoch(rawTS)
	if !ok {
		p.skip(SkipInvalidTimestamp, "index", index, "timestamp", string(rawTS))
		return true
	}

	rawDevice, _ := lookup(obj, jsonDeviceKeys)
	device, _ := jsonScalar(rawDevice)
	if device == "" {
		p.skip(SkipMissingDevice, "index", index)
		return true
	}

	rawData, ok := obj[jsonDataKey]
	if !ok {
		p.skip(SkipMissingData, "index", index)
		return true
	}
	fields, err := orderedFields(rawData)
	if err != nil {
		p.skip(SkipMissingData, "index", index, "error", err)
		return true
	}

	var state *float64
	if raw, ok := lookup(obj, jsonStateKeys); ok {
		state = jsonState(raw)
	}
	if state == nil {
		for _, f := range fields {
			if strings.EqualFold(strings.TrimSpace(f.key), stateLabel) {
				state = jsonState(f.value)
				break
			}
		}
	}

	for _, f := range fields {
		label := strings.TrimSpace(f.key)
		if strings.EqualFold(label, stateLabel) || Normalize(label) == "" {
			continue
		}
		if !p.filter.Allows(label) {
			p.skip(SkipFilteredCategory, "index", index, "label", label)
			continue
		}

		raw, _ := jsonScalar(f.value)
		if raw == "" {
			continue
		}
		value, ok := parseValue(raw)
		if !ok {
			p.skip(SkipInvalidValue, "index", index, "label", label)
			continue
		}

		t := RawTuple{Timestamp: ts, DeviceID: device, Label: label, Value: value, State: state}
		if !yield(t, nil) {
			return false
		}
	}
	return true
}

// peekValueStart skips leading whitespace and a UTF-8 BOM and returns the
// first byte of the payload without consuming it.
func peekValueStart(br *bufio.Reader) (byte, error) {
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	for {
		head, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch head[0] {
		case ' ', '\t', '\n', '\r':
			_, _ = br.Discard(1)
		default:
			return head[0], nil
		}
	}
}

// jsonError maps decoder errors onto ErrMalformedPayload. Read errors from
// the underlying stream are wrapped as they are.
func jsonError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	default:
		return fmt.Errorf("reading json: %w", err)
	}
}

// lookup returns the first present key of keys.
func lookup(obj map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// jsonScalar renders a JSON string or number as text. Other kinds (null,
// booleans, objects, arrays) yield false.
func jsonScalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case c == '-' || (c >= '0' && c <= '9'):
		return string(raw), true
	default:
		return "", false
	}
}

func jsonEpoch(raw json.RawMessage) (time.Time, bool) {
	s, ok := jsonScalar(raw)
	if !ok || s == "" {
		return time.Time{}, false
	}
	ts, err := parseEpoch(s)
	return ts, err == nil
}

func jsonState(raw json.RawMessage) *float64 {
	s, _ := jsonScalar(raw)
	if v, ok := parseValue(s); ok {
		return &v
	}
	return nil
}

// orderedFields decodes a JSON object's members in document order.
func orderedFields(raw json.RawMessage) ([]jsonField, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("data is not an object")
	}

	var fields []jsonField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, jsonField{key: key, value: value})
	}
	return fields, nil
}
