// Package model defines the document representation shared by the storage,
// index, and RPC layers.
//
// A Document is the unit the service stores: an open JSON object carrying the
// record's vector under the reserved "vectors" field, arbitrary scalar fields,
// and the "indexType" tag naming the owning vector index. Numbers are kept as
// json.Number so integer fields stay distinguishable from floats across
// storage and WAL round-trips.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved field names.
const (
	// FieldID is the record identifier field.
	FieldID = "id"

	// FieldVectors holds the record's vector.
	FieldVectors = "vectors"

	// FieldIndexType names the vector index that owns the record's vector.
	FieldIndexType = "indexType"
)

// ErrNotObject is returned when a payload is valid JSON but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// Document is a JSON object keyed by field name. A nil Document is the
// sentinel for "not found"; callers distinguish it with IsObject.
type Document map[string]any

// Parse decodes data into a Document. Numbers are decoded as json.Number so
// that integer scalar fields survive round-trips exactly.
func Parse(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("model: failed to parse document: %w", err)
	}

	if doc == nil {
		return nil, ErrNotObject
	}

	return doc, nil
}

// Marshal serializes the document to its canonical single-line JSON form.
// The output never contains embedded newlines, which the WAL line format
// relies on.
func (d Document) Marshal() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("model: failed to marshal document: %w", err)
	}
	return b, nil
}

// IsObject reports whether the document is present (non-nil).
func (d Document) IsObject() bool {
	return d != nil
}

// ID extracts the record identifier.
func (d Document) ID() (uint64, bool) {
	n, ok := d[FieldID].(json.Number)
	if !ok {
		return 0, false
	}

	id, err := parseUint(n)
	if err != nil {
		return 0, false
	}

	return id, true
}

// Vector extracts the record's vector from the reserved "vectors" field.
func (d Document) Vector() ([]float32, bool) {
	raw, ok := d[FieldVectors].([]any)
	if !ok {
		return nil, false
	}

	vector := make([]float32, len(raw))
	for i, v := range raw {
		n, ok := v.(json.Number)
		if !ok {
			return nil, false
		}

		f, err := n.Float64()
		if err != nil {
			return nil, false
		}

		vector[i] = float32(f)
	}

	return vector, true
}

// IndexType returns the "indexType" tag, if present.
func (d Document) IndexType() (string, bool) {
	s, ok := d[FieldIndexType].(string)
	return s, ok
}

// Int64 extracts field as a 64-bit signed integer. Floats and non-numeric
// values report false, mirroring the filter index's integer-only contract.
func (d Document) Int64(field string) (int64, bool) {
	n, ok := d[field].(json.Number)
	if !ok {
		return 0, false
	}

	v, err := n.Int64()
	if err != nil {
		return 0, false
	}

	return v, true
}

func parseUint(n json.Number) (uint64, error) {
	v, err := n.Int64()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("model: negative id %d", v)
	}
	return uint64(v), nil
}
