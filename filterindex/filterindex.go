// Package filterindex provides the inverted index from (field, integer
// value) pairs to compressed bitmaps of record identifiers. It serves as the
// selector during filtered vector search.
package filterindex

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecdb/scalar"
)

// Operation is a filter predicate over an integer field.
type Operation int

const (
	// OpEqual selects records whose field equals the value.
	OpEqual Operation = iota

	// OpNotEqual selects records whose field differs from the value.
	OpNotEqual
)

// OperationFromString parses the wire-level operator.
func OperationFromString(s string) (Operation, bool) {
	switch s {
	case "=":
		return OpEqual, true
	case "!=":
		return OpNotEqual, true
	default:
		return 0, false
	}
}

// FilterIndex maps field name -> integer value -> bitmap of record
// identifiers. For every integer field of a live record the identifier
// appears in exactly one posting; the update protocol maintains that
// invariant as long as callers pass the correct old value.
type FilterIndex struct {
	mu       sync.RWMutex
	postings map[string]map[int64]*roaring.Bitmap
}

// New creates an empty filter index.
func New() *FilterIndex {
	return &FilterIndex{
		postings: make(map[string]map[int64]*roaring.Bitmap),
	}
}

// Add inserts id into the posting at (field, value), creating it if needed.
func (f *FilterIndex) Add(field string, value int64, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addLocked(field, value, id)
}

func (f *FilterIndex) addLocked(field string, value int64, id uint64) {
	valueMap, ok := f.postings[field]
	if !ok {
		valueMap = make(map[int64]*roaring.Bitmap)
		f.postings[field] = valueMap
	}

	bitmap, ok := valueMap[value]
	if !ok {
		bitmap = roaring.New()
		valueMap[value] = bitmap
	}

	bitmap.Add(uint32(id))
}

// Update moves id from the posting at oldValue (when known) to the posting
// at newValue. Emptied bitmaps are kept. An unregistered field falls back to
// Add.
func (f *FilterIndex) Update(field string, oldValue *int64, newValue int64, id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	valueMap, ok := f.postings[field]
	if !ok {
		f.addLocked(field, newValue, id)
		return
	}

	if oldValue != nil {
		if oldBitmap, ok := valueMap[*oldValue]; ok {
			oldBitmap.Remove(uint32(id))
		}
	}

	newBitmap, ok := valueMap[newValue]
	if !ok {
		newBitmap = roaring.New()
		valueMap[newValue] = newBitmap
	}
	newBitmap.Add(uint32(id))
}

// Select ors into result the bitmaps satisfying the predicate. A missing
// field leaves result unchanged. The caller owns result.
func (f *FilterIndex) Select(field string, op Operation, value int64, result *roaring.Bitmap) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	valueMap, ok := f.postings[field]
	if !ok {
		return
	}

	switch op {
	case OpEqual:
		if bitmap, ok := valueMap[value]; ok {
			result.Or(bitmap)
		}
	case OpNotEqual:
		for v, bitmap := range valueMap {
			if v != value {
				result.Or(bitmap)
			}
		}
	}
}

// Contains reports whether id is present in the posting at (field, value).
func (f *FilterIndex) Contains(field string, value int64, id uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	valueMap, ok := f.postings[field]
	if !ok {
		return false
	}

	bitmap, ok := valueMap[value]
	if !ok {
		return false
	}

	return bitmap.Contains(uint32(id))
}

// Serialize dumps the posting map. One line per (field, value, bitmap)
// triple: field|value|<portable bitmap bytes>\n, fields and values in sorted
// order so equal states serialize to equal bytes.
func (f *FilterIndex) Serialize() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var buf bytes.Buffer

	fields := make([]string, 0, len(f.postings))
	for field := range f.postings {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		valueMap := f.postings[field]

		values := make([]int64, 0, len(valueMap))
		for value := range valueMap {
			values = append(values, value)
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

		for _, value := range values {
			buf.WriteString(field)
			buf.WriteByte('|')
			buf.WriteString(strconv.FormatInt(value, 10))
			buf.WriteByte('|')

			if _, err := valueMap[value].WriteTo(&buf); err != nil {
				return nil, fmt.Errorf("filterindex: failed to serialize bitmap for %s=%d: %w", field, value, err)
			}

			buf.WriteByte('\n')
		}
	}

	return buf.Bytes(), nil
}

// Deserialize restores the posting map from Serialize output, replacing the
// current state. The bitmap bytes carry their own length, so the reader
// consumes exactly one bitmap per line regardless of embedded separator
// bytes.
func (f *FilterIndex) Deserialize(data []byte) error {
	postings := make(map[string]map[int64]*roaring.Bitmap)

	r := bufio.NewReader(bytes.NewReader(data))

	for {
		field, err := r.ReadString('|')
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("filterindex: failed to read field name: %w", err)
		}
		field = strings.TrimSuffix(field, "|")

		valueStr, err := r.ReadString('|')
		if err != nil {
			return fmt.Errorf("filterindex: failed to read value for field %q: %w", field, err)
		}

		value, err := strconv.ParseInt(strings.TrimSuffix(valueStr, "|"), 10, 64)
		if err != nil {
			return fmt.Errorf("filterindex: malformed value for field %q: %w", field, err)
		}

		bitmap := roaring.New()
		if _, err := bitmap.ReadFrom(r); err != nil {
			return fmt.Errorf("filterindex: failed to read bitmap for %s=%d: %w", field, value, err)
		}

		terminator, err := r.ReadByte()
		if err != nil || terminator != '\n' {
			return fmt.Errorf("filterindex: missing line terminator for %s=%d", field, value)
		}

		valueMap, ok := postings[field]
		if !ok {
			valueMap = make(map[int64]*roaring.Bitmap)
			postings[field] = valueMap
		}
		valueMap[value] = bitmap
	}

	f.mu.Lock()
	f.postings = postings
	f.mu.Unlock()

	return nil
}

// Save round-trips the serialized posting map through the scalar store's raw
// byte interface.
func (f *FilterIndex) Save(store *scalar.Store, key string) error {
	data, err := f.Serialize()
	if err != nil {
		return err
	}

	return store.Put(key, data)
}

// Load restores the posting map from the scalar store. A missing key is a
// cold start, not an error.
func (f *FilterIndex) Load(store *scalar.Store, key string) error {
	data, err := store.Get(key)
	if err != nil {
		return err
	}

	if data == nil {
		return nil
	}

	return f.Deserialize(data)
}
