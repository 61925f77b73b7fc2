// Package scalar provides the record store: the authoritative mapping from
// record identifier to JSON document, plus raw byte access for snapshot
// metadata, backed by an embedded key-value engine.
package scalar

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/vecdb/model"
)

// Options contains configuration for the store.
type Options struct {
	// Path is the directory where the key-value engine keeps its files.
	Path string

	// InMemory runs the engine without touching disk. Used by tests.
	InMemory bool
}

// DefaultOptions returns default store options.
var DefaultOptions = Options{
	Path: "ScalarStorage",
}

// Store persists records and snapshot metadata. Single-key writes are atomic
// and durable once the engine acknowledges them; the store adds no cross-key
// atomicity on top.
type Store struct {
	db *badger.DB
}

// New opens the store.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil).WithSyncWrites(true)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("scalar: failed to open store: %w", err)
	}

	return &Store{db: db}, nil
}

// InsertScalar serializes the document to its canonical JSON form and writes
// it under the record identifier, overwriting any prior value.
func (s *Store) InsertScalar(id uint64, doc model.Document) error {
	value, err := doc.Marshal()
	if err != nil {
		return err
	}

	return s.Put(strconv.FormatUint(id, 10), value)
}

// GetScalar reads the document stored under the record identifier. A missing
// record returns a nil Document and no error; callers distinguish the miss
// with IsObject.
func (s *Store) GetScalar(id uint64) (model.Document, error) {
	value, err := s.Get(strconv.FormatUint(id, 10))
	if err != nil {
		return nil, err
	}

	if value == nil {
		return nil, nil
	}

	return model.Parse(value)
}

// Put writes raw bytes under an arbitrary string key.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("scalar: failed to put key %q: %w", key, err)
	}

	return nil
}

// Get reads raw bytes under an arbitrary string key. A missing key returns
// nil and no error.
func (s *Store) Get(key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scalar: failed to get key %q: %w", key, err)
	}

	return value, nil
}

// Close releases the underlying engine.
func (s *Store) Close() error {
	return s.db.Close()
}
