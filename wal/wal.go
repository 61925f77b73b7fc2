// Package wal provides write-ahead logging and snapshot coordination for
// durability and crash recovery.
//
// Every acknowledged operation is a single fsynced line in the log:
//
//	<seq>|<version>|<op>|<single-line json payload>
//
// Sequence numbers increase strictly and are never reused; gaps left by
// failed writes are tolerable. Replay skips entries already covered by the
// snapshot cursor, so recovery cost is bounded by the work done since the
// last snapshot.
package wal

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/scalar"
)

// IndexSaver is the snapshot surface of the index registry: it serializes
// every index into a folder and restores them from it.
type IndexSaver interface {
	// SaveAll writes one snapshot file per registered index.
	SaveAll(folder string, store *scalar.Store) error

	// LoadAll restores every registered index, tolerating missing files.
	LoadAll(folder string, store *scalar.Store) error
}

// Entry is a decoded log record.
type Entry struct {
	SeqNo    uint64
	Version  string
	Op       string
	Document model.Document
}

// Options contains configuration for the WAL.
type Options struct {
	// LogPath is the append-only log file.
	LogPath string

	// CursorPath is the sidecar file holding the snapshot cursor.
	CursorPath string

	// SnapshotDir is the directory snapshot files are written to.
	SnapshotDir string

	// Logger receives warn/debug traffic. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns default WAL options matching the service's on-disk
// layout.
var DefaultOptions = Options{
	LogPath:     filepath.Join("WALLogStorage", "WALLog"),
	CursorPath:  "lastSnapshotID",
	SnapshotDir: "snapshots",
}

// WAL owns the log file handle and the snapshot cursor.
type WAL struct {
	mu        sync.Mutex
	file      *os.File
	reader    *bufio.Reader
	currentID uint64 // highest sequence number assigned or observed; starts at 1, so the first entry gets 2
	cursor    uint64 // highest sequence number covered by the last snapshot
	opts      Options
	logger    *slog.Logger
}

// New opens or creates the log file and loads the snapshot cursor from its
// sidecar (absent means zero).
func New(optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if dir := filepath.Dir(opts.LogPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("wal: failed to create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return nil, fmt.Errorf("wal: failed to open log file: %w", err)
	}

	w := &WAL{
		file:      file,
		reader:    bufio.NewReader(file),
		currentID: 1,
		opts:      opts,
		logger:    opts.Logger,
	}

	w.loadCursor()

	return w, nil
}

// NextID increments the sequence counter and returns the new value.
func (w *WAL) NextID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.currentID++
	return w.currentID
}

// CurrentID returns the sequence counter without incrementing it.
func (w *WAL) CurrentID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.currentID
}

// Append assigns the next sequence number, writes a single log line, and
// flushes it to disk. The operation is durable only once Append returns
// without error. The counter advances even when the write fails: gaps in
// the log are tolerable, identifier reuse is not.
func (w *WAL) Append(op string, doc model.Document, version string) (uint64, error) {
	payload, err := doc.Marshal()
	if err != nil {
		return 0, err
	}

	if strings.ContainsRune(version, '|') || strings.ContainsRune(op, '|') {
		return 0, fmt.Errorf("wal: separator byte in version or op")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.currentID++
	seq := w.currentID

	line := fmt.Sprintf("%d|%s|%s|%s\n", seq, version, op, payload)

	if _, err := w.file.WriteString(line); err != nil {
		w.logger.Error("failed to write WAL log entry", "seq", seq, "error", err)
		return seq, fmt.Errorf("wal: failed to write log entry: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		w.logger.Error("failed to sync WAL log", "seq", seq, "error", err)
		return seq, fmt.Errorf("wal: failed to sync log: %w", err)
	}

	w.logger.Debug("wrote WAL log entry", "seq", seq, "op", op, "version", version)

	return seq, nil
}

// Next returns the next log entry whose sequence number is beyond the
// snapshot cursor. Entries at or below the cursor are read but skipped;
// every line read advances the sequence counter to the highest value seen.
// The second return value is false at end of log, leaving the stream usable
// for subsequent appends. A malformed line terminates replay with an error.
func (w *WAL) Next() (Entry, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		line, err := w.reader.ReadString('\n')
		if err == io.EOF {
			if line != "" {
				// Torn tail write from a crash mid-append; replay stops here.
				w.logger.Warn("ignoring incomplete WAL tail", "bytes", len(line))
			}
			w.logger.Debug("no more WAL log entries to read")
			return Entry{}, false, nil
		}
		if err != nil {
			return Entry{}, false, fmt.Errorf("wal: failed to read log: %w", err)
		}

		entry, err := parseLine(strings.TrimSuffix(line, "\n"))
		if err != nil {
			return Entry{}, false, err
		}

		if entry.SeqNo > w.currentID {
			w.currentID = entry.SeqNo
		}

		if entry.SeqNo <= w.cursor {
			w.logger.Debug("skipping WAL log entry covered by snapshot", "seq", entry.SeqNo, "cursor", w.cursor)
			continue
		}

		w.logger.Debug("read WAL log entry", "seq", entry.SeqNo, "op", entry.Op)

		return entry, true, nil
	}
}

// parseLine splits a log line on its first three separators; the remainder
// is JSON, so separator bytes inside the payload are safe.
func parseLine(line string) (Entry, error) {
	parts := strings.SplitN(line, "|", 4)
	if len(parts) != 4 {
		return Entry{}, fmt.Errorf("wal: malformed log line: %q", line)
	}

	seq, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed sequence number: %w", err)
	}

	doc, err := model.Parse([]byte(parts[3]))
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed log payload at seq %d: %w", seq, err)
	}

	return Entry{
		SeqNo:    seq,
		Version:  parts[1],
		Op:       parts[2],
		Document: doc,
	}, nil
}

// Cursor returns the snapshot cursor.
func (w *WAL) Cursor() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.cursor
}

// TakeSnapshot advances the cursor to the current sequence number, asks the
// registry to serialize every index into the snapshot directory, and
// persists the cursor sidecar. Callers must quiesce writes for the duration.
func (w *WAL) TakeSnapshot(reg IndexSaver, store *scalar.Store) error {
	w.logger.Debug("taking snapshot")

	w.mu.Lock()
	w.cursor = w.currentID
	w.mu.Unlock()

	if err := os.MkdirAll(w.opts.SnapshotDir, 0750); err != nil {
		return fmt.Errorf("wal: failed to create snapshot directory: %w", err)
	}

	if err := reg.SaveAll(w.opts.SnapshotDir, store); err != nil {
		return err
	}

	return w.saveCursor()
}

// LoadSnapshot restores every index from the snapshot directory.
func (w *WAL) LoadSnapshot(reg IndexSaver, store *scalar.Store) error {
	w.logger.Debug("loading snapshot")

	return reg.LoadAll(w.opts.SnapshotDir, store)
}

// Close releases the log file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Close()
}

func (w *WAL) saveCursor() error {
	w.mu.Lock()
	cursor := w.cursor
	w.mu.Unlock()

	if err := os.WriteFile(w.opts.CursorPath, []byte(strconv.FormatUint(cursor, 10)), 0600); err != nil {
		return fmt.Errorf("wal: failed to save snapshot cursor: %w", err)
	}

	w.logger.Debug("snapshot cursor saved", "cursor", cursor)

	return nil
}

func (w *WAL) loadCursor() {
	data, err := os.ReadFile(w.opts.CursorPath)
	if err != nil {
		w.logger.Debug("no snapshot cursor file, starting from zero", "path", w.opts.CursorPath)
		return
	}

	cursor, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		w.logger.Warn("malformed snapshot cursor file, starting from zero", "path", w.opts.CursorPath, "error", err)
		return
	}

	w.cursor = cursor
	w.logger.Debug("snapshot cursor loaded", "cursor", cursor)
}
