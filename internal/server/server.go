// Package server implements the HTTP JSON RPC surface of the service.
//
// All RPC routes are POST with JSON bodies; GET /metrics serves the
// prometheus collectors. Success responses carry
// {"retcode":0}; validation failures answer 400 with
// {"retcode":-1,"errorMsg":...}; storage and log faults answer 500 so
// clients can retry instead of silently losing writes.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/filterindex"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/metrics"
	"github.com/hupe1980/vecdb/model"
)

// Response envelope fields.
const (
	retcodeSuccess = 0
	retcodeError   = -1
)

// Options contains configuration for the server.
type Options struct {
	// Logger receives access and error logs. Defaults to a noop logger.
	Logger *vecdb.Logger

	// RateLimitRPS caps requests per second per remote address. Zero
	// disables rate limiting.
	RateLimitRPS float64

	// RateLimitBurst is the per-remote burst size.
	RateLimitBurst int

	// MaxBodyBytes bounds request body size.
	MaxBodyBytes int64
}

// DefaultOptions returns default server options.
var DefaultOptions = Options{
	MaxBodyBytes: 8 << 20, // 8 MiB
}

// Server dispatches RPC requests to the database.
type Server struct {
	db       *vecdb.DB
	logger   *vecdb.Logger
	limiters *limiterPool
	opts     Options
}

// New creates a server around the given database.
func New(db *vecdb.DB, optFns ...func(o *Options)) *Server {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = vecdb.NoopLogger()
	}

	return &Server{
		db:       db,
		logger:   opts.Logger,
		limiters: newLimiterPool(opts.RateLimitRPS, opts.RateLimitBurst),
		opts:     opts,
	}
}

// Handler returns the routed HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upsert", s.handleUpsert)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /admin/snapshot", s.handleSnapshot)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withMiddleware(mux)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	id, ok := doc.ID()
	if !ok {
		s.writeError(w, http.StatusBadRequest, "missing or invalid id")
		return
	}

	if _, ok := doc.Vector(); !ok {
		s.writeError(w, http.StatusBadRequest, "missing or invalid vectors")
		return
	}

	kind, ok := indexKindFromDocument(doc)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "indexType must be FLAT or HNSW")
		return
	}

	if err := s.db.Upsert(id, doc, kind); err != nil {
		s.logger.Error("upsert failed", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The record is durable only once the WAL append succeeds; an append
	// failure must surface so the client can retry.
	if err := s.db.WriteWAL(vecdb.OpUpsert, doc); err != nil {
		s.logger.Error("WAL append failed", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.UpsertTotal.Inc()
	metrics.WALAppendTotal.Inc()

	s.writeJSON(w, http.StatusOK, map[string]any{"retcode": retcodeSuccess})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	id, ok := doc.ID()
	if !ok {
		s.writeError(w, http.StatusBadRequest, "missing or invalid id")
		return
	}

	record, err := s.db.Query(id)
	if err != nil {
		s.logger.Error("query failed", "id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Echo the full document on a hit; a miss is still retcode 0.
	response := make(map[string]any, len(record)+1)
	for field, value := range record {
		response[field] = value
	}
	response["retcode"] = retcodeSuccess

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	vector, ok := doc.Vector()
	if !ok {
		s.writeError(w, http.StatusBadRequest, "missing or invalid vectors")
		return
	}

	k, ok := doc.Int64("k")
	if !ok || k <= 0 {
		s.writeError(w, http.StatusBadRequest, "k must be a positive integer")
		return
	}

	kind := index.KindUnknown
	if tag, tagged := doc.IndexType(); tagged {
		kind = index.KindFromString(tag)
		if kind == index.KindUnknown {
			s.writeError(w, http.StatusBadRequest, "indexType must be FLAT or HNSW")
			return
		}
	}

	req := vecdb.SearchRequest{
		Vector: vector,
		K:      int(k),
		Kind:   kind,
	}

	filter, ok, errMsg := filterFromDocument(doc)
	if !ok {
		s.writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	req.Filter = filter

	result, err := s.db.Search(req)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.SearchTotal.Inc()

	ids := result.IDs
	if ids == nil {
		ids = []int64{}
	}
	distances := result.Distances
	if distances == nil {
		distances = []float32{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"vectors":   ids,
		"distances": distances,
		"retcode":   retcodeSuccess,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()

	if err := s.db.TakeSnapshot(); err != nil {
		s.logger.Error("snapshot failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.SnapshotSeconds.Observe(time.Since(start).Seconds())

	s.writeJSON(w, http.StatusOK, map[string]any{"retcode": retcodeSuccess})
}

// decodeBody reads and parses the request body as a JSON object. On failure
// it answers 400 and reports false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (model.Document, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}

	doc, err := model.Parse(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}

	return doc, true
}

// indexKindFromDocument resolves the indexType tag of an upsert document.
func indexKindFromDocument(doc model.Document) (index.Kind, bool) {
	tag, ok := doc.IndexType()
	if !ok {
		return index.KindUnknown, false
	}

	kind := index.KindFromString(tag)
	return kind, kind != index.KindUnknown
}

// filterFromDocument extracts the optional filter clause of a search
// request. The second return value is false when the clause is present but
// malformed.
func filterFromDocument(doc model.Document) (*vecdb.Filter, bool, string) {
	raw, present := doc["filter"]
	if !present {
		return nil, true, ""
	}

	clause, ok := raw.(map[string]any)
	if !ok {
		return nil, false, "filter must be an object"
	}

	fieldName, ok := clause["fieldName"].(string)
	if !ok {
		return nil, false, "filter.fieldName must be a string"
	}

	opStr, ok := clause["op"].(string)
	if !ok {
		return nil, false, "filter.op must be a string"
	}

	op, ok := filterindex.OperationFromString(opStr)
	if !ok {
		return nil, false, `filter.op must be "=" or "!="`
	}

	number, ok := clause["value"].(json.Number)
	if !ok {
		return nil, false, "filter.value must be an integer"
	}

	value, err := number.Int64()
	if err != nil {
		return nil, false, "filter.value must be an integer"
	}

	return &vecdb.Filter{FieldName: fieldName, Op: op, Value: value}, true, ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{
		"retcode":  retcodeError,
		"errorMsg": msg,
	})
}
