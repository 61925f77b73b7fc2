package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	dir := t.TempDir()

	db, err := vecdb.New(func(o *vecdb.Options) {
		o.Dimension = 3
		o.InMemoryScalar = true
		o.WALPath = filepath.Join(dir, "WALLog")
		o.CursorPath = filepath.Join(dir, "lastSnapshotID")
		o.SnapshotDir = filepath.Join(dir, "snapshots")
		o.Logger = vecdb.NoopLogger()
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return New(db).Handler()
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))

	return rec, decoded
}

func TestUpsertAndQueryRoundTrip(t *testing.T) {
	h := newTestServer(t)

	rec, resp := post(t, h, "/upsert", `{"id":10,"vectors":[0.1,0.2,0.3],"name":"A","version":1,"category":100,"indexType":"FLAT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["retcode"])

	rec, resp = post(t, h, "/query", `{"id":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["retcode"])
	assert.Equal(t, "A", resp["name"])
	assert.Equal(t, float64(1), resp["version"])
	assert.Equal(t, float64(100), resp["category"])
	assert.Equal(t, "FLAT", resp["indexType"])
	assert.Equal(t, []any{0.1, 0.2, 0.3}, resp["vectors"])
}

func TestQueryMiss(t *testing.T) {
	h := newTestServer(t)

	rec, resp := post(t, h, "/query", `{"id":404}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["retcode"])
	assert.NotContains(t, resp, "vectors")
}

func TestSearchBySelf(t *testing.T) {
	h := newTestServer(t)

	post(t, h, "/upsert", `{"id":10,"vectors":[0.1,0.2,0.3],"indexType":"FLAT"}`)
	post(t, h, "/upsert", `{"id":11,"vectors":[0.7,0.8,0.9],"indexType":"FLAT"}`)

	rec, resp := post(t, h, "/search", `{"vectors":[0.1,0.2,0.3],"k":2,"indexType":"FLAT"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["retcode"])
	assert.Equal(t, []any{float64(10), float64(11)}, resp["vectors"])

	distances, ok := resp["distances"].([]any)
	require.True(t, ok)
	require.Len(t, distances, 2)
	assert.Equal(t, float64(0), distances[0])
	assert.InDelta(t, 1.08, distances[1], 1e-5)
}

func TestSearchWithFilter(t *testing.T) {
	h := newTestServer(t)

	post(t, h, "/upsert", `{"id":1,"vectors":[1,0,0],"category":100,"indexType":"FLAT"}`)
	post(t, h, "/upsert", `{"id":2,"vectors":[0,1,0],"category":150,"indexType":"FLAT"}`)
	post(t, h, "/upsert", `{"id":3,"vectors":[0,0,1],"category":100,"indexType":"FLAT"}`)

	rec, resp := post(t, h, "/search", `{"vectors":[1,0,0],"k":3,"indexType":"FLAT","filter":{"fieldName":"category","op":"=","value":100}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []any{float64(1), float64(3)}, resp["vectors"])
}

func TestSearchWithoutIndexTypeReturnsEmpty(t *testing.T) {
	h := newTestServer(t)

	post(t, h, "/upsert", `{"id":1,"vectors":[1,0,0],"indexType":"FLAT"}`)

	rec, resp := post(t, h, "/search", `{"vectors":[1,0,0],"k":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["retcode"])
	assert.Empty(t, resp["vectors"])
}

func TestValidation(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"upsert not json", "/upsert", `not json`},
		{"upsert not object", "/upsert", `[1,2]`},
		{"upsert missing id", "/upsert", `{"vectors":[1,2,3],"indexType":"FLAT"}`},
		{"upsert missing vectors", "/upsert", `{"id":1,"indexType":"FLAT"}`},
		{"upsert missing index type", "/upsert", `{"id":1,"vectors":[1,2,3]}`},
		{"upsert bad index type", "/upsert", `{"id":1,"vectors":[1,2,3],"indexType":"IVF"}`},
		{"query missing id", "/query", `{}`},
		{"search missing vectors", "/search", `{"k":1,"indexType":"FLAT"}`},
		{"search missing k", "/search", `{"vectors":[1,2,3],"indexType":"FLAT"}`},
		{"search zero k", "/search", `{"vectors":[1,2,3],"k":0,"indexType":"FLAT"}`},
		{"search bad index type", "/search", `{"vectors":[1,2,3],"k":1,"indexType":"IVF"}`},
		{"search bad filter op", "/search", `{"vectors":[1,2,3],"k":1,"indexType":"FLAT","filter":{"fieldName":"c","op":">","value":1}}`},
		{"search filter not object", "/search", `{"vectors":[1,2,3],"k":1,"indexType":"FLAT","filter":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := post(t, h, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, float64(-1), resp["retcode"])
			assert.NotEmpty(t, resp["errorMsg"])
		})
	}
}

func TestSnapshot(t *testing.T) {
	h := newTestServer(t)

	post(t, h, "/upsert", `{"id":1,"vectors":[1,0,0],"indexType":"FLAT"}`)

	rec, resp := post(t, h, "/admin/snapshot", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["retcode"])
}

func TestRateLimit(t *testing.T) {
	dir := t.TempDir()

	db, err := vecdb.New(func(o *vecdb.Options) {
		o.Dimension = 3
		o.InMemoryScalar = true
		o.WALPath = filepath.Join(dir, "WALLog")
		o.CursorPath = filepath.Join(dir, "lastSnapshotID")
		o.SnapshotDir = filepath.Join(dir, "snapshots")
		o.Logger = vecdb.NoopLogger()
	})
	require.NoError(t, err)
	defer db.Close()

	h := New(db, func(o *Options) {
		o.RateLimitRPS = 1
		o.RateLimitBurst = 1
	}).Handler()

	rec, _ := post(t, h, "/query", `{"id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := post(t, h, "/query", `{"id":1}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, float64(-1), resp["retcode"])
}
