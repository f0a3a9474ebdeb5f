package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/producer"
	"github.com/relaymesh/incidentforge/internal/repair"
	"github.com/relaymesh/incidentforge/internal/runstate"
	"github.com/relaymesh/incidentforge/internal/store"
)

const testCatalogJSON = `[{"name":"alpha","lat":10,"lng":20,"weight":1,"sigmaKm":5}]`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cat, err := catalog.LoadFromJSON([]byte(testCatalogJSON))
	require.NoError(t, err)

	b, err := bus.Connect("")
	require.NoError(t, err)

	st := store.NewMemStore()
	pool := producer.New(st, cat, b, 10, producer.Limits{MaxRate: 1000, MaxBatch: 1000, MaxShards: 64})
	sch := repair.New(st, b)
	controller := runstate.New(st, pool, sch)

	return New(controller, st, "*")
}

func TestHandleStatusWhenIdle(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Empty(t, body.RunID)
}

func TestHandleStartAndStop(t *testing.T) {
	s := newTestServer(t)

	startBody, err := json.Marshal(startRequestBody{Rate: 2, Batch: 2, Shards: 1, Spread: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewReader(startBody))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var started statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.NotEmpty(t, started.RunID)

	req = httptest.NewRequest(http.MethodPost, "/stop", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStartRejectsOutOfRangeParams(t *testing.T) {
	s := newTestServer(t)

	startBody, err := json.Marshal(startRequestBody{Rate: 0, Batch: 2, Shards: 1, Spread: 1})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewReader(startBody))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.OK)
	assert.NotEmpty(t, body.Error)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/start", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
