package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/lawcascade/internal/cascade"
	"github.com/mesh-intelligence/lawcascade/internal/discovery"
	"github.com/mesh-intelligence/lawcascade/internal/logging"
	"github.com/mesh-intelligence/lawcascade/internal/testutil"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const session = "2025-01-01-to-2025-01-31"

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	router *gin.Engine
	queue  types.Queue
}

func setupAPI(t *testing.T, withParser bool) *apiFixture {
	t.Helper()
	laws := testutil.ScenarioLaws()
	q := testutil.NewStore(t).Queue()
	opts := []cascade.Option{
		cascade.WithLogger(logging.Discard()),
		cascade.WithEngineOptions(discovery.WithBackOff(func() backoff.BackOff { return &backoff.StopBackOff{} })),
	}
	if withParser {
		p := testutil.NewParser(laws)
		opts = append(opts, cascade.WithReparser(p), cascade.WithImporter(p))
	}
	c := cascade.New(q, laws, opts...)
	return &apiFixture{router: NewRouter(c, logging.Discard()), queue: q}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// discover seeds the default session from UK_uksi_2025_1.
func (f *apiFixture) discover(t *testing.T) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/cascade/sessions/"+session+"/discover",
		gin.H{"source_laws": []string{"UK_uksi_2025_1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (f *apiFixture) entryIDs(t *testing.T) []string {
	t.Helper()
	entries, err := f.queue.List(context.Background(), types.Filter{SessionID: session})
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestHealth(t *testing.T) {
	f := setupAPI(t, false)
	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDiscoverAndList(t *testing.T) {
	f := setupAPI(t, true)

	w := f.do(t, http.MethodPost, "/v1/cascade/sessions/"+session+"/discover",
		gin.H{"source_laws": []string{"UK_uksi_2025_1"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report types.DiscoveryReport
	decode(t, w, &report)
	assert.Equal(t, session, report.SessionID)
	assert.Equal(t, 2, report.Inserted())

	w = f.do(t, http.MethodGet, "/v1/cascade?session_id="+session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing cascade.Listing
	decode(t, w, &listing)
	assert.Len(t, listing.Reparse, 2)
	assert.Empty(t, listing.EnactingLink)
	assert.Equal(t, 2, listing.Summary.TotalPending)

	w = f.do(t, http.MethodGet, "/v1/cascade?session_id="+session+"&status=processed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &listing)
	assert.Empty(t, listing.Reparse)

	w = f.do(t, http.MethodGet, "/v1/cascade/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions struct {
		Sessions []types.SessionSummary `json:"sessions"`
	}
	decode(t, w, &sessions)
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, session, sessions.Sessions[0].SessionID)
	assert.Equal(t, 2, sessions.Sessions[0].Total)
}

func TestBadRequests(t *testing.T) {
	f := setupAPI(t, true)

	tests := []struct {
		name    string
		method  string
		path    string
		body    any
		wantMsg string
	}{
		{
			name:    "invalid law id",
			method:  http.MethodPost,
			path:    "/v1/cascade/sessions/" + session + "/discover",
			body:    gin.H{"source_laws": []string{"UK uksi 2025"}},
			wantMsg: "invalid law identifier",
		},
		{
			name:    "no source laws",
			method:  http.MethodPost,
			path:    "/v1/cascade/sessions/" + session + "/discover",
			body:    gin.H{"source_laws": []string{}},
			wantMsg: "sourcelaws",
		},
		{
			name:    "unknown status filter",
			method:  http.MethodGet,
			path:    "/v1/cascade?status=finished",
			wantMsg: "status must be one of",
		},
		{
			name:    "unknown operator",
			method:  http.MethodPost,
			path:    "/v1/cascade/batch",
			body:    gin.H{"operator": "rewrite", "entry_ids": []string{"x"}},
			wantMsg: "operator must be one of",
		},
		{
			name:    "entry_ids with all_pending",
			method:  http.MethodPost,
			path:    "/v1/cascade/batch",
			body:    gin.H{"operator": "reparse", "entry_ids": []string{"x"}, "session_id": session, "all_pending": true},
			wantMsg: "mutually exclusive",
		},
		{
			name:    "empty release",
			method:  http.MethodPost,
			path:    "/v1/cascade/entries/release",
			body:    gin.H{"entry_ids": []string{}},
			wantMsg: "entryids",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var body map[string]any
			decode(t, w, &body)
			assert.Contains(t, body["error"], tt.wantMsg)
		})
	}
}

func TestBatchAllPending(t *testing.T) {
	f := setupAPI(t, true)
	f.discover(t)

	w := f.do(t, http.MethodPost, "/v1/cascade/batch",
		gin.H{"operator": "reparse", "session_id": session, "all_pending": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result types.BatchResult
	decode(t, w, &result)
	assert.Equal(t, types.OperatorReparse, result.Operator)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Success)
	assert.Nil(t, result.Continuation)

	w = f.do(t, http.MethodDelete, "/v1/cascade/processed?session_id="+session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted_count":2}`, w.Body.String())
}

func TestBatchWithoutParser(t *testing.T) {
	f := setupAPI(t, false)
	f.discover(t)

	w := f.do(t, http.MethodPost, "/v1/cascade/batch",
		gin.H{"operator": "reparse", "entry_ids": f.entryIDs(t)})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}

func TestContinueRejectsPendingEntries(t *testing.T) {
	f := setupAPI(t, true)
	f.discover(t)
	ids := f.entryIDs(t)

	w := f.do(t, http.MethodPost, "/v1/cascade/sessions/"+session+"/continue", gin.H{"entry_ids": ids})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error    string   `json:"error"`
		EntryIDs []string `json:"entry_ids"`
	}
	decode(t, w, &body)
	assert.ElementsMatch(t, ids, body.EntryIDs)

	w = f.do(t, http.MethodPost, "/v1/cascade/sessions/"+session+"/continue", gin.H{"entry_ids": []string{"missing"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSkipDeleteClear(t *testing.T) {
	f := setupAPI(t, true)
	f.discover(t)
	ids := f.entryIDs(t)

	w := f.do(t, http.MethodPost, "/v1/cascade/entries/skip", gin.H{"entry_ids": ids[:1]})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"skipped":1}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/cascade/entries/release", gin.H{"entry_ids": ids[:1]})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"released":0}`, w.Body.String())

	w = f.do(t, http.MethodDelete, "/v1/cascade/entries/"+ids[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":true}`, w.Body.String())

	w = f.do(t, http.MethodDelete, "/v1/cascade/entries/"+ids[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":false}`, w.Body.String())

	w = f.do(t, http.MethodDelete, "/v1/cascade/sessions/"+session, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted_count":1}`, w.Body.String())
}

func TestValidateLawIDTag(t *testing.T) {
	registerValidators()
	type probe struct {
		ID types.LawID `binding:"lawid"`
	}
	assert.NoError(t, binding.Validator.ValidateStruct(probe{ID: "UK_ukpga_1974_37"}))
	assert.Error(t, binding.Validator.ValidateStruct(probe{ID: "two words"}))
}
