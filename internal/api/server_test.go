package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/medscope/telegram-insights/internal/analytics"
)

type fakeExecutor struct {
	rows   []map[string]any
	row    map[string]any
	scalar int64
	err    error
}

func (f *fakeExecutor) ExecuteMany(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return f.rows, f.err
}

func (f *fakeExecutor) ExecuteOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	return f.row, f.err
}

func (f *fakeExecutor) ExecuteScalar(ctx context.Context, query string, args ...any) (int64, error) {
	return f.scalar, f.err
}

type fakePipeline struct {
	triggered chan string
	metrics   string
}

func (f *fakePipeline) Trigger(job string) error {
	if f.triggered != nil {
		f.triggered <- job
	}
	return nil
}

func (f *fakePipeline) GetMetrics() string {
	return f.metrics
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func newTestServer(exec *fakeExecutor) *Server {
	return NewServer(analytics.New(exec), &fakePipeline{metrics: `{"runs_completed":0}`}, &fakePinger{})
}

func doRequest(t *testing.T, server *Server, method, path string) (*httptest.ResponseRecorder, *Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, &resp
}

func TestHealth(t *testing.T) {
	rec, resp := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestHealth_DatabaseDown(t *testing.T) {
	server := NewServer(analytics.New(&fakeExecutor{}), &fakePipeline{}, &fakePinger{err: errors.New("refused")})

	rec, resp := doRequest(t, server, "GET", "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestListChannels(t *testing.T) {
	exec := &fakeExecutor{
		rows: []map[string]any{
			{"channel_name": "tikvahpharma", "message_count": int64(120)},
		},
		scalar: 57,
	}

	rec, resp := doRequest(t, newTestServer(exec), "GET", "/api/channels?limit=10&offset=20")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Pagination)
	assert.Equal(t, 3, resp.Pagination.Page)
	assert.Equal(t, 10, resp.Pagination.Size)
	assert.Equal(t, int64(57), resp.Pagination.Total)
	assert.Equal(t, int64(6), resp.Pagination.Pages)
}

func TestGetChannel_NotFound(t *testing.T) {
	rec, resp := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/channels/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, resp.Message, "ghost")
}

func TestChannelActivity_InvalidGroupBy(t *testing.T) {
	rec, resp := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/channels/tikvahpharma/activity?group_by=hour")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "group_by")
}

func TestChannelActivity_DefaultsToDay(t *testing.T) {
	rec, _ := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/channels/tikvahpharma/activity")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChannelActivity_BadDate(t *testing.T) {
	rec, resp := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/channels/tikvahpharma/activity?date_from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Message, "date_from")
}

func TestSearchMessages_MissingQuery(t *testing.T) {
	rec, _ := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/search/messages")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchMessages(t *testing.T) {
	exec := &fakeExecutor{
		rows: []map[string]any{
			{
				"message_id":      int64(1),
				"channel_name":    "tikvahpharma",
				"message_text":    "paracetamol 500mg",
				"relevance_score": 0.8,
				"message_date":    time.Now(),
			},
		},
		scalar: 1,
	}

	rec, resp := doRequest(t, newTestServer(exec), "GET", "/api/search/messages?query=paracetamol")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.Pagination.Total)
}

func TestChannelMessages_UnknownChannel(t *testing.T) {
	rec, _ := doRequest(t, newTestServer(&fakeExecutor{}), "GET", "/api/channels/ghost/messages")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecutionFailure_IsGeneric(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("connection reset by postgres at 10.0.0.5")}

	rec, resp := doRequest(t, newTestServer(exec), "GET", "/api/analytics/summary")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", resp.Message)
	assert.NotContains(t, resp.Message, "postgres")
}

func TestTrigger(t *testing.T) {
	pipeline := &fakePipeline{triggered: make(chan string, 1)}
	server := NewServer(analytics.New(&fakeExecutor{}), pipeline, nil)

	rec, resp := doRequest(t, server, "POST", "/trigger/ingestion")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, resp.Message, "ingestion")

	select {
	case job := <-pipeline.triggered:
		assert.Equal(t, "ingestion", job)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never reached the pipeline")
	}
}

func TestTrigger_UnknownJob(t *testing.T) {
	rec, _ := doRequest(t, newTestServer(&fakeExecutor{}), "POST", "/trigger/reindex")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsPassthrough(t *testing.T) {
	server := NewServer(analytics.New(&fakeExecutor{}), &fakePipeline{metrics: `{"runs_completed":3}`}, nil)

	rec, _ := doRequest(t, server, "GET", "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs_completed":3}`, rec.Body.String())
}

func TestPageParams_Clamping(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 20, 0},
		{"?limit=50&offset=10", 50, 10},
		{"?limit=0", 1, 0},
		{"?limit=-5", 1, 0},
		{"?limit=1000", 100, 0},
		{"?offset=-3", 20, 0},
		{"?limit=abc", 20, 0},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/channels"+tt.query, nil)
		limit, offset := pageParams(req)
		assert.Equal(t, tt.wantLimit, limit, "query %q", tt.query)
		assert.Equal(t, tt.wantOffset, offset, "query %q", tt.query)
	}
}

func TestPaginationInfo(t *testing.T) {
	page := paginationInfo(10, 0, 25)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, int64(3), page.Pages)

	page = paginationInfo(10, 20, 20)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, int64(2), page.Pages)
}
