package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/metrics"
	"github.com/sdzerobot/sdzerobot/tabulator"
)

type fakeRunner struct {
	results []tabulator.Result
	err     error
	trigger string
	pages   []string
	ctxErr  error
}

func (f *fakeRunner) RunPage(ctx context.Context, title string) ([]tabulator.Result, error) {
	f.pages = append(f.pages, title)
	f.trigger = tabulator.TriggerFromContext(ctx)
	f.ctxErr = ctx.Err()
	return f.results, f.err
}

type fakeRuns struct {
	runs []history.Run
	page string
}

func (f *fakeRuns) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	return f.runs, nil
}

func (f *fakeRuns) ForPage(ctx context.Context, page string, limit int) ([]history.Run, error) {
	f.page = page
	return f.runs, nil
}

func newTestServer(t *testing.T, runner PageRunner, runs RunLister) (*Server, *httptest.Server) {
	t.Helper()
	s := New(config.ServerConfig{}, runner, runs, metrics.New())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return s, ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeRunner{}, nil)

	var body map[string]interface{}
	status := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestReportRunsPage(t *testing.T) {
	runner := &fakeRunner{results: []tabulator.Result{
		{RunID: "r1", Outcome: tabulator.Completed, Rows: 12, Pages: 1, QueryRuntime: 1500 * time.Millisecond},
		{RunID: "r2", Outcome: tabulator.Handled, Err: errors.New("SQL Error: ER_PARSE_ERROR: bad")},
	}}
	_, ts := newTestServer(t, runner, nil)

	var body ReportResponse
	status := getJSON(t, ts.URL+"/database-report?page=User:Example/Report", &body)
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, []string{"User:Example/Report"}, runner.pages)
	assert.Equal(t, history.TriggerWeb, runner.trigger)
	assert.NoError(t, runner.ctxErr)

	assert.Equal(t, "User:Example/Report", body.Page)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "completed", body.Results[0].Outcome)
	assert.Equal(t, 12, body.Results[0].Rows)
	assert.InDelta(t, 1.5, body.Results[0].QueryRuntime, 0.001)
	assert.Empty(t, body.Results[0].Error)
	assert.Equal(t, "handled", body.Results[1].Outcome)
	assert.Contains(t, body.Results[1].Error, "ER_PARSE_ERROR")
}

func TestReportMissingPage(t *testing.T) {
	runner := &fakeRunner{}
	_, ts := newTestServer(t, runner, nil)

	var body map[string]string
	status := getJSON(t, ts.URL+"/database-report", &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
	assert.Empty(t, runner.pages)
}

func TestReportErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"busy", errors.Wrap(errors.ErrBusy, "Foo"), http.StatusConflict},
		{"not found", errors.NewNotFoundError("no report on %s", "Foo"), http.StatusNotFound},
		{"invalid", errors.NewInvalidRequestError("bad title"), http.StatusBadRequest},
		{"wiki down", errors.New("connection reset"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, &fakeRunner{err: tt.err}, nil)

			var body map[string]string
			status := getJSON(t, ts.URL+"/database-report?page=Foo", &body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRuns(t *testing.T) {
	runs := &fakeRuns{runs: []history.Run{
		{ID: "a", Page: "Foo", Outcome: history.OutcomeCompleted},
	}}
	_, ts := newTestServer(t, &fakeRunner{}, runs)

	var body []history.Run
	status := getJSON(t, ts.URL+"/api/runs?page=Foo&limit=5", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Foo", runs.page)
	require.Len(t, body, 1)
	assert.Equal(t, "a", body[0].ID)

	var errBody map[string]string
	status = getJSON(t, ts.URL+"/api/runs?limit=abc", &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRunsWithoutHistory(t *testing.T) {
	_, ts := newTestServer(t, &fakeRunner{}, nil)

	var body map[string]string
	status := getJSON(t, ts.URL+"/api/runs", &body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeRunner{}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketReceivesEvents(t *testing.T) {
	s, ts := newTestServer(t, &fakeRunner{}, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Publish(tabulator.Event{
		Type:    tabulator.EventFinished,
		RunID:   "r1",
		Page:    "Foo",
		Outcome: "completed",
		Rows:    3,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var e tabulator.Event
	require.NoError(t, json.Unmarshal(data, &e))
	assert.Equal(t, tabulator.EventFinished, e.Type)
	assert.Equal(t, "r1", e.RunID)
	assert.Equal(t, 3, e.Rows)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	_, ts := newTestServer(t, &fakeRunner{}, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	s := &Server{cfg: config.ServerConfig{AllowedOrigins: []string{"https://en.wikipedia.org"}}}

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://en.wikipedia.org")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.False(t, s.checkOrigin(req))

	s.cfg.AllowedOrigins = nil
	assert.True(t, s.checkOrigin(req))
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	s, _ := newTestServer(t, &fakeRunner{}, nil)
	for i := 0; i < 1000; i++ {
		s.Publish(tabulator.Event{Type: tabulator.EventStarted})
	}
}
