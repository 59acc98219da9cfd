package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UnifiedMCP-Client/internal/realtime/realtimetest"
)

type seenRequest struct {
	method string
	path   string
	body   string
}

func newRESTServer(t *testing.T, response string) (*httptest.Server, *[]seenRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{method: r.Method, path: r.URL.EscapedPath(), body: string(body)})
		mu.Unlock()
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	srv, seen := newRESTServer(t, `{"status":"ok"}`)

	out, err := execute(t, "--url", srv.URL, "--no-realtime", "health")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, out)
	assert.Equal(t, "/health", (*seen)[0].path)
}

func TestAgentCommands(t *testing.T) {
	srv, seen := newRESTServer(t, `{"id":"a1"}`)

	_, err := execute(t, "--url", srv.URL, "--no-realtime", "agents", "create", `{"name":"indexer"}`)
	require.NoError(t, err)
	_, err = execute(t, "--url", srv.URL, "--no-realtime", "agents", "run", "a1", "summarize")
	require.NoError(t, err)

	require.Len(t, *seen, 2)
	assert.Equal(t, seenRequest{method: http.MethodPost, path: "/api/v1/agents", body: `{"name":"indexer"}`}, (*seen)[0])
	assert.Equal(t, "/api/v1/agents/a1/run", (*seen)[1].path)
	assert.JSONEq(t, `{"task":"summarize"}`, (*seen)[1].body)
}

func TestTaskCommands(t *testing.T) {
	srv, seen := newRESTServer(t, `{"id":"t2"}`)

	out, err := execute(t, "--url", srv.URL, "--no-realtime",
		"tasks", "create", "index", "-d", "crawl docs", "--depends-on", "t0,t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t2"}`, out)
	assert.JSONEq(t, `{"title":"index","description":"crawl docs","dependencies":["t0","t1"]}`, (*seen)[0].body)

	_, err = execute(t, "--url", srv.URL, "--no-realtime", "tasks", "undepend", "t2", "t1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, (*seen)[1].method)
	assert.Equal(t, "/api/v1/tasks/t2/dependencies/t1", (*seen)[1].path)
}

func TestDeleteCommandPrintsSuccess(t *testing.T) {
	srv, _ := newRESTServer(t, "")

	out, err := execute(t, "--url", srv.URL, "--no-realtime", "tasks", "delete", "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, out)
}

func TestToolExecCommand(t *testing.T) {
	srv, seen := newRESTServer(t, `{"hits":1}`)

	out, err := execute(t, "--url", srv.URL, "--no-realtime", "tools", "exec", "search", `{"q":"go"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hits":1}`, out)
	assert.Equal(t, "/api/v1/tools/search/execute", (*seen)[0].path)
	assert.JSONEq(t, `{"parameters":{"q":"go"}}`, (*seen)[0].body)
}

func TestInvalidJSONArgument(t *testing.T) {
	srv, seen := newRESTServer(t, `{}`)

	_, err := execute(t, "--url", srv.URL, "--no-realtime", "agents", "create", "{not json")
	require.Error(t, err)
	assert.Empty(t, *seen)
}

func TestInvalidURL(t *testing.T) {
	_, err := execute(t, "--url", "ftp://example.com", "health")
	assert.Error(t, err)
}

func TestReportMarksTransientFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := execute(t, "--url", url, "--no-realtime", "--timeout", "1s", "health")
	require.Error(t, err)

	var stderr bytes.Buffer
	assert.Equal(t, exitTempFail, report(&stderr, err))
	assert.Contains(t, stderr.String(), "TRANSPORT_FAILURE, retrying may succeed")

	_, err = execute(t, "--url", "ftp://example.com", "health")
	require.Error(t, err)
	stderr.Reset()
	assert.Equal(t, 1, report(&stderr, err))
	assert.NotContains(t, stderr.String(), "retrying")
}

func TestWatchRequiresRealtime(t *testing.T) {
	srv, _ := newRESTServer(t, `{}`)

	_, err := execute(t, "--url", srv.URL, "--no-realtime", "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realtime")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchPrintsPushEvents(t *testing.T) {
	srv := realtimetest.NewServer(nil)
	t.Cleanup(srv.Close)

	out := &lockedBuffer{}
	cmd := newRootCommand(out)
	cmd.SetArgs([]string{"--url", srv.URL, "watch", "--events", "task_updated"})
	cmd.SetErr(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.True(t, srv.WaitConnected(5*time.Second))
	require.Eventually(t, func() bool {
		_ = srv.Push("task_updated", map[string]any{"id": "t1"})
		return strings.Contains(out.String(), `"task_updated"`)
	}, 5*time.Second, 50*time.Millisecond)

	line := strings.SplitN(strings.TrimSpace(out.String()), "\n", 2)[0]
	var event struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(line), &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "task_updated", event.Name)
	assert.JSONEq(t, `{"id":"t1"}`, string(event.Data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatchStopsWhenConnectionDrops(t *testing.T) {
	srv := realtimetest.NewServer(nil)
	t.Cleanup(srv.Close)

	cmd := newRootCommand(io.Discard)
	cmd.SetArgs([]string{"--url", srv.URL, "watch"})
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()

	require.True(t, srv.WaitConnected(5*time.Second))
	require.Eventually(t, func() bool {
		srv.DropConnections()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, errRealtimeLost)
			assert.Equal(t, exitTempFail, report(io.Discard, err))
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
