package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nick134920/ClaudeFlow/internal/agent"
	"github.com/nick134920/ClaudeFlow/internal/config"
	"github.com/nick134920/ClaudeFlow/internal/observability"
	"github.com/nick134920/ClaudeFlow/internal/session"
	"github.com/nick134920/ClaudeFlow/internal/store"
)

type fakeRunner struct {
	profiles map[string]*agent.Profile
	block    chan struct{}

	mu   sync.Mutex
	seq  int
	reqs []agent.Request
	ctxs []context.Context
	done chan agent.Request
}

func newFakeRunner(t *testing.T) *fakeRunner {
	t.Helper()
	profiles, err := agent.ProfilesFromConfig(map[string]config.AgentConfig{
		"web": {
			Model:        "sonnet",
			ParentPageID: "p",
			Prompt:       "Analyse {{ .url }}",
			AllowedTools: []string{"WebFetch"},
			Subagents:    map[string]config.SubagentConfig{"reader": {Description: "reads", Prompt: "read"}},
		},
	})
	require.NoError(t, err)
	return &fakeRunner{profiles: profiles, done: make(chan agent.Request, 16)}
}

func (f *fakeRunner) Modules() []string {
	return []string{"web"}
}

func (f *fakeRunner) Profile(module string) (*agent.Profile, bool) {
	p, ok := f.profiles[module]
	return p, ok
}

func (f *fakeRunner) NewSessionID(module string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s_260314_090000_%04d", module, f.seq)
}

func (f *fakeRunner) RunSession(ctx context.Context, req agent.Request) agent.Outcome {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.ctxs = append(f.ctxs, ctx)
	f.mu.Unlock()

	status := session.Succeeded
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			status = session.Failed
		}
	}
	f.done <- req
	return agent.Outcome{SessionID: req.SessionID, Status: status}
}

func (f *fakeRunner) Requests() []agent.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Request(nil), f.reqs...)
}

func testConfig() *config.Config {
	return &config.Config{Server: config.ServerConfig{
		Addr:            "127.0.0.1:0",
		APIKey:          "secret",
		MetricsEnabled:  true,
		ShutdownTimeout: time.Second,
	}}
}

func post(t *testing.T, h http.Handler, target, body string) (*httptest.ResponseRecorder, TaskResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp TaskResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestSubmitStartsSession(t *testing.T) {
	runner := newFakeRunner(t)
	core, logs := observer.New(zap.InfoLevel)
	metrics := observability.NewMetrics()
	s := New(testConfig(), zap.New(core), runner, nil, metrics)

	rec, resp := post(t, s.Handler(), "/v1/agents/web?api_key=secret", `{"url":"https://github.com/org/repo","input":{"lang":"en"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)
	require.Equal(t, "web_260314_090000_0001", resp.TaskID)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	select {
	case req := <-runner.done:
		require.Equal(t, "web", req.Module)
		require.Equal(t, resp.TaskID, req.SessionID)
		require.Equal(t, map[string]any{"url": "https://github.com/org/repo", "lang": "en"}, req.Input)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not started")
	}

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "203.0.113.7", fields["client_ip"])
	require.Equal(t, resp.TaskID, fields["session_id"])
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("POST /v1/agents/{module}", "200")))
}

func TestSubmitRejectsBadAPIKey(t *testing.T) {
	runner := newFakeRunner(t)
	core, logs := observer.New(zap.InfoLevel)
	s := New(testConfig(), zap.New(core), runner, nil, nil)

	for _, target := range []string{"/v1/agents/web?api_key=wrong", "/v1/agents/web"} {
		rec, resp := post(t, s.Handler(), target, `{"url":"https://example.com"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.False(t, resp.Success)
		require.Equal(t, "Invalid API Key", resp.Message)
	}
	require.Empty(t, runner.Requests())

	rejected := logs.FilterMessage("request rejected").All()
	require.Len(t, rejected, 2)
	require.Equal(t, "invalid_api_key", rejected[0].ContextMap()["reason"])
}

func TestSubmitAcceptsHeaderKey(t *testing.T) {
	runner := newFakeRunner(t)
	s := New(testConfig(), nil, runner, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/agents/web", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	<-runner.done
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name   string
		target string
		body   string
		code   int
	}{
		{"malformed url", "/v1/agents/web?api_key=secret", `{"url":"not a url"}`, http.StatusBadRequest},
		{"ftp url", "/v1/agents/web?api_key=secret", `{"url":"ftp://example.com"}`, http.StatusBadRequest},
		{"bad json", "/v1/agents/web?api_key=secret", `{"url":`, http.StatusBadRequest},
		{"empty input", "/v1/agents/web?api_key=secret", `{}`, http.StatusBadRequest},
		{"unknown module", "/v1/agents/nope?api_key=secret", `{"url":"https://example.com"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := newFakeRunner(t)
			s := New(testConfig(), nil, runner, nil, nil)
			rec, resp := post(t, s.Handler(), tc.target, tc.body)
			require.Equal(t, tc.code, rec.Code)
			require.False(t, resp.Success)
			require.NotEmpty(t, resp.Message)
			require.Empty(t, runner.Requests())
		})
	}
}

func TestSessionLookup(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Start(context.Background(), "web_260314_090000_0001", "web", `{"url":"https://example.com"}`, started))
	require.NoError(t, st.Finish(context.Background(), "web_260314_090000_0001", store.Outcome{Status: "succeeded", Turns: 3, PageID: "pg"}, started.Add(time.Minute)))

	s := New(testConfig(), nil, newFakeRunner(t), st, nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/web_260314_090000_0001?api_key=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var row store.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	require.Equal(t, "succeeded", row.Status)
	require.Equal(t, 3, row.Turns)
	require.Equal(t, "pg", row.PageID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/missing?api_key=secret", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/web_260314_090000_0001", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAgents(t *testing.T) {
	s := New(testConfig(), nil, newFakeRunner(t), nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/agents?api_key=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"name":"web","model":"sonnet","allowed_tools":["WebFetch"],"subagents":["reader"]}]`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionLookupWithoutLedger(t *testing.T) {
	s := New(testConfig(), nil, newFakeRunner(t), nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/x?api_key=secret", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	s := New(testConfig(), nil, newFakeRunner(t), nil, metrics)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "claudeflow_http_requests_total")

	cfg := testConfig()
	cfg.Server.MetricsEnabled = false
	off := New(cfg, nil, newFakeRunner(t), nil, metrics)
	rec := httptest.NewRecorder()
	off.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDrainWaitsForSessions(t *testing.T) {
	runner := newFakeRunner(t)
	runner.block = make(chan struct{})
	s := New(testConfig(), nil, runner, nil, nil)

	s.startSession(agent.Request{Module: "web", SessionID: "a"})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(runner.block)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
	require.Equal(t, "a", (<-runner.done).SessionID)
}

func TestDrainCancelsSessionsAfterTimeout(t *testing.T) {
	runner := newFakeRunner(t)
	runner.block = make(chan struct{})
	s := New(testConfig(), nil, runner, nil, nil)

	s.startSession(agent.Request{Module: "web", SessionID: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.Drain(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "a", (<-runner.done).SessionID)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Error(t, runner.ctxs[0].Err())
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", " 198.51.100.2 , 10.0.0.1")
	require.Equal(t, "198.51.100.2", clientIP(r))
}

func TestNewServerWiring(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = config.EngineConfig{BaseURL: "http://127.0.0.1:7070", Transport: "connect"}
	cfg.Trace.Dir = t.TempDir()
	cfg.Agents = map[string]config.AgentConfig{"web": {ParentPageID: "p", Prompt: "Analyse {{ .url }}"}}

	_, err := NewServer(cfg, zap.NewNop())
	require.ErrorContains(t, err, "notion.token")

	cfg.Notion = config.NotionConfig{Token: "secret", BaseURL: "http://notion.invalid", MaxAttempts: 3}
	cfg.Store.Path = filepath.Join(t.TempDir(), "ledger", "sessions.db")
	s, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, s.ledger)
	require.Equal(t, []string{"web"}, s.runner.Modules())
	s.close()

	cfg.Engine.Transport = "carrier-pigeon"
	_, err = NewServer(cfg, zap.NewNop())
	require.Error(t, err)
}
