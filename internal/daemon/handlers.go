package daemon

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/agent"
	"github.com/nick134920/ClaudeFlow/internal/store"
)

var urlPattern = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)

const maxBodyBytes = 1 << 20

// SubmitRequest is the body of POST /v1/agents/{module}. URL, when set, is validated
// and exposed to the prompt template as "url"; Input carries any other fields.
type SubmitRequest struct {
	URL   string         `json:"url,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// TaskResponse is returned by the submit endpoint.
type TaskResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled || s.metrics == nil {
		http.NotFound(w, r)
		return
	}

	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// AgentSummary describes one configured module.
type AgentSummary struct {
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	MaxTurns     int      `json:"max_turns,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	Subagents    []string `json:"subagents,omitempty"`
}

func (s *Server) agentsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		requestInfoFrom(r.Context()).reason = "invalid_api_key"
		writeJSON(w, http.StatusUnauthorized, TaskResponse{Message: "Invalid API Key"})
		return
	}

	out := make([]AgentSummary, 0)
	for _, name := range s.runner.Modules() {
		p, ok := s.runner.Profile(name)
		if !ok {
			continue
		}
		sum := AgentSummary{Name: name, Model: p.Model, MaxTurns: p.MaxTurns, AllowedTools: p.AllowedTools}
		for sub := range p.Agents {
			sum.Subagents = append(sum.Subagents, sub)
		}
		sort.Strings(sum.Subagents)
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	info := requestInfoFrom(r.Context())

	if !s.authorized(r) {
		info.reason = "invalid_api_key"
		writeJSON(w, http.StatusUnauthorized, TaskResponse{Message: "Invalid API Key"})
		return
	}

	module := r.PathValue("module")
	if _, ok := s.runner.Profile(module); !ok {
		info.reason = "unknown_module"
		writeJSON(w, http.StatusNotFound, TaskResponse{Message: "Unknown module: " + module})
		return
	}

	var body SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		info.reason = "invalid_body"
		writeJSON(w, http.StatusBadRequest, TaskResponse{Message: "Invalid request body"})
		return
	}

	input := make(map[string]any, len(body.Input)+1)
	for k, v := range body.Input {
		input[k] = v
	}
	if body.URL != "" {
		if !urlPattern.MatchString(body.URL) {
			info.reason = "invalid_url"
			writeJSON(w, http.StatusBadRequest, TaskResponse{Message: "Invalid URL format"})
			return
		}
		input["url"] = body.URL
	}
	if len(input) == 0 {
		info.reason = "empty_input"
		writeJSON(w, http.StatusBadRequest, TaskResponse{Message: "url or input is required"})
		return
	}

	id := s.runner.NewSessionID(module)
	info.sessionID = id
	s.startSession(agent.Request{Module: module, SessionID: id, Input: input})

	writeJSON(w, http.StatusOK, TaskResponse{Success: true, TaskID: id})
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	info := requestInfoFrom(r.Context())

	if !s.authorized(r) {
		info.reason = "invalid_api_key"
		writeJSON(w, http.StatusUnauthorized, TaskResponse{Message: "Invalid API Key"})
		return
	}
	if s.ledger == nil {
		info.reason = "ledger_disabled"
		writeJSON(w, http.StatusNotFound, TaskResponse{Message: "Session ledger is disabled"})
		return
	}

	id := r.PathValue("id")
	info.sessionID = id
	row, err := s.ledger.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, TaskResponse{Message: "Unknown session"})
	case err != nil:
		s.logger.Error("ledger lookup failed", zap.String("session_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, TaskResponse{Message: "Lookup failed"})
	default:
		writeJSON(w, http.StatusOK, row)
	}
}

// authorized accepts the key as the api_key query parameter or the X-API-Key header.
// An empty configured key disables the check.
func (s *Server) authorized(r *http.Request) bool {
	want := s.cfg.Server.APIKey
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("api_key")
	if got == "" {
		got = r.Header.Get("X-API-Key")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type requestInfo struct {
	sessionID string
	reason    string
}

type requestInfoKey struct{}

func requestInfoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests writes one structured line per request and counts it by route.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		info := &requestInfo{}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r = r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info))
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(route, rec.status)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("client_ip", clientIP(r)),
			zap.String("request_id", requestID),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if info.sessionID != "" {
			fields = append(fields, zap.String("session_id", info.sessionID))
		}
		if info.reason != "" {
			fields = append(fields, zap.String("reason", info.reason))
			s.logger.Warn("request rejected", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
