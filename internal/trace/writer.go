package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	banner    = strings.Repeat("=", 80)
	separator = strings.Repeat("─", 40)
)

// Footer closes a trace.
type Footer struct {
	Turns   int
	CostUSD float64
	Status  string
	Err     string
}

// Writer renders one session's trace. It is owned by that session; entries are
// appended as they happen so a partial trace survives a crash.
type Writer struct {
	sink      Sink
	key       string
	sessionID string
	logger    *zap.Logger
	now       func() time.Time
	start     time.Time

	mu       sync.Mutex
	once     sync.Once
	failures int
}

// NewWriter starts a trace for sessionID. A nil now uses time.Now.
func NewWriter(sink Sink, sessionID string, logger *zap.Logger, now func() time.Time) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Writer{
		sink:      sink,
		key:       Key(start, sessionID),
		sessionID: sessionID,
		logger:    logger,
		now:       now,
		start:     start,
	}
}

// Key returns the sink key of this trace.
func (w *Writer) Key() string { return w.key }

// Start returns the time the trace was opened.
func (w *Writer) Start() time.Time { return w.start }

// Header writes the banner with the session id, start time and input.
func (w *Writer) Header(input any) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nTask ID: %s\nStarted: %s\nInput: %s\n%s\n\n",
		banner, w.sessionID, w.start.Format(time.DateTime), compactJSON(input), banner)
	w.write(b.String())
}

// Prompt records the rendered prompt.
func (w *Writer) Prompt(prompt string) {
	w.section("[USER] Prompt", prompt)
}

// TurnStart marks turn n.
func (w *Writer) TurnStart(n int) {
	w.write(fmt.Sprintf("%s === TURN %d ===\n\n", w.stamp(), n))
}

// Thinking records reasoning text.
func (w *Writer) Thinking(text string) {
	w.section("[THINKING]", text)
}

// Text records visible output.
func (w *Writer) Text(text string) {
	w.section("[TEXT]", text)
}

// ToolCall records a tool invocation.
func (w *Writer) ToolCall(tool, callID string, input json.RawMessage) {
	w.section(fmt.Sprintf("[TOOL_CALL] %s (%s)", tool, callID), prettyJSON(input))
}

// ToolResult records the result of a tool invocation.
func (w *Writer) ToolResult(tool, callID string, output json.RawMessage, isError bool, d time.Duration) {
	mark := "✓"
	if isError {
		mark = "✗"
	}
	w.section(fmt.Sprintf("[TOOL_RESULT] %s (%s) %s %.1fs", tool, callID, mark, d.Seconds()), prettyJSON(output))
}

// Error records err and every error it wraps.
func (w *Writer) Error(err error) {
	if err == nil {
		return
	}
	var b strings.Builder
	b.WriteString(err.Error())
	for inner := errors.Unwrap(err); inner != nil; inner = errors.Unwrap(inner) {
		fmt.Fprintf(&b, "\ncaused by (%T): %s", inner, inner.Error())
	}
	w.section("[ERROR]", b.String())
}

// Summary records what the session produced.
func (w *Writer) Summary(body string) {
	w.section("[SUMMARY]", body)
}

// Note records a one-line message.
func (w *Writer) Note(msg string) {
	w.write(fmt.Sprintf("%s %s\n", w.stamp(), msg))
}

// Finish writes the footer. Only the first call has an effect; it reports whether
// this call wrote the footer.
func (w *Writer) Finish(f Footer) bool {
	written := false
	w.once.Do(func() {
		written = true
		end := w.now()
		var b strings.Builder
		fmt.Fprintf(&b, "\n%s\nFinished: %s\nDuration: %.1fs\nTurns: %d\nCost: $%.4f\nStatus: %s\n",
			banner, end.Format(time.DateTime), end.Sub(w.start).Seconds(), f.Turns, f.CostUSD, f.Status)
		if f.Err != "" {
			fmt.Fprintf(&b, "Error: %s\n", f.Err)
		}
		b.WriteString(banner + "\n")
		w.write(b.String())
	})
	return written
}

func (w *Writer) section(title, body string) {
	w.write(fmt.Sprintf("%s %s\n%s\n%s\n%s\n\n", w.stamp(), title, separator, body, separator))
}

func (w *Writer) stamp() string {
	return w.now().Format("[15:04:05]")
}

func (w *Writer) write(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.sink.Append(w.key, []byte(s)); err != nil {
		w.failures++
		// only the first failure is logged
		if w.failures == 1 {
			w.logger.Warn("trace write failed", zap.String("session_id", w.sessionID), zap.Error(err))
		}
	}
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(buf.String())
}

// prettyJSON indents JSON values and prints JSON strings unquoted.
func prettyJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
