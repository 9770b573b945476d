package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/engine"
	"github.com/nick134920/ClaudeFlow/internal/observability"
	"github.com/nick134920/ClaudeFlow/internal/trace"
)

// State is the lifecycle state of a session.
type State string

const (
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Result is what a finished stream leaves behind.
type Result struct {
	State      State
	NumTurns   int
	CostUSD    float64
	Structured json.RawMessage
	Texts      []string
}

// StreamFailure reports that the event source itself failed. It is never retried.
type StreamFailure struct {
	Turns int
	Err   error
}

func (e *StreamFailure) Error() string {
	return fmt.Sprintf("event stream failed after %d turns: %v", e.Turns, e.Err)
}

func (e *StreamFailure) Unwrap() error { return e.Err }

type pendingCall struct {
	tool  string
	start time.Time
}

// Reducer consumes one session's stream. It is not safe for concurrent use and must
// not be shared between sessions.
type Reducer struct {
	trace   *trace.Writer
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	state   State
	turns   int
	pending map[string]pendingCall
	texts   []string
}

// NewReducer builds a reducer that writes entries to tw. A nil now uses time.Now.
func NewReducer(tw *trace.Writer, metrics *observability.Metrics, logger *zap.Logger, now func() time.Time) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Reducer{
		trace:   tw,
		metrics: metrics,
		logger:  logger,
		now:     now,
		state:   Running,
		pending: make(map[string]pendingCall),
	}
}

// State returns the current state.
func (r *Reducer) State() State { return r.state }

// Consume processes events in arrival order until a SessionResult arrives, the stream
// ends, or it fails. Events after the SessionResult are not read; the caller cancels
// ctx to release the producer. A stream failure or cancellation returns *StreamFailure.
func (r *Reducer) Consume(ctx context.Context, events <-chan engine.Event, errs <-chan error) (Result, error) {
	for {
		select {
		case <-ctx.Done():
			return r.fail(ctx.Err())
		case ev, ok := <-events:
			if !ok {
				if err := <-errs; err != nil {
					return r.fail(err)
				}
				// a stream that ends without a result still counts as completed
				r.logger.Warn("event stream ended without a result", zap.Int("turns", r.turns))
				r.state = Succeeded
				return r.result(0, nil), nil
			}
			if res, done := r.apply(ev); done {
				r.state = Succeeded
				turns := res.NumTurns
				if turns == 0 {
					turns = r.turns
				}
				out := r.result(res.CostUSD, res.StructuredOutput)
				out.NumTurns = turns
				return out, nil
			}
		}
	}
}

func (r *Reducer) apply(ev engine.Event) (engine.SessionResult, bool) {
	switch v := ev.(type) {
	case engine.TurnStarted:
		r.turns++
		r.trace.TurnStart(r.turns)
	case engine.ThinkingChunk:
		r.trace.Thinking(v.Text)
	case engine.TextChunk:
		r.texts = append(r.texts, v.Text)
		r.trace.Text(v.Text)
	case engine.ToolCallStarted:
		r.pending[v.CallID] = pendingCall{tool: v.ToolName, start: r.now()}
		r.trace.ToolCall(v.ToolName, v.CallID, v.Input)
	case engine.ToolCallFinished:
		tool, dur := "unknown", time.Duration(0)
		if pc, ok := r.pending[v.CallID]; ok {
			delete(r.pending, v.CallID)
			tool, dur = pc.tool, r.now().Sub(pc.start)
		} else {
			r.logger.Warn("tool result without matching call", zap.String("call_id", v.CallID))
		}
		r.trace.ToolResult(tool, v.CallID, v.Output, v.IsError, dur)
		r.metrics.RecordToolCall(tool, v.IsError)
	case engine.SessionResult:
		return v, true
	default:
		r.logger.Warn("ignoring unsupported event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
	return engine.SessionResult{}, false
}

func (r *Reducer) fail(err error) (Result, error) {
	r.state = Failed
	failure := &StreamFailure{Turns: r.turns, Err: err}
	r.trace.Error(failure)
	return Result{State: Failed, NumTurns: r.turns, Texts: r.texts}, failure
}

func (r *Reducer) result(cost float64, structured json.RawMessage) Result {
	return Result{
		State:      r.state,
		NumTurns:   r.turns,
		CostUSD:    cost,
		Structured: structured,
		Texts:      r.texts,
	}
}
