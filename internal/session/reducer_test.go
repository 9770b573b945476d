package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nick134920/ClaudeFlow/internal/engine"
	"github.com/nick134920/ClaudeFlow/internal/engine/mock"
	"github.com/nick134920/ClaudeFlow/internal/trace"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(500 * time.Millisecond)
	return c.now
}

func run(t *testing.T, src *mock.Source) (Result, string, error) {
	t.Helper()
	sink := trace.NewMemorySink()
	clock := &stepClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	tw := trace.NewWriter(sink, "s1", nil, clock.Now)
	r := NewReducer(tw, nil, nil, clock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, errs := src.Stream(ctx, engine.RunRequest{SessionID: "s1"})
	res, err := r.Consume(ctx, events, errs)
	require.Equal(t, res.State, r.State())
	return res, sink.String(tw.Key()), err
}

func TestReducerHappyPath(t *testing.T) {
	src := &mock.Source{Events: []engine.Event{
		engine.TurnStarted{},
		engine.ThinkingChunk{Text: "plan"},
		engine.ToolCallStarted{CallID: "c1", ToolName: "WebFetch", Input: json.RawMessage(`{}`)},
		engine.ToolCallFinished{CallID: "c1", Output: json.RawMessage(`"ok"`)},
		engine.TextChunk{Text: "one"},
		engine.TurnStarted{},
		engine.TextChunk{Text: "two"},
		engine.SessionResult{NumTurns: 2, CostUSD: 0.5, StructuredOutput: json.RawMessage(`{"title":"T","blocks":[]}`)},
		engine.TextChunk{Text: "after result"},
	}}

	res, out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, Succeeded, res.State)
	require.Equal(t, 2, res.NumTurns)
	require.Equal(t, 0.5, res.CostUSD)
	require.JSONEq(t, `{"title":"T","blocks":[]}`, string(res.Structured))
	require.Equal(t, []string{"one", "two"}, res.Texts)

	require.Equal(t, 2, strings.Count(out, "=== TURN"))
	require.Contains(t, out, "[TOOL_RESULT] WebFetch (c1) ✓ 1.0s")
	require.NotContains(t, out, "after result")
}

func TestReducerFailureMidStream(t *testing.T) {
	boom := errors.New("connection reset by peer")
	src := &mock.Source{
		Events: []engine.Event{engine.TurnStarted{}, engine.TextChunk{Text: "partial"}, engine.TurnStarted{}},
		Err:    boom,
	}

	res, out, err := run(t, src)
	require.Equal(t, Failed, res.State)
	require.Equal(t, 2, res.NumTurns)

	var failure *StreamFailure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, 2, failure.Turns)
	require.ErrorIs(t, err, boom)

	require.Equal(t, 2, strings.Count(out, "=== TURN"))
	require.Equal(t, 1, strings.Count(out, "[ERROR]"))
	require.Less(t, strings.LastIndex(out, "=== TURN 2 ==="), strings.Index(out, "[ERROR]"))
	require.Contains(t, out, "connection reset by peer")
}

func TestReducerUnknownCallID(t *testing.T) {
	src := &mock.Source{Events: []engine.Event{
		engine.ToolCallFinished{CallID: "ghost", IsError: true, Output: json.RawMessage(`"lost"`)},
		engine.SessionResult{NumTurns: 1},
	}}

	res, out, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, Succeeded, res.State)
	require.Contains(t, out, "[TOOL_RESULT] unknown (ghost) ✗ 0.0s")
}

func TestReducerStreamEndsWithoutResult(t *testing.T) {
	src := &mock.Source{Events: []engine.Event{engine.TurnStarted{}, engine.TextChunk{Text: "hi"}}}

	res, _, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, Succeeded, res.State)
	require.Equal(t, 1, res.NumTurns)
	require.Zero(t, res.CostUSD)
	require.Nil(t, res.Structured)
}

func TestReducerResultWithoutTurnCountUsesCounted(t *testing.T) {
	src := &mock.Source{Events: []engine.Event{engine.TurnStarted{}, engine.TurnStarted{}, engine.TurnStarted{}, engine.SessionResult{CostUSD: 1}}}
	res, _, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, 3, res.NumTurns)
}

func TestReducerCancellation(t *testing.T) {
	src := &mock.Source{StreamFn: func(ctx context.Context, _ engine.RunRequest) (<-chan engine.Event, <-chan error) {
		return make(chan engine.Event), make(chan error)
	}}

	tw := trace.NewWriter(trace.NewMemorySink(), "s", nil, nil)
	r := NewReducer(tw, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	events, errs := src.Stream(ctx, engine.RunRequest{})
	cancel()

	res, err := r.Consume(ctx, events, errs)
	require.Equal(t, Failed, res.State)
	require.ErrorIs(t, err, context.Canceled)
}
