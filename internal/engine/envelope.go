package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope types on the wire.
const (
	TypeTurnStarted = "turn_started"
	TypeThinking    = "thinking"
	TypeText        = "text"
	TypeToolCall    = "tool_call"
	TypeToolResult  = "tool_result"
	TypeResult      = "result"
	TypeError       = "error"
)

// Envelope is the JSON form of an event, shared by the Connect and NDJSON transports.
type Envelope struct {
	Type             string          `json:"type"`
	Text             string          `json:"text,omitempty"`
	CallID           string          `json:"call_id,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	Input            json.RawMessage `json:"input,omitempty"`
	Output           json.RawMessage `json:"output,omitempty"`
	IsError          bool            `json:"is_error,omitempty"`
	NumTurns         int             `json:"num_turns,omitempty"`
	CostUSD          float64         `json:"cost_usd,omitempty"`
	StructuredOutput json.RawMessage `json:"structured_output,omitempty"`
	Code             string          `json:"code,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// RemoteError is an error the engine reported inside the stream.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "engine error: " + e.Message
	}
	return fmt.Sprintf("engine error (%s): %s", e.Code, e.Message)
}

// Decode converts the envelope into an event. An error envelope decodes to a
// *RemoteError.
func (e Envelope) Decode() (Event, error) {
	switch e.Type {
	case TypeTurnStarted:
		return TurnStarted{}, nil
	case TypeThinking:
		return ThinkingChunk{Text: e.Text}, nil
	case TypeText:
		return TextChunk{Text: e.Text}, nil
	case TypeToolCall:
		return ToolCallStarted{CallID: e.CallID, ToolName: e.ToolName, Input: e.Input}, nil
	case TypeToolResult:
		return ToolCallFinished{CallID: e.CallID, IsError: e.IsError, Output: e.Output}, nil
	case TypeResult:
		return SessionResult{NumTurns: e.NumTurns, CostUSD: e.CostUSD, StructuredOutput: e.StructuredOutput}, nil
	case TypeError:
		return nil, &RemoteError{Code: e.Code, Message: e.Error}
	default:
		return nil, fmt.Errorf("unknown envelope type %q", e.Type)
	}
}

// EnvelopeOf is the inverse of Decode for the non-error variants.
func EnvelopeOf(ev Event) Envelope {
	switch v := ev.(type) {
	case TurnStarted:
		return Envelope{Type: TypeTurnStarted}
	case ThinkingChunk:
		return Envelope{Type: TypeThinking, Text: v.Text}
	case TextChunk:
		return Envelope{Type: TypeText, Text: v.Text}
	case ToolCallStarted:
		return Envelope{Type: TypeToolCall, CallID: v.CallID, ToolName: v.ToolName, Input: v.Input}
	case ToolCallFinished:
		return Envelope{Type: TypeToolResult, CallID: v.CallID, IsError: v.IsError, Output: v.Output}
	case SessionResult:
		return Envelope{Type: TypeResult, NumTurns: v.NumTurns, CostUSD: v.CostUSD, StructuredOutput: v.StructuredOutput}
	default:
		return Envelope{Type: TypeError, Error: fmt.Sprintf("unsupported event %T", ev)}
	}
}

// ErrorEnvelope wraps err for the wire.
func ErrorEnvelope(err error) Envelope {
	var re *RemoteError
	if errors.As(err, &re) {
		return Envelope{Type: TypeError, Code: re.Code, Error: re.Message}
	}
	return Envelope{Type: TypeError, Error: err.Error()}
}
