// Package engine is the boundary to the autonomous generation engine. A Source
// starts one session and yields its events in arrival order.
package engine

import (
	"context"
	"encoding/json"
)

// Event is one item of a session stream. The variants are closed; consumers switch on
// the concrete type.
type Event interface {
	isEvent()
}

// TurnStarted marks the beginning of a model turn.
type TurnStarted struct{}

// ThinkingChunk is reasoning text. It is traced but never part of the document.
type ThinkingChunk struct {
	Text string
}

// TextChunk is visible model output.
type TextChunk struct {
	Text string
}

// ToolCallStarted is emitted when the model invokes a tool.
type ToolCallStarted struct {
	CallID   string
	ToolName string
	Input    json.RawMessage
}

// ToolCallFinished carries the result of an earlier ToolCallStarted with the same CallID.
type ToolCallFinished struct {
	CallID  string
	IsError bool
	Output  json.RawMessage
}

// SessionResult is the final event of a successful session.
type SessionResult struct {
	NumTurns         int
	CostUSD          float64
	StructuredOutput json.RawMessage
}

func (TurnStarted) isEvent()      {}
func (ThinkingChunk) isEvent()    {}
func (TextChunk) isEvent()        {}
func (ToolCallStarted) isEvent()  {}
func (ToolCallFinished) isEvent() {}
func (SessionResult) isEvent()    {}

// RunRequest starts a session.
type RunRequest struct {
	SessionID      string                     `json:"session_id"`
	Prompt         string                     `json:"prompt"`
	Model          string                     `json:"model,omitempty"`
	MaxTurns       int                        `json:"max_turns,omitempty"`
	PermissionMode string                     `json:"permission_mode,omitempty"`
	AllowedTools   []string                   `json:"allowed_tools,omitempty"`
	MCPServers     map[string]json.RawMessage `json:"mcp_servers,omitempty"`
	OutputSchema   json.RawMessage            `json:"output_schema,omitempty"`
	Agents         map[string]AgentDefinition `json:"agents,omitempty"`
}

// AgentDefinition is a helper agent the session may delegate to.
type AgentDefinition struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Source starts sessions. The event channel is closed when the stream ends; the error
// channel then yields at most one error. Producers stop when ctx is cancelled, so a
// consumer that stops reading early must cancel it.
type Source interface {
	Stream(ctx context.Context, req RunRequest) (<-chan Event, <-chan error)
}
