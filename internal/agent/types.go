package agent

import (
	"errors"

	"github.com/nick134920/ClaudeFlow/internal/session"
)

// ErrUnknownModule is returned for a module with no configured profile.
var ErrUnknownModule = errors.New("unknown module")

// Request starts one session. An empty SessionID is generated by the runner.
type Request struct {
	Module    string
	SessionID string
	Input     map[string]any
}

// Outcome is the terminal state of a session. Err is set when Status is Failed.
type Outcome struct {
	SessionID string
	Status    session.State
	Turns     int
	CostUSD   float64
	PageID    string
	PageURL   string
	Err       error
}
