package config

import (
	"fmt"
	"regexp"
	"strings"
)

// AgentConfig describes one module: how its sessions are started and where their
// documents are published.
type AgentConfig struct {
	Model          string         `mapstructure:"model"`
	MaxTurns       int            `mapstructure:"max_turns"`
	ParentPageID   string         `mapstructure:"parent_page_id"`
	Prompt         string         `mapstructure:"prompt"` // text/template over the request input
	PermissionMode string         `mapstructure:"permission_mode"`
	AllowedTools   []string       `mapstructure:"allowed_tools"`
	MCPServers     map[string]any `mapstructure:"mcp_servers"`
	OutputSchema   map[string]any `mapstructure:"output_schema"`

	Subagents map[string]SubagentConfig `mapstructure:"subagents"`
}

// SubagentConfig defines a helper agent the session may delegate to.
type SubagentConfig struct {
	Description string   `mapstructure:"description"`
	Prompt      string   `mapstructure:"prompt"`
	Tools       []string `mapstructure:"tools"`
	Model       string   `mapstructure:"model"`
}

// Module names end up in session ids and trace file names.
var moduleName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

func (a AgentConfig) validate(name string) error {
	if !moduleName.MatchString(name) {
		return fmt.Errorf("agent name %q must match %s", name, moduleName)
	}
	if strings.TrimSpace(a.Prompt) == "" {
		return fmt.Errorf("agent %q: prompt is required", name)
	}
	if strings.TrimSpace(a.ParentPageID) == "" {
		return fmt.Errorf("agent %q: parent_page_id is required", name)
	}
	if a.MaxTurns < 0 {
		return fmt.Errorf("agent %q: max_turns must be >= 0", name)
	}
	for sub, def := range a.Subagents {
		if strings.TrimSpace(def.Description) == "" || strings.TrimSpace(def.Prompt) == "" {
			return fmt.Errorf("agent %q: subagent %q needs a description and a prompt", name, sub)
		}
	}
	switch a.PermissionMode {
	case "", "default", "acceptEdits", "bypassPermissions", "plan":
	default:
		return fmt.Errorf("agent %q: unknown permission_mode %q", name, a.PermissionMode)
	}
	return nil
}
