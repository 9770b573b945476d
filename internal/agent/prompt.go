package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/nick134920/ClaudeFlow/internal/config"
	"github.com/nick134920/ClaudeFlow/internal/engine"
)

// Profile is a module's session template: how its prompt is rendered, what the engine
// is allowed to do and where the resulting page goes.
type Profile struct {
	Module         string
	Model          string
	MaxTurns       int
	ParentPageID   string
	PermissionMode string
	AllowedTools   []string
	MCPServers     map[string]json.RawMessage
	OutputSchema   json.RawMessage
	Agents         map[string]engine.AgentDefinition

	prompt *template.Template
}

// NewProfile compiles the prompt template and encodes the engine options of cfg.
func NewProfile(module string, cfg config.AgentConfig) (*Profile, error) {
	tmpl, err := template.New(module).Option("missingkey=error").Parse(cfg.Prompt)
	if err != nil {
		return nil, fmt.Errorf("agent %q: parse prompt: %w", module, err)
	}

	p := &Profile{
		Module:         module,
		Model:          cfg.Model,
		MaxTurns:       cfg.MaxTurns,
		ParentPageID:   strings.TrimSpace(cfg.ParentPageID),
		PermissionMode: cfg.PermissionMode,
		AllowedTools:   append([]string(nil), cfg.AllowedTools...),
		prompt:         tmpl,
	}

	if len(cfg.MCPServers) > 0 {
		p.MCPServers = make(map[string]json.RawMessage, len(cfg.MCPServers))
		for name, server := range cfg.MCPServers {
			raw, err := json.Marshal(server)
			if err != nil {
				return nil, fmt.Errorf("agent %q: encode mcp server %q: %w", module, name, err)
			}
			p.MCPServers[name] = raw
		}
	}
	if len(cfg.OutputSchema) > 0 {
		raw, err := json.Marshal(cfg.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("agent %q: encode output schema: %w", module, err)
		}
		p.OutputSchema = raw
	}
	if len(cfg.Subagents) > 0 {
		p.Agents = make(map[string]engine.AgentDefinition, len(cfg.Subagents))
		for name, sub := range cfg.Subagents {
			p.Agents[name] = engine.AgentDefinition{
				Description: sub.Description,
				Prompt:      sub.Prompt,
				Tools:       append([]string(nil), sub.Tools...),
				Model:       sub.Model,
			}
		}
	}
	return p, nil
}

// ProfilesFromConfig builds one profile per configured agent.
func ProfilesFromConfig(agents map[string]config.AgentConfig) (map[string]*Profile, error) {
	out := make(map[string]*Profile, len(agents))
	for name, cfg := range agents {
		p, err := NewProfile(name, cfg)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

// RenderPrompt executes the prompt template over input. Referencing a key the input
// does not carry is an error.
func (p *Profile) RenderPrompt(input map[string]any) (string, error) {
	if input == nil {
		input = map[string]any{}
	}
	var b strings.Builder
	if err := p.prompt.Execute(&b, input); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// RunRequest builds the engine request for one session.
func (p *Profile) RunRequest(sessionID, prompt string) engine.RunRequest {
	return engine.RunRequest{
		SessionID:      sessionID,
		Prompt:         prompt,
		Model:          p.Model,
		MaxTurns:       p.MaxTurns,
		PermissionMode: p.PermissionMode,
		AllowedTools:   p.AllowedTools,
		MCPServers:     p.MCPServers,
		OutputSchema:   p.OutputSchema,
		Agents:         p.Agents,
	}
}

func sortedModules(profiles map[string]*Profile) []string {
	out := make([]string, 0, len(profiles))
	for name := range profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
