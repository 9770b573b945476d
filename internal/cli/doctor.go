package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nick134920/ClaudeFlow/internal/agent"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			// compiles every prompt template
			profiles, err := agent.ProfilesFromConfig(cfg.Agents)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(profiles))
			for name := range profiles {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Agents: %d (%s)\n", len(names), strings.Join(names, ", "))
			for _, name := range names {
				p := profiles[name]
				fmt.Fprintf(out, "  %s: model=%s max_turns=%d parent=%s tools=%d subagents=%d\n",
					name, orDash(p.Model), p.MaxTurns, p.ParentPageID, len(p.AllowedTools), len(p.Agents))
			}
			fmt.Fprintf(out, "Engine: %s via %s\n", cfg.Engine.BaseURL, cfg.Engine.Transport)

			token := "missing"
			if strings.TrimSpace(cfg.Notion.Token) != "" {
				token = "set"
			}
			fmt.Fprintf(out, "Notion: %s (version %s, token %s, %d attempts, %d blocks/request)\n",
				cfg.Notion.BaseURL, cfg.Notion.Version, token, cfg.Notion.MaxAttempts, cfg.Notion.MaxBlocksPerRequest)
			fmt.Fprintf(out, "Traces: %s, ledger: %s, metrics: %v\n", cfg.Trace.Dir, orDash(cfg.Store.Path), cfg.Server.MetricsEnabled)
			return nil
		},
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
