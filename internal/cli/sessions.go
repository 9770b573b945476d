package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nick134920/ClaudeFlow/internal/store"
)

// NewSessionsCmd lists recent sessions from the ledger.
func NewSessionsCmd(opts *Options) *cobra.Command {
	var limit int
	var module string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Store.Path)
			if path == "" {
				return errors.New("session ledger is disabled (store.path is empty)")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no session ledger at %s: %w", path, err)
			}

			st, err := store.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.List(cmd.Context(), module, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No sessions.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tTURNS\tCOST\tSTARTED\tDURATION\tPAGE")
			for _, s := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%d\t$%.4f\t%s\t%s\t%s\n",
					s.ID, s.Status, s.Turns, s.CostUSD, s.StartedAt.Local().Format(time.DateTime), duration(s), orDash(s.PageURL))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions")
	cmd.Flags().StringVar(&module, "module", "", "Only list this module")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func duration(s store.Session) string {
	if s.FinishedAt == nil {
		return "-"
	}
	return s.FinishedAt.Sub(s.StartedAt).Round(100 * time.Millisecond).String()
}
