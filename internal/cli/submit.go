package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nick134920/ClaudeFlow/internal/daemon"
	"github.com/nick134920/ClaudeFlow/internal/version"
)

// NewSubmitCmd posts a session request to the daemon and prints the session id.
func NewSubmitCmd(opts *Options) *cobra.Command {
	var server string
	var apiKey string
	var inputs []string

	cmd := &cobra.Command{
		Use:   "submit <module> [url]",
		Short: "Start a session on the daemon",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			body := daemon.SubmitRequest{}
			if len(args) == 2 {
				body.URL = args[1]
			}
			input, err := parseInputs(inputs)
			if err != nil {
				return err
			}
			body.Input = input

			if server == "" {
				server = daemonURL(cfg.Server.Addr)
			}
			if apiKey == "" {
				apiKey = cfg.Server.APIKey
			}

			target := strings.TrimRight(server, "/") + "/v1/agents/" + url.PathEscape(args[0])
			if apiKey != "" {
				target += "?api_key=" + url.QueryEscape(apiKey)
			}

			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(data))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("User-Agent", version.UserAgent())

			client := &http.Client{Timeout: 30 * time.Second}
			res, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			defer res.Body.Close()

			var resp daemon.TaskResponse
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				return fmt.Errorf("submit: decode response (status %d): %w", res.StatusCode, err)
			}
			if !resp.Success {
				return fmt.Errorf("submit rejected (status %d): %s", res.StatusCode, resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.TaskID)
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "Daemon base URL (default: derived from server.addr)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default: server.api_key)")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Extra prompt input as key=value (repeatable)")
	return cmd
}

func parseInputs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --input %q, want key=value", p)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
