package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/config"
	"github.com/nick134920/ClaudeFlow/internal/daemon"
	"github.com/nick134920/ClaudeFlow/internal/engine"
	"github.com/nick134920/ClaudeFlow/internal/logging"
	"github.com/nick134920/ClaudeFlow/internal/version"
)

func main() {
	var cfgPath string
	var addr string

	root := &cobra.Command{
		Use:     "claudeflowd",
		Short:   "ClaudeFlow daemon: runs sessions and publishes their documents",
		Version: version.Full(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort
			logger.Info("claudeflowd", startupFields(cfg)...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := daemon.NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "Path to config file (default: configs/config.yaml)")
	root.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startupFields describes what the daemon is about to serve.
func startupFields(cfg *config.Config) []zap.Field {
	modules := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		modules = append(modules, name)
	}
	sort.Strings(modules)

	ledger := cfg.Store.Path
	if ledger == "" {
		ledger = "disabled"
	}
	transport := cfg.Engine.Transport
	if transport == "" {
		transport = engine.TransportConnect
	}
	return []zap.Field{
		zap.String("version", version.Full()),
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("modules", modules),
		zap.String("engine", transport+" "+cfg.Engine.BaseURL),
		zap.String("trace_dir", cfg.Trace.Dir),
		zap.String("ledger", ledger),
		zap.Bool("api_key", cfg.Server.APIKey != ""),
	}
}
