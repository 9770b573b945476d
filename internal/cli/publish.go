package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/nick134920/ClaudeFlow/internal/blocks"
	"github.com/nick134920/ClaudeFlow/internal/logging"
	"github.com/nick134920/ClaudeFlow/internal/notion"
)

// NewPublishCmd publishes an authored document through the translator and the
// Notion client.
func NewPublishCmd(opts *Options) *cobra.Command {
	var file string
	var parent string
	var module string
	var title string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "publish --file <doc.json|doc.yaml|doc.md>",
		Short: "Publish a document file as a Notion page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			doc, err := loadDocument(file, src)
			if err != nil {
				return err
			}
			if title != "" {
				doc.Title = title
			}

			tr, err := blocks.NewTranslator(nil).Translate(doc.Blocks)
			if err != nil {
				return err
			}
			errOut := cmd.ErrOrStderr()
			for _, w := range tr.Warnings {
				fmt.Fprintf(errOut, "warning: %s\n", w)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				enc.SetEscapeHTML(false)
				return enc.Encode(struct {
					Title  string             `json:"title"`
					Blocks []blocks.WireBlock `json:"blocks"`
				}{doc.Title, tr.Blocks})
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if parent == "" && module != "" {
				agentCfg, ok := cfg.Agents[module]
				if !ok {
					return fmt.Errorf("unknown module %q", module)
				}
				parent = agentCfg.ParentPageID
			}
			if strings.TrimSpace(parent) == "" {
				return errors.New("--parent or --module is required")
			}
			if strings.TrimSpace(cfg.Notion.Token) == "" {
				return errors.New("notion.token is required (CLAUDEFLOW_NOTION_TOKEN)")
			}

			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			transport := notion.NewHTTPTransport(cfg.Notion.BaseURL, cfg.Notion.Token, cfg.Notion.Version, cfg.Notion.Timeout)
			client := notion.NewClient(transport, notion.Options{
				MaxAttempts: cfg.Notion.MaxAttempts,
				Backoff:     cfg.Notion.Backoff,
				BatchSize:   cfg.Notion.MaxBlocksPerRequest,
			}, logger, nil)

			page, err := client.CreatePage(cmd.Context(), strings.TrimSpace(parent), doc.Title, tr.Blocks)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Published %q (%d blocks)\n%s\n", doc.Title, len(tr.Blocks), page.URL)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Document file (.json, .yaml, .yml or .md)")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent page id")
	cmd.Flags().StringVar(&module, "module", "", "Use this agent's parent page")
	cmd.Flags().StringVar(&title, "title", "", "Override the document title")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the wire blocks instead of publishing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// loadDocument decodes a document by file extension. Markdown takes its title from
// the first level-1 heading, falling back to the file name.
func loadDocument(path string, src []byte) (blocks.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return blocks.ParseMarkdownDocument(src, base), nil
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(src, &raw); err != nil {
			return blocks.Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return blocks.DecodeDocument(raw)
	case ".json", ".jsonc":
		var raw map[string]any
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(src)))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return blocks.Document{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return blocks.DecodeDocument(raw)
	default:
		return blocks.Document{}, fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
}
