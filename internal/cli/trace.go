package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nick134920/ClaudeFlow/internal/trace"
)

// NewTraceCmd prints or follows a session trace.
func NewTraceCmd(opts *Options) *cobra.Command {
	var date string
	var follow bool
	var color string

	cmd := &cobra.Command{
		Use:   "trace <session-id>",
		Short: "Print a session trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			var day time.Time
			if date != "" {
				day, err = time.ParseInLocation(trace.DayLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
			}

			path, err := trace.Locate(cfg.Trace.Dir, args[0], day)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorOn, err := colorEnabled(color, out)
			if err != nil {
				return err
			}
			w := &traceColorizer{out: out}
			if colorOn {
				w.palette = newTracePalette(out)
				fmt.Fprintf(out, "%s\n", w.palette.rule.Render(ruleWithTitle(path, terminalWidth(out))))
			}
			defer w.Flush()

			if follow {
				return trace.Follow(cmd.Context(), path, w)
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(w, f)
			return err
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day of the trace (YYYY-MM-DD); default searches all days")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing until the session finishes")
	cmd.Flags().StringVar(&color, "color", "auto", "Color output: auto, always or never")
	return cmd
}

// tracePalette styles trace lines with the basic ANSI profile. It exists only when
// --color and the TTY check enable colour.
type tracePalette struct {
	rule     lipgloss.Style
	failure  lipgloss.Style
	turn     lipgloss.Style
	toolCall lipgloss.Style
	success  lipgloss.Style
	thinking lipgloss.Style
	summary  lipgloss.Style
	warning  lipgloss.Style
}

func newTracePalette(out io.Writer) *tracePalette {
	r := lipgloss.NewRenderer(out, termenv.WithProfile(termenv.ANSI))
	r.SetColorProfile(termenv.ANSI)
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	fg := func(c string) lipgloss.Style { return base.Foreground(lipgloss.Color(c)) }
	return &tracePalette{
		rule:     base.Faint(true),
		failure:  fg("1"),
		turn:     base.Bold(true),
		toolCall: fg("6"),
		success:  fg("2"),
		thinking: base.Faint(true),
		summary:  fg("4"),
		warning:  fg("3"),
	}
}

func colorEnabled(mode string, out io.Writer) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "", "auto":
		if termenv.EnvNoColor() {
			return false, nil
		}
		file, ok := out.(*os.File)
		if !ok {
			return false, nil
		}
		fd := file.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd), nil
	default:
		return false, fmt.Errorf("invalid --color %q", mode)
	}
}

func terminalWidth(out io.Writer) int {
	if file, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if v, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && v > 0 {
		return v
	}
	return 80
}

func ruleWithTitle(title string, width int) string {
	head := "── " + title + " "
	n := width - len([]rune(head))
	if n < 3 {
		n = 3
	}
	return head + strings.Repeat("─", n)
}

// traceColorizer highlights entry markers line by line. Partial lines are held until
// their newline arrives.
type traceColorizer struct {
	out     io.Writer
	palette *tracePalette
	buf     []byte
}

func (c *traceColorizer) Write(p []byte) (int, error) {
	if c.palette == nil {
		return c.out.Write(p)
	}
	c.buf = append(c.buf, p...)
	for {
		i := bytes.IndexByte(c.buf, '\n')
		if i < 0 {
			break
		}
		line := string(c.buf[:i])
		c.buf = c.buf[i+1:]
		if _, err := io.WriteString(c.out, c.palette.colorLine(line)+"\n"); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes a trailing partial line.
func (c *traceColorizer) Flush() {
	if len(c.buf) > 0 {
		_, _ = c.out.Write(c.buf)
		c.buf = nil
	}
}

func (p *tracePalette) colorLine(line string) string {
	switch {
	case strings.Contains(line, "[ERROR]"), strings.HasPrefix(line, "Error: "), strings.HasPrefix(line, "caused by "):
		return p.failure.Render(line)
	case strings.Contains(line, "=== TURN"):
		return p.turn.Render(line)
	case strings.Contains(line, "[TOOL_CALL]"):
		return p.toolCall.Render(line)
	case strings.Contains(line, "[TOOL_RESULT]"):
		if strings.Contains(line, "✗") {
			return p.failure.Render(line)
		}
		return p.success.Render(line)
	case strings.Contains(line, "[THINKING]"):
		return p.thinking.Render(line)
	case strings.Contains(line, "[SUMMARY]"), strings.Contains(line, "[USER]"):
		return p.summary.Render(line)
	case strings.HasPrefix(line, "Status: failed"):
		return p.failure.Render(line)
	case strings.HasPrefix(line, "Status: "):
		return p.success.Render(line)
	case strings.Contains(line, "warning"):
		return p.warning.Render(line)
	}
	return line
}
