package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/blocks"
	"github.com/nick134920/ClaudeFlow/internal/engine"
	"github.com/nick134920/ClaudeFlow/internal/notion"
	"github.com/nick134920/ClaudeFlow/internal/observability"
	"github.com/nick134920/ClaudeFlow/internal/reconcile"
	"github.com/nick134920/ClaudeFlow/internal/session"
	"github.com/nick134920/ClaudeFlow/internal/store"
	"github.com/nick134920/ClaudeFlow/internal/trace"
)

// Publisher creates pages from translated blocks. *notion.Client implements it.
type Publisher interface {
	CreatePage(ctx context.Context, parentID, title string, bs []blocks.WireBlock) (notion.Page, error)
}

// Ledger records session lifecycles. *store.Store implements it.
type Ledger interface {
	Start(ctx context.Context, id, module, inputJSON string, startedAt time.Time) error
	Finish(ctx context.Context, id string, o store.Outcome, finishedAt time.Time) error
}

// Options wires a Runner. Source, Publisher and Sink are required.
type Options struct {
	Source    engine.Source
	Publisher Publisher
	Sink      trace.Sink
	Ledger    Ledger
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Runner executes sessions. One Runner is shared by all sessions; everything a
// session mutates is created per call.
type Runner struct {
	profiles   map[string]*Profile
	source     engine.Source
	publisher  Publisher
	sink       trace.Sink
	ledger     Ledger
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
	ids        *session.IDGenerator
	reconciler *reconcile.Reconciler
	translator *blocks.Translator
}

// NewRunner creates a Runner for the given module profiles.
func NewRunner(profiles map[string]*Profile, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		profiles:   profiles,
		source:     opts.Source,
		publisher:  opts.Publisher,
		sink:       opts.Sink,
		ledger:     opts.Ledger,
		metrics:    opts.Metrics,
		logger:     logger,
		now:        now,
		ids:        session.NewIDGenerator(now),
		reconciler: reconcile.New(logger),
		translator: blocks.NewTranslator(logger),
	}
}

// Modules lists configured modules in name order.
func (r *Runner) Modules() []string {
	return sortedModules(r.profiles)
}

// Profile returns the profile of module.
func (r *Runner) Profile(module string) (*Profile, bool) {
	p, ok := r.profiles[module]
	return p, ok
}

// NewSessionID issues the next session id for module.
func (r *Runner) NewSessionID(module string) string {
	return r.ids.Next(module)
}

// RunSession runs one session end to end: stream, reduce, reconcile, translate and
// publish. Every failure, including a panic, ends up as a failed Outcome recorded in
// the trace footer and the ledger; nothing is returned to the caller as an error.
func (r *Runner) RunSession(ctx context.Context, req Request) (out Outcome) {
	profile, ok := r.profiles[req.Module]
	if !ok {
		return Outcome{SessionID: req.SessionID, Status: session.Failed, Err: fmt.Errorf("%w %q", ErrUnknownModule, req.Module)}
	}

	id := req.SessionID
	if id == "" {
		id = r.ids.Next(req.Module)
	}
	out = Outcome{SessionID: id, Status: session.Running}

	logger := r.logger.With(zap.String("session_id", id), zap.String("module", req.Module))
	tw := trace.NewWriter(r.sink, id, logger, r.now)
	started := tw.Start()

	r.metrics.IncActiveSessions(req.Module)
	r.ledgerStart(ctx, logger, id, req, started)
	logger.Info("session started", zap.String("trace", tw.Key()))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("session panicked", zap.Any("panic", p), zap.Stack("stack"))
			out.Status = session.Failed
			out.Err = fmt.Errorf("session panicked: %v", p)
			tw.Error(out.Err)
		}
		r.finish(ctx, logger, tw, req.Module, &out)
	}()

	tw.Header(req.Input)

	prompt, err := profile.RenderPrompt(req.Input)
	if err != nil {
		tw.Error(err)
		return failed(out, err)
	}
	tw.Prompt(prompt)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, errs := r.source.Stream(streamCtx, profile.RunRequest(id, prompt))
	res, err := session.NewReducer(tw, r.metrics, logger, r.now).Consume(streamCtx, events, errs)
	// the reducer stops reading at the result; release the producer
	cancel()
	out.Turns = res.NumTurns
	out.CostUSD = res.CostUSD
	if err != nil {
		return failed(out, err)
	}

	doc, err := r.reconciler.Reconcile(reconcile.Input{Structured: res.Structured, Texts: res.Texts})
	if err != nil {
		tw.Error(err)
		return failed(out, err)
	}
	if doc == nil {
		tw.Note("No document produced; nothing to publish.")
		out.Status = session.Succeeded
		return out
	}

	tr, err := r.translator.Translate(doc.Blocks)
	if err != nil {
		tw.Error(err)
		return failed(out, err)
	}

	page, err := r.publisher.CreatePage(ctx, profile.ParentPageID, doc.Title, tr.Blocks)
	if err != nil {
		tw.Error(err)
		return failed(out, err)
	}

	tw.Summary(summarize(doc.Title, page, len(tr.Blocks), tr.Warnings))
	out.Status = session.Succeeded
	out.PageID = page.ID
	out.PageURL = page.URL
	return out
}

func (r *Runner) ledgerStart(ctx context.Context, logger *zap.Logger, id string, req Request, started time.Time) {
	if r.ledger == nil {
		return
	}
	input, err := json.Marshal(req.Input)
	if err != nil {
		input = []byte("{}")
	}
	if err := r.ledger.Start(ctx, id, req.Module, string(input), started); err != nil {
		logger.Warn("ledger start failed", zap.Error(err))
	}
}

// finish writes the footer, the ledger row and the session metrics. The ledger write
// survives cancellation of ctx so an interrupted session is still recorded as failed.
func (r *Runner) finish(ctx context.Context, logger *zap.Logger, tw *trace.Writer, module string, out *Outcome) {
	if out.Status == session.Running {
		out.Status = session.Failed
	}
	errText := ""
	if out.Err != nil {
		errText = out.Err.Error()
	}

	tw.Finish(trace.Footer{Turns: out.Turns, CostUSD: out.CostUSD, Status: string(out.Status), Err: errText})

	end := r.now()
	if r.ledger != nil {
		o := store.Outcome{
			Status:  string(out.Status),
			Turns:   out.Turns,
			CostUSD: out.CostUSD,
			PageID:  out.PageID,
			PageURL: out.PageURL,
			Error:   errText,
		}
		if err := r.ledger.Finish(context.WithoutCancel(ctx), out.SessionID, o, end); err != nil {
			logger.Warn("ledger finish failed", zap.Error(err))
		}
	}

	r.metrics.DecActiveSessions(module)
	r.metrics.RecordSession(module, string(out.Status), end.Sub(tw.Start()))

	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.Int("turns", out.Turns),
		zap.Float64("cost_usd", out.CostUSD),
		zap.Duration("duration", end.Sub(tw.Start())),
	}
	if out.Err != nil {
		logger.Error("session failed", append(fields, zap.Error(out.Err))...)
		return
	}
	logger.Info("session finished", append(fields, zap.String("page_id", out.PageID))...)
}

func failed(out Outcome, err error) Outcome {
	out.Status = session.Failed
	out.Err = err
	return out
}

func summarize(title string, page notion.Page, n int, warnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Published %q (%d blocks)\nPage: %s", title, n, page.ID)
	if page.URL != "" {
		fmt.Fprintf(&b, "\nURL: %s", page.URL)
	}
	if len(warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings (%d):", len(warnings))
		for _, w := range warnings {
			b.WriteString("\n- " + w)
		}
	}
	return b.String()
}
