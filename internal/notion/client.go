package notion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/blocks"
	"github.com/nick134920/ClaudeFlow/internal/observability"
)

const (
	// MaxBlocksPerRequest is the store's cap on children in one call.
	MaxBlocksPerRequest = 100
	// DefaultMaxAttempts is how many times a remote call is tried.
	DefaultMaxAttempts = 3
)

// DefaultBackoff holds the waits after attempt 1, 2 and 3. The last entry is only
// reached when MaxAttempts is raised above the default.
var DefaultBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Options tunes batching and retry.
type Options struct {
	MaxAttempts int
	Backoff     []time.Duration
	BatchSize   int
}

// Client publishes wire blocks with batching and bounded retry. It holds no per-session
// state and is safe for concurrent use.
type Client struct {
	transport   Transport
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	backoff     []time.Duration
	batchSize   int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewClient wraps transport. Zero option values take the defaults.
func NewClient(transport Transport, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBlocksPerRequest {
		opts.BatchSize = MaxBlocksPerRequest
	}
	return &Client{
		transport:   transport,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		batchSize:   opts.BatchSize,
		sleep:       sleepContext,
	}
}

// CreatePage creates a page under parentID. The first batch travels with the create
// call and the remainder is appended in order, one call per batch.
func (c *Client) CreatePage(ctx context.Context, parentID, title string, bs []blocks.WireBlock) (Page, error) {
	first, rest := bs, []blocks.WireBlock(nil)
	if len(bs) > c.batchSize {
		first, rest = bs[:c.batchSize], bs[c.batchSize:]
	}

	c.logger.Info("creating page",
		zap.String("parent_id", parentID),
		zap.String("title", title),
		zap.Int("blocks", len(bs)),
	)

	var page Page
	err := c.retry(ctx, "create_page", func(ctx context.Context) error {
		var err error
		page, err = c.transport.CreatePage(ctx, parentID, title, first)
		return err
	})
	if err != nil {
		return Page{}, err
	}
	c.metrics.AddPublishedBlocks(len(first))
	c.logger.Info("page created", zap.String("page_id", page.ID), zap.String("url", page.URL))

	if len(rest) > 0 {
		if err := c.AppendBlocks(ctx, page.ID, rest); err != nil {
			return page, err
		}
	}
	return page, nil
}

// AppendBlocks appends bs to pageID in order, one call per batch.
func (c *Client) AppendBlocks(ctx context.Context, pageID string, bs []blocks.WireBlock) error {
	for start := 0; start < len(bs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(bs) {
			end = len(bs)
		}
		batch := bs[start:end]

		c.logger.Debug("appending blocks", zap.String("page_id", pageID), zap.Int("blocks", len(batch)))
		err := c.retry(ctx, "append_blocks", func(ctx context.Context) error {
			return c.transport.AppendChildren(ctx, pageID, batch)
		})
		if err != nil {
			return err
		}
		c.metrics.AddPublishedBlocks(len(batch))
	}
	return nil
}

func (c *Client) retry(ctx context.Context, op string, call func(context.Context) error) error {
	var last error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = call(ctx)
		c.metrics.RecordPublishAttempt(op, last)
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fields := []zap.Field{zap.String("op", op), zap.Int("attempt", attempt), zap.Int("max_attempts", c.maxAttempts)}
		var apiErr *APIError
		if errors.As(last, &apiErr) {
			fields = append(fields, zap.Int("status", apiErr.Status), zap.String("code", apiErr.Code), zap.String("message", apiErr.Message))
		} else {
			fields = append(fields, zap.Error(last))
		}
		c.logger.Warn("page store call failed", fields...)

		if attempt == c.maxAttempts {
			break
		}
		delay := c.delay(attempt)
		c.logger.Info("retrying page store call", zap.String("op", op), zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return &PublishError{Op: op, Attempts: c.maxAttempts, Err: last}
}

func (c *Client) delay(attempt int) time.Duration {
	if attempt-1 < len(c.backoff) {
		return c.backoff[attempt-1]
	}
	return c.backoff[len(c.backoff)-1]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
