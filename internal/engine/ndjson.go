package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nick134920/ClaudeFlow/internal/version"
)

// RunPath is the NDJSON endpoint that starts a session.
const RunPath = "/v1/run"

// maxLineBytes bounds one NDJSON line; tool outputs can be large.
const maxLineBytes = 16 << 20

// NDJSONSource streams sessions as newline-delimited JSON envelopes over HTTP/1.1.
type NDJSONSource struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// NewNDJSONSource builds a source for the engine at baseURL.
func NewNDJSONSource(baseURL string, timeout time.Duration) *NDJSONSource {
	return &NDJSONSource{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// Stream posts the request and forwards one event per line.
func (s *NDJSONSource) Stream(ctx context.Context, req RunRequest) (<-chan Event, <-chan error) {
	ch := make(chan Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(ch)

		ctx, cancel := withOptionalTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.stream(ctx, req, ch); err != nil {
			errCh <- err
		}
	}()

	return ch, errCh
}

func (s *NDJSONSource) stream(ctx context.Context, req RunRequest, ch chan<- Event) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+RunPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	res, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("engine: status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		ev, err := env.Decode()
		if err != nil {
			return err
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
