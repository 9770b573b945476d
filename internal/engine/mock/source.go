package mock

import (
	"context"
	"sync"

	"github.com/nick134920/ClaudeFlow/internal/engine"
)

// Source is a scripted engine.Source. It replays Events in order and then reports Err,
// if set. StreamFn, when set, replaces the script.
type Source struct {
	Events   []engine.Event
	Err      error
	StreamFn func(ctx context.Context, req engine.RunRequest) (<-chan engine.Event, <-chan error)

	mu       sync.Mutex
	requests []engine.RunRequest
}

func (s *Source) Stream(ctx context.Context, req engine.RunRequest) (<-chan engine.Event, <-chan error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.StreamFn != nil {
		return s.StreamFn(ctx, req)
	}

	ch := make(chan engine.Event)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer close(ch)
		for _, ev := range s.Events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if s.Err != nil {
			errCh <- s.Err
		}
	}()
	return ch, errCh
}

// Requests returns the requests seen so far.
func (s *Source) Requests() []engine.RunRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.RunRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Script returns an engine.RunFunc that emits events and then returns err. It backs
// stand-in engine servers in tests.
func Script(events []engine.Event, err error) engine.RunFunc {
	return func(ctx context.Context, _ engine.RunRequest, emit func(engine.Event) error) error {
		for _, ev := range events {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if e := emit(ev); e != nil {
				return e
			}
		}
		return err
	}
}
