package trace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DayLayout is the date format of the per-day directories.
const DayLayout = "2006-01-02"

// Sink appends bytes to a named stream, creating it when absent.
type Sink interface {
	Append(key string, p []byte) error
}

// Key is the sink key of a session trace started on day.
func Key(day time.Time, sessionID string) string {
	return filepath.Join(day.Format(DayLayout), "tasks", sessionID+".log")
}

// FileSink writes traces under Root as <Root>/<YYYY-MM-DD>/tasks/<session-id>.log.
type FileSink struct {
	Root string
}

// Path returns the file that holds key.
func (s FileSink) Path(key string) string {
	return filepath.Join(s.Root, key)
}

func (s FileSink) Append(key string, p []byte) error {
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	if _, err := f.Write(p); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	return f.Close()
}

// MemorySink keeps traces in memory. The zero value is ready to use.
type MemorySink struct {
	mu   sync.Mutex
	data map[string]*bytes.Buffer
	// Fail, when set, is returned by every Append.
	Fail error
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{data: make(map[string]*bytes.Buffer)}
}

func (s *MemorySink) Append(key string, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if s.data == nil {
		s.data = make(map[string]*bytes.Buffer)
	}
	buf, ok := s.data[key]
	if !ok {
		buf = &bytes.Buffer{}
		s.data[key] = buf
	}
	buf.Write(p)
	return nil
}

// String returns everything appended to key.
func (s *MemorySink) String(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.data[key]; ok {
		return buf.String()
	}
	return ""
}

// Keys lists the keys written so far.
func (s *MemorySink) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// ErrNotFound is returned by Locate when no trace exists.
var ErrNotFound = errors.New("trace not found")
