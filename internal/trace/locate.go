package trace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Locate finds the trace file of sessionID under root. A zero day searches every day
// directory and returns the most recent match.
func Locate(root, sessionID string, day time.Time) (string, error) {
	if strings.ContainsAny(sessionID, `/\`) || sessionID == "" || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	if !day.IsZero() {
		path := FileSink{Root: root}.Path(Key(day, sessionID))
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrNotFound, sessionID)
			}
			return "", err
		}
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(root, "*", "tasks", sessionID+".log"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Follow copies the trace at path to w and keeps copying appended lines until the
// footer has been written or ctx is done.
func Follow(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	// some filesystems drop notifications; poll as a fallback
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	r := bufio.NewReader(f)
	var footer footerScanner
	var partial string
	for {
		for {
			line, err := r.ReadString('\n')
			partial += line
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if _, werr := io.WriteString(w, partial); werr != nil {
				return werr
			}
			if footer.feed(strings.TrimRight(partial, "\n")) {
				return nil
			}
			partial = ""
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return fmt.Errorf("trace %s was removed", path)
			}
		case werr, ok := <-watcher.Errors:
			if ok && werr != nil {
				return fmt.Errorf("watch: %w", werr)
			}
		case <-ticker.C:
		}
	}
}

// footerScanner recognises the closing banner that follows a "Finished:" line.
type footerScanner struct {
	prevBanner bool
	inFooter   bool
}

func (s *footerScanner) feed(line string) bool {
	isBanner := line == banner
	if s.inFooter && isBanner {
		return true
	}
	if s.prevBanner && strings.HasPrefix(line, "Finished: ") {
		s.inFooter = true
	}
	s.prevBanner = isBanner
	return false
}
