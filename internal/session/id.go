package session

import (
	"fmt"
	"sync"
	"time"
)

// IDGenerator issues session identifiers of the form <module>_<yymmdd>_<HHMMSS>_<seq>,
// where seq counts per module and restarts every calendar day. It is the only state
// shared between sessions.
type IDGenerator struct {
	mu       sync.Mutex
	now      func() time.Time
	day      string
	counters map[string]int
}

// NewIDGenerator constructs a generator. A nil now uses time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now, counters: make(map[string]int)}
}

// Next returns a new identifier for module.
func (g *IDGenerator) Next(module string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	day := t.Format("060102")
	if day != g.day {
		g.day = day
		clear(g.counters)
	}
	g.counters[module]++
	return fmt.Sprintf("%s_%s_%s_%04d", module, day, t.Format("150405"), g.counters[module])
}
