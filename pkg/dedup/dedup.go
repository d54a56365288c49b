// Package dedup remembers recently seen keys for a TTL.
package dedup

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Deduper struct {
	mu    sync.Mutex
	clock clockwork.Clock
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
}

// New returns a Deduper; clk nil means the real clock.
func New(ttl time.Duration, max int, clk clockwork.Clock) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Deduper{clock: clk, ttl: ttl, max: max, seen: make(map[string]time.Time)}
}

// ShouldProcess returns false if key was seen less than ttl ago.
// An empty key is always processed.
func (d *Deduper) ShouldProcess(key string) bool {
	if key == "" {
		return true
	}
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	d.seen[key] = now.Add(d.ttl)
	if len(d.seen) > d.max {
		d.evict(now)
	}
	return true
}

// evict rimuove prima le chiavi scadute, poi la più vecchia finché serve.
func (d *Deduper) evict(now time.Time) {
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	for len(d.seen) > d.max {
		var oldest string
		var oldestExp time.Time
		for k, exp := range d.seen {
			if oldest == "" || exp.Before(oldestExp) {
				oldest, oldestExp = k, exp
			}
		}
		delete(d.seen, oldest)
	}
}
