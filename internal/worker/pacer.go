package worker

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so pacing can be tested deterministically
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock
func RealClock() Clock {
	return realClock{}
}

// Pacer enforces a minimum interval between requests sharing a pacing key.
// The key is the egress identity (proxy), not the rotating user agent.
type Pacer struct {
	interval time.Duration
	clock    Clock
	entries  map[string]*paceEntry
	mu       sync.RWMutex
}

type paceEntry struct {
	mu   sync.Mutex
	last time.Time // Instant the most recent caller was permitted to proceed
	used bool
}

// NewPacer creates a pacer. A nil clock means the wall clock; a
// non-positive interval disables pacing.
func NewPacer(interval time.Duration, clock Clock) *Pacer {
	if clock == nil {
		clock = RealClock()
	}
	return &Pacer{
		interval: interval,
		clock:    clock,
		entries:  make(map[string]*paceEntry),
	}
}

// Wait blocks until key may issue its next request and returns how long it
// waited. Each caller's turn is recorded under the key's lock, so concurrent
// callers for one key are spaced at least one interval apart.
func (p *Pacer) Wait(ctx context.Context, key string) (time.Duration, error) {
	if p.interval <= 0 {
		return 0, ctx.Err()
	}

	entry := p.getEntry(key)

	entry.mu.Lock()
	now := p.clock.Now()
	turn := now
	if entry.used {
		if next := entry.last.Add(p.interval); next.After(now) {
			turn = next
		}
	}
	entry.last = turn
	entry.used = true
	entry.mu.Unlock()

	delay := turn.Sub(now)
	if delay <= 0 {
		return 0, ctx.Err()
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.clock.After(delay):
		return delay, nil
	}
}

// getEntry returns the pacing entry for key
func (p *Pacer) getEntry(key string) *paceEntry {
	p.mu.RLock()
	entry, exists := p.entries[key]
	p.mu.RUnlock()

	if exists {
		return entry
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists := p.entries[key]; exists {
		return entry
	}

	entry = &paceEntry{}
	p.entries[key] = entry
	return entry
}
