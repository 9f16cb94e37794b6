package realtime

import (
	"sync"
	"time"

	"audit-portal/portal-backend/pkg/reconcile"
)

// DefaultEchoWindow is how long a delivered change is remembered for
// matching its second delivery.
const DefaultEchoWindow = 5 * time.Second

// Feed is the per-subscriber view of one filtered table. Every write is seen
// twice, once published by the service that made it and once from the
// database trigger; Apply lets only the first through.
//
// Updates are matched on the row content token, so a write that reaches
// this process only through the trigger is always delivered. When either
// copy lacks a token, an update from the other source inside the echo
// window counts as the echo.
//
// Changes are applied in arrival order. An insert that arrives after the
// delete of the same row is dropped; other reorderings are not detected.
// Entries older than the echo window are forgotten.
type Feed struct {
	mu        sync.Mutex
	filter    Filter
	rows      *reconcile.Set[string, Change]
	deleted   *reconcile.Set[string, time.Time]
	seen      *reconcile.Set[string, time.Time]
	window    time.Duration
	lastSweep time.Time
}

// NewFeed creates an empty feed for filter
func NewFeed(filter Filter) *Feed {
	return &Feed{
		filter:  filter,
		rows:    reconcile.New[string, Change](func(a, b Change) bool { return a.At.Before(b.At) }),
		deleted: reconcile.New[string, time.Time](nil),
		seen:    reconcile.New[string, time.Time](nil),
		window:  DefaultEchoWindow,
	}
}

// Apply records c and reports whether it should be delivered
func (f *Feed) Apply(c Change) bool {
	if !f.filter.Matches(c) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sweep(c.At)

	switch c.Type {
	case Insert:
		if _, gone := f.deleted.Get(c.ID); gone {
			return false
		}
		if token := c.Token(); token != "" {
			f.seen.Upsert(c.ID+"@"+token, c.At)
		}
		return f.rows.Upsert(c.ID, c)

	case Update:
		if token := c.Token(); token != "" {
			key := c.ID + "@" + token
			if _, dup := f.seen.Get(key); dup {
				f.rows.Upsert(c.ID, c)
				return false
			}
			prev, ok := f.rows.Get(c.ID)
			f.seen.Upsert(key, c.At)
			if ok && prev.Token() == "" && f.isWindowEcho(prev, c) {
				return false
			}
			f.rows.Upsert(c.ID, c)
			return true
		}
		if prev, ok := f.rows.Get(c.ID); ok && f.isWindowEcho(prev, c) {
			return false
		}
		f.rows.Upsert(c.ID, c)
		return true

	case Delete:
		if !f.deleted.Upsert(c.ID, c.At) {
			return false
		}
		f.rows.Remove(c.ID)
		return true
	}
	return false
}

// Items returns the rows inserted or updated through this feed within the
// echo window, oldest first
func (f *Feed) Items() []Change {
	return f.rows.Items()
}

func (f *Feed) isWindowEcho(prev, c Change) bool {
	return prev.Type == Update && prev.Source != c.Source && absDuration(c.At.Sub(prev.At)) < f.window
}

// sweep drops entries older than the echo window, at most once per window
func (f *Feed) sweep(now time.Time) {
	if now.Sub(f.lastSweep) < f.window {
		return
	}
	f.lastSweep = now
	cutoff := now.Add(-f.window)
	f.rows.RemoveIf(func(_ string, c Change) bool { return c.At.Before(cutoff) })
	f.deleted.RemoveIf(func(_ string, at time.Time) bool { return at.Before(cutoff) })
	f.seen.RemoveIf(func(_ string, at time.Time) bool { return at.Before(cutoff) })
}

// size is the number of remembered entries
func (f *Feed) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows.Len() + f.deleted.Len() + f.seen.Len()
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
