// SPDX-License-Identifier: AGPL-3.0-or-later

// Package redirect holds the live reverse-proxy routing table the HTTP
// server core consults on every request: an immutable snapshot published
// behind an atomic pointer so readers never observe a torn state.
//
// Grounded on original_source/core/src/http/service.rs
// (RedirectEntriesChanger: ArcSwap + mutex-guarded clone-and-publish).
package redirect

import (
	"sync"
	"sync/atomic"
)

// Entry is one addon reverse-proxy mapping (spec.md §3).
type Entry struct {
	// ID is "<addon_id>/<path>"; at most one Entry exists per ID.
	ID string
	// Path is the first URL path segment this entry matches.
	Path string
	// Target is "host:port" of the plain-HTTP upstream.
	Target string
}

// Table is an immutable, atomically-published ordered sequence of Entries.
// Readers load the current snapshot with Snapshot(); writers go through
// Add/Remove, each of which clones-and-republishes under a dedicated
// mutex (spec.md §4.7, §5: "single-writer-wins ordering per mutation
// batch").
type Table struct {
	current atomic.Pointer[[]Entry]
	mu      sync.Mutex
}

// NewTable returns an empty Table.
func NewTable() *Table {
	t := &Table{}
	empty := []Entry{}
	t.current.Store(&empty)
	return t
}

// Snapshot returns the current ordered sequence of entries. The returned
// slice must not be mutated; callers hold it for the duration of one
// request.
func (t *Table) Snapshot() []Entry {
	return *t.current.Load()
}

// Add inserts entry, publishing a new snapshot. Duplicate IDs are a no-op
// (spec.md §4.7: "add is idempotent").
func (t *Table) Add(entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := *t.current.Load()
	for _, e := range current {
		if e.ID == entry.ID {
			return
		}
	}

	next := make([]Entry, len(current), len(current)+1)
	copy(next, current)
	next = append(next, entry)
	t.current.Store(&next)
}

// Remove deletes the entry with the given ID, publishing a new snapshot.
// Removing a nonexistent ID is a no-op.
func (t *Table) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := *t.current.Load()
	next := make([]Entry, 0, len(current))
	for _, e := range current {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if len(next) == len(current) {
		return
	}
	t.current.Store(&next)
}

// Lookup finds the entry matching the first path segment, for the HTTP
// core's reverse-proxy route (spec.md §4.8 step 6).
func Lookup(entries []Entry, firstSegment string) (Entry, bool) {
	for _, e := range entries {
		if e.Path == firstSegment {
			return e, true
		}
	}
	return Entry{}, false
}
