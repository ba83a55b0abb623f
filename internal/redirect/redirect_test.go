// SPDX-License-Identifier: AGPL-3.0-or-later

package redirect

import (
	"fmt"
	"sync"
	"testing"
)

func TestAddAndSnapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Entry{ID: "addon1/hue", Path: "hue", Target: "127.0.0.1:9001"})

	snap := tbl.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(snap) = %d, want 1", len(snap))
	}
	if snap[0].Path != "hue" {
		t.Errorf("Path = %q, want %q", snap[0].Path, "hue")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Entry{ID: "addon1/hue", Path: "hue", Target: "a:1"})
	tbl.Add(Entry{ID: "addon1/hue", Path: "hue", Target: "b:2"})

	snap := tbl.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("len(snap) = %d, want 1", len(snap))
	}
	if snap[0].Target != "a:1" {
		t.Errorf("Target = %q, want original %q (idempotent add)", snap[0].Target, "a:1")
	}
}

func TestRemove(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Entry{ID: "a/x", Path: "x", Target: "a:1"})
	tbl.Add(Entry{ID: "b/y", Path: "y", Target: "b:2"})

	tbl.Remove("a/x")

	snap := tbl.Snapshot()
	if len(snap) != 1 || snap[0].ID != "b/y" {
		t.Fatalf("snapshot after remove = %+v", snap)
	}
}

func TestRemoveNonexistentIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Entry{ID: "a/x", Path: "x", Target: "a:1"})
	tbl.Remove("does/not-exist")

	if len(tbl.Snapshot()) != 1 {
		t.Errorf("expected snapshot unchanged")
	}
}

func TestLookup(t *testing.T) {
	entries := []Entry{{ID: "a/x", Path: "x", Target: "a:1"}}

	if _, ok := Lookup(entries, "x"); !ok {
		t.Error("expected match for 'x'")
	}
	if _, ok := Lookup(entries, "missing"); ok {
		t.Error("expected no match for 'missing'")
	}
}

// TestConcurrentMutationsNeverTearSnapshot exercises invariant 5 of
// spec.md §8: readers never observe a torn snapshot while concurrent Add
// calls publish new ones.
func TestConcurrentMutationsNeverTearSnapshot(t *testing.T) {
	tbl := NewTable()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl.Add(Entry{ID: fmt.Sprintf("addon/%d", i), Path: fmt.Sprintf("p%d", i), Target: "a:1"})
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				snap := tbl.Snapshot()
				seen := make(map[string]bool, len(snap))
				for _, e := range snap {
					if seen[e.ID] {
						t.Errorf("duplicate entry ID in snapshot: %s", e.ID)
					}
					seen[e.ID] = true
				}
			}
		}
	}()

	wg.Wait()
	close(done)

	if len(tbl.Snapshot()) != n {
		t.Errorf("final snapshot len = %d, want %d", len(tbl.Snapshot()), n)
	}
}
