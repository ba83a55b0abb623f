// SPDX-License-Identifier: AGPL-3.0-or-later

// Package configwatch is the file-system-driven configuration reload
// plumbing of spec.md §4.9 (C13): per-schema subscribers are notified of
// three event kinds, and the watcher only updates its recorded checksum
// once a subscriber acknowledges.
//
// Grounded on original_source/libohxaddon/src/config/watcher.rs
// (ConfigurationWatcher: inotify CLOSE_WRITE|MOVED_TO|DELETE, SHA-256
// checksum gate, per-schema ack channel). fsnotify is the cross-platform
// analog of the original's inotify crate.
package configwatch

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ohx-project/ohx-core/internal/logging"
)

// Kind identifies which of the three reload events occurred.
type Kind int

const (
	// OriginalFileChanged fires when <schema>.json is modified in place.
	OriginalFileChanged Kind = iota
	// NewFile fires when _<schema>.json appears, staged for adoption.
	NewFile
	// FileDeleted fires when <schema>.json is removed.
	FileDeleted
)

// Event is delivered to a schema's subscriber. Ack must be sent exactly
// once: true if the subscriber applied the change, false to decline it.
// Closing Ack without sending also declines the change and unregisters
// the schema.
type Event struct {
	Schema string
	Kind   Kind
	Path   string
	Ack    chan<- bool
}

// Watcher tracks a set of schema names within one directory and notifies
// each schema's subscriber channel on change.
type Watcher struct {
	dir string
	fsw *fsnotify.Watcher

	mu          sync.Mutex
	subscribers map[string]chan<- Event
	checksums   map[string][32]byte
}

// New creates a Watcher rooted at dir. Callers must call Run in a
// goroutine and Close when done.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: new fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("configwatch: watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:         dir,
		fsw:         fsw,
		subscribers: make(map[string]chan<- Event),
		checksums:   make(map[string][32]byte),
	}, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Register subscribes ch to changes for schema and records the checksum
// of <schema>.json if that file already exists. It does not read, create
// or write the document itself.
func (w *Watcher) Register(schema string, ch chan<- Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers[schema] = ch

	if sum, err := checksum(w.schemaPath(schema)); err == nil {
		w.checksums[schema] = sum
	}
}

// Unregister removes schema's subscriber. A subscriber whose channel is
// closed is also auto-unregistered the next time an event would be
// delivered to it.
func (w *Watcher) Unregister(schema string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.subscribers, schema)
	delete(w.checksums, schema)
}

func (w *Watcher) schemaPath(schema string) string {
	return filepath.Join(w.dir, schema+".json")
}

func (w *Watcher) stagedPath(schema string) string {
	return filepath.Join(w.dir, "_"+schema+".json")
}

// Run processes fsnotify events until the watcher is closed. Intended to
// run in its own goroutine.
func (w *Watcher) Run() {
	log := logging.WithComponent("configwatch")
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("configwatch: fsnotify error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)

	switch {
	case ev.Has(fsnotify.Write):
		if schema, ok := schemaFromOriginal(base); ok {
			w.deliver(schema, OriginalFileChanged, ev.Name)
		}
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename):
		if schema, ok := schemaFromStaged(base); ok {
			w.deliver(schema, NewFile, ev.Name)
		}
	case ev.Has(fsnotify.Remove):
		if schema, ok := schemaFromOriginal(base); ok {
			w.deliver(schema, FileDeleted, ev.Name)
		}
	}
}

func schemaFromOriginal(base string) (string, bool) {
	const suffix = ".json"
	if len(base) <= len(suffix) || base[0] == '_' {
		return "", false
	}
	if base[len(base)-len(suffix):] != suffix {
		return "", false
	}
	return base[:len(base)-len(suffix)], true
}

func schemaFromStaged(base string) (string, bool) {
	const suffix = ".json"
	if len(base) <= len(suffix)+1 || base[0] != '_' {
		return "", false
	}
	if base[len(base)-len(suffix):] != suffix {
		return "", false
	}
	return base[1 : len(base)-len(suffix)], true
}

// deliver sends an Event to schema's subscriber and, on positive ack,
// commits the side effects (checksum update, staged-file adoption).
func (w *Watcher) deliver(schema string, kind Kind, path string) {
	w.mu.Lock()
	ch, ok := w.subscribers[schema]
	w.mu.Unlock()
	if !ok {
		return
	}

	ack := make(chan bool, 1)
	sent := func() (sent bool) {
		// A send on a closed subscriber channel panics; treat it as the
		// subscriber having gone away.
		defer func() {
			if recover() != nil {
				sent = false
			}
		}()
		ch <- Event{Schema: schema, Kind: kind, Path: path, Ack: ack}
		return true
	}()
	if !sent {
		w.Unregister(schema)
		return
	}

	ok, chanOpen := <-ack
	if !chanOpen || !ok {
		if !chanOpen {
			w.Unregister(schema)
		}
		return
	}

	log := logging.WithComponent("configwatch")
	switch kind {
	case OriginalFileChanged, FileDeleted:
		w.mu.Lock()
		if kind == FileDeleted {
			delete(w.checksums, schema)
		} else if sum, err := checksum(w.schemaPath(schema)); err == nil {
			w.checksums[schema] = sum
		}
		w.mu.Unlock()
	case NewFile:
		staged := w.stagedPath(schema)
		original := w.schemaPath(schema)
		if err := os.Rename(staged, original); err != nil {
			log.Error().Err(err).Str("schema", schema).Msg("configwatch: adopt staged file failed")
			return
		}
		w.mu.Lock()
		if sum, err := checksum(original); err == nil {
			w.checksums[schema] = sum
		}
		w.mu.Unlock()
	}
}

func checksum(path string) ([32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
