// Package watch reports changes made to a storage root by any process.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	dberrors "github.com/maruel/docstore/internal/errors"
)

// Kind is the kind of file that changed.
type Kind string

const (
	// KindDocument is a table document.
	KindDocument Kind = "document"
	// KindRules is a table rules file.
	KindRules Kind = "rules"
	// KindCounter is the shared counter file.
	KindCounter Kind = "counter"
)

// Op is what happened to the file.
type Op string

const (
	// OpWritten means the file was created or replaced.
	OpWritten Op = "written"
	// OpRemoved means the file was deleted.
	OpRemoved Op = "removed"
)

// Event is a change of one file of the storage root.
type Event struct {
	// Table is empty for KindCounter.
	Table string `json:"table,omitempty"`
	Kind  Kind   `json:"kind"`
	Op    Op     `json:"op"`
}

// Options configures a Watcher.
type Options struct {
	Logger *slog.Logger
	// Throttle, when positive, delivers at most one OpWritten event per file
	// and interval. Removals are always delivered.
	Throttle time.Duration
}

// Watcher watches a storage root directory.
type Watcher struct {
	root string
	opts Options
	log  *slog.Logger
	w    *fsnotify.Watcher

	mu       sync.Mutex
	throttle map[Event]*rate.Sometimes
}

// New starts watching root. Close must be called to release the watch.
func New(root string, opts *Options) (*Watcher, error) {
	fi, err := os.Stat(root)
	if err != nil || !fi.IsDir() {
		return nil, dberrors.DirectoryNotFound(root)
	}
	w := &Watcher{root: root, throttle: make(map[Event]*rate.Sometimes)}
	if opts != nil {
		w.opts = *opts
	}
	w.log = w.opts.Logger
	if w.log == nil {
		w.log = slog.Default()
	}
	if w.w, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.w.Add(root); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to watch %s: %w", root, err), w.w.Close())
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// Run calls fn for every change until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			e, ok := w.convert(ev)
			if !ok {
				continue
			}
			if e.Op == OpWritten && w.opts.Throttle > 0 {
				w.limiter(e).Do(func() { fn(e) })
				continue
			}
			fn(e)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.WarnContext(ctx, "Error watching storage root", "root", w.root, "err", err)
		}
	}
}

func (w *Watcher) convert(ev fsnotify.Event) (Event, bool) {
	e, ok := Classify(filepath.Base(ev.Name))
	if !ok {
		return e, false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		e.Op = OpRemoved
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		e.Op = OpWritten
	default:
		return e, false
	}
	return e, true
}

func (w *Watcher) limiter(e Event) *rate.Sometimes {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.throttle[e]
	if s == nil {
		s = &rate.Sometimes{Interval: w.opts.Throttle}
		w.throttle[e] = s
	}
	return s
}

// Classify maps a file name of the storage root to the change it represents.
// Op is left empty. Hidden, temporary and unrelated files are ignored.
func Classify(name string) (Event, bool) {
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\") {
		return Event{}, false
	}
	base, ok := strings.CutSuffix(name, ".json")
	if !ok || base == "" {
		return Event{}, false
	}
	if base == "increment" {
		return Event{Kind: KindCounter}, true
	}
	if table, ok := strings.CutSuffix(base, "-rules"); ok {
		if table == "" {
			return Event{}, false
		}
		return Event{Table: table, Kind: KindRules}, true
	}
	return Event{Table: base, Kind: KindDocument}, true
}
