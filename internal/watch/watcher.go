// Package watch provides recursive file system watching for a vault root.
//
// It uses fsnotify for cross-platform event monitoring, registers every
// subdirectory of the root (and any directory that appears later), filters
// events down to tracked note files, and classifies them into the two
// operations the sync engine cares about: a write-class event (content
// changed or a file moved into the tree) and a delete-class event (a file
// removed or moved out of the tree).
package watch

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Op represents the classified file system operation.
type Op int

const (
	// OpWrite indicates file content became current on disk: it was
	// written, created, or moved into the tree.
	OpWrite Op = iota
	// OpRemove indicates the file was deleted or moved out of the tree.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is a classified notification for a tracked file.
type Event struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Op is the classified operation.
	Op Op
}

// Config holds watcher configuration.
type Config struct {
	// Root is the vault root directory to watch recursively.
	Root string

	// TrackedExt is the file extension filter (e.g. ".md").
	TrackedExt string

	// ReservedDir is a directory name excluded from watching anywhere in
	// the tree (e.g. ".obsidian").
	ReservedDir string

	// Logger for watcher activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// Watcher watches a vault root for changes to tracked files.
// Events are delivered in the order fsnotify reports them; the watcher
// never coalesces or reorders.
type Watcher struct {
	root     string
	ext      string
	reserved string
	logger   *log.Logger

	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a new Watcher. The watcher must be started with Start()
// before it will emit events.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("watch root cannot be empty")
	}
	if cfg.TrackedExt == "" {
		return nil, fmt.Errorf("tracked extension cannot be empty")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:     root,
		ext:      cfg.TrackedExt,
		reserved: cfg.ReservedDir,
		logger:   cfg.Logger,
		watcher:  fsw,
		events:   make(chan Event, 256),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the vault tree with fsnotify and begins emitting events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.addTree(w.root, false); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	w.logger.Printf("Watching filesystem: %s", w.root)

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and cleans up resources. It blocks until the event
// processing goroutine has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	// Closing the underlying watcher unblocks the event loop.
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return nil
}

// Events returns the channel that emits classified events.
// The channel is closed when the watcher is stopped.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel that emits watcher errors.
// The channel is closed when the watcher is stopped.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// addTree registers dir and every non-reserved subdirectory with fsnotify.
// When emitFiles is set, a write event is emitted for each tracked file
// found — used when a populated directory is moved into the tree.
func (w *Watcher) addTree(dir string, emitFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entry vanished mid-walk; skip it.
			return nil
		}
		if d.IsDir() {
			if d.Name() == w.reserved {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
			return nil
		}
		if emitFiles && strings.HasSuffix(d.Name(), w.ext) {
			w.emit(Event{Path: path, Op: OpWrite})
		}
		return nil
	})
}

// processEvents is the main loop translating fsnotify events into
// classified Events.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleRaw(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// handleRaw classifies a single fsnotify event.
func (w *Watcher) handleRaw(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if name == "" || name == "." {
		return
	}
	if w.isReserved(event.Name) {
		return
	}

	// A directory appearing under the root (created or moved in) must be
	// registered, and any tracked files it already contains surfaced as
	// write events.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name, true); err != nil {
				select {
				case w.errors <- err:
				case <-w.done:
				}
			}
			return
		}
	}

	if !strings.HasSuffix(name, w.ext) {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename away from this path is a delete here; the destination
		// shows up as an independent create.
		op = OpRemove
	default:
		// Chmod and friends.
		return
	}

	w.emit(Event{Path: event.Name, Op: op})
}

// emit delivers an event unless the watcher is shutting down.
func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// isReserved reports whether path has the reserved directory as any
// component of its path relative to the root.
func (w *Watcher) isReserved(path string) bool {
	if w.reserved == "" {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if seg == w.reserved {
			return true
		}
	}
	return false
}
