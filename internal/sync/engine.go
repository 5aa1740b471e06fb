package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/greypillar/vaultsync/internal/store"
	"github.com/greypillar/vaultsync/internal/watch"
)

// EventSource is a live, non-terminating feed of classified file events
// for the vault root. The engine starts it only after the priming scan has
// finished.
type EventSource interface {
	Start() error
	Events() <-chan watch.Event
	Errors() <-chan error
}

// Notifier receives sync activity. Implementations must not block; the
// engine calls these from its single event loop.
type Notifier interface {
	DocumentSynced(id string, size int64)
	DocumentDeleted(id string)
	ScanComplete(synced, failed int, elapsed time.Duration)
}

// nopNotifier is used when no observer is wired in.
type nopNotifier struct{}

func (nopNotifier) DocumentSynced(string, int64) {}

func (nopNotifier) DocumentDeleted(string) {}

func (nopNotifier) ScanComplete(int, int, time.Duration) {}

// Config holds engine configuration.
type Config struct {
	// Root is the vault root directory. Must exist.
	Root string

	// Store is the document store namespace for this vault.
	Store store.Store

	// Logger for engine activity. Defaults to a stderr logger.
	Logger *log.Logger

	// Notifier observes sync activity. Optional.
	Notifier Notifier
}

// Engine mirrors tracked files under a vault root into a document store.
// All methods are driven from a single goroutine; see the package
// documentation for the concurrency model.
type Engine struct {
	root     string
	store    store.Store
	guard    *Guard
	logger   *log.Logger
	notifier Notifier
}

// New creates an Engine for the given vault.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("vault root cannot be empty")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("vault root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", root)
	}

	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}

	return &Engine{
		root:     root,
		store:    cfg.Store,
		guard:    NewGuard(),
		logger:   cfg.Logger,
		notifier: cfg.Notifier,
	}, nil
}

// Root returns the absolute vault root.
func (e *Engine) Root() string {
	return e.root
}

// Run performs the full engine lifecycle: priming scan, then the live
// watch loop. It blocks until ctx is cancelled or the event source fails,
// and returns nil on clean shutdown.
func (e *Engine) Run(ctx context.Context, src EventSource) error {
	if _, err := e.Reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconciliation failed: %w", err)
	}

	if err := src.Start(); err != nil {
		return fmt.Errorf("failed to start event source: %w", err)
	}

	e.logger.Printf("Watching vault: %s", e.root)

	events := src.Events()
	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed unexpectedly")
			}
			e.handle(ctx, ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			e.logger.Printf("Watch error: %v", err)
		}
	}
}

// handle dispatches one classified event.
func (e *Engine) handle(ctx context.Context, ev watch.Event) {
	switch ev.Op {
	case watch.OpWrite:
		e.logger.Printf("File changed: %s", filepath.Base(ev.Path))
		if err := e.Upsert(ctx, ev.Path); err != nil {
			e.logger.Printf("Failed to sync %s: %v", ev.Path, err)
		}
	case watch.OpRemove:
		if err := e.DeleteRemote(ctx, ev.Path); err != nil {
			e.logger.Printf("Failed to delete %s: %v", ev.Path, err)
		}
	}
}

// Reconcile performs the priming scan: every tracked file under the vault
// root is upserted unconditionally, even if the stored document is already
// identical. This runs once per process lifetime; simplicity wins over
// diffing here. Per-file failures are logged and the walk continues.
//
// Returns the number of files successfully synced.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	e.logger.Printf("Starting initial sync for %s", e.root)
	start := time.Now()

	var synced, failed int
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Entry vanished between enumeration and visit; expected.
			return nil
		}
		if d.IsDir() {
			if d.Name() == ReservedDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !tracked(d.Name()) {
			return nil
		}
		if err := e.Upsert(ctx, path); err != nil {
			e.logger.Printf("Failed to sync %s: %v", path, err)
			failed++
			return nil
		}
		synced++
		return nil
	})
	if err != nil {
		return synced, fmt.Errorf("vault scan failed: %w", err)
	}

	elapsed := time.Since(start)
	e.logger.Printf("Initial sync complete: %d files (%d failed) in %v",
		synced, failed, elapsed.Round(time.Millisecond))
	e.notifier.ScanComplete(synced, failed, elapsed)
	return synced, nil
}

// Upsert creates or updates the store document for the file at path.
//
// A path that no longer names a regular file is a silent no-op: the file
// may have been deleted between notification and processing. An identifier
// currently marked busy is likewise a no-op; that is the anti-loop
// short-circuit. All other failures abort the operation for this file only.
func (e *Engine) Upsert(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}

	id := DocumentID(e.root, path)
	if e.guard.ShouldSkip(id) {
		return nil
	}

	e.guard.MarkBusy(id)
	defer e.guard.MarkFree(id)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", id, err)
	}
	if !utf8.Valid(content) {
		return fmt.Errorf("content of %s is not valid UTF-8", id)
	}

	doc, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		doc = &store.Document{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to fetch document %s: %w", id, err)
	}

	doc.SetContent(content)
	doc.MTime = time.Now().UnixMilli()
	doc.Type = store.TypePlain

	if err := e.store.Put(ctx, doc); err != nil {
		return fmt.Errorf("failed to save document %s: %w", id, err)
	}

	e.logger.Printf("Synced: %s", id)
	e.notifier.DocumentSynced(id, doc.Size)
	return nil
}

// DeleteRemote removes the store document for the file that was at path.
// A document that does not exist remotely is a success (idempotent delete).
//
// No guard interaction is needed: the engine never deletes as a side
// effect of an upload, so there is no create-delete feedback path.
func (e *Engine) DeleteRemote(ctx context.Context, path string) error {
	id := DocumentID(e.root, path)

	doc, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch document %s: %w", id, err)
	}

	if err := e.store.Delete(ctx, doc); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}

	e.logger.Printf("Deleted from store: %s", id)
	e.notifier.DocumentDeleted(id)
	return nil
}
