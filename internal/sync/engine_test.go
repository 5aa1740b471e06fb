package sync

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/greypillar/vaultsync/internal/store"
	"github.com/greypillar/vaultsync/internal/watch"
)

// fakeStore is an in-memory Store with operation counters.
type fakeStore struct {
	mu      stdsync.Mutex
	docs    map[string]*store.Document
	gets    int
	puts    int
	deletes int
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*store.Document)}
}

func (f *fakeStore) Get(_ context.Context, id string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeStore) Put(_ context.Context, doc *store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	if doc.Rev == 0 {
		doc.Rev = 1
	} else {
		doc.Rev++
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeStore) Delete(_ context.Context, doc *store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if _, ok := f.docs[doc.ID]; !ok {
		return store.ErrNotFound
	}
	delete(f.docs, doc.ID)
	return nil
}

func (f *fakeStore) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs), nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) doc(id string) (*store.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

func (f *fakeStore) counters() (gets, puts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.puts, f.deletes
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestEngine(t *testing.T, root string, fs *fakeStore) *Engine {
	t.Helper()
	eng, err := New(Config{Root: root, Store: fs, Logger: testLogger()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return eng
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestUpsert_CreatesDocument(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	path := filepath.Join(root, "notes", "a.md")
	writeFile(t, path, []byte("hello"))

	if err := eng.Upsert(context.Background(), path); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	doc, ok := fs.doc("notes/a.md")
	if !ok {
		t.Fatal("Document notes/a.md not created")
	}
	content, err := doc.Content()
	if err != nil {
		t.Fatalf("Content() failed: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Content = %q, want %q", content, "hello")
	}
	if doc.Size != 5 {
		t.Errorf("Size = %d, want 5", doc.Size)
	}
	if doc.Type != store.TypePlain {
		t.Errorf("Type = %q, want %q", doc.Type, store.TypePlain)
	}
	if doc.MTime <= 0 {
		t.Errorf("MTime = %d, want positive epoch milliseconds", doc.MTime)
	}
	if doc.Rev != 1 {
		t.Errorf("Rev = %d, want 1", doc.Rev)
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	path := filepath.Join(root, "a.md")
	writeFile(t, path, []byte("stable content"))

	if err := eng.Upsert(context.Background(), path); err != nil {
		t.Fatalf("First Upsert() failed: %v", err)
	}
	first, _ := fs.doc("a.md")

	if err := eng.Upsert(context.Background(), path); err != nil {
		t.Fatalf("Second Upsert() failed: %v", err)
	}
	second, _ := fs.doc("a.md")

	// Payload and length identical both times; only the timestamp and
	// revision move.
	if first.Data != second.Data {
		t.Error("Payload changed across upserts of an unchanged file")
	}
	if first.Size != second.Size {
		t.Errorf("Size changed: %d -> %d", first.Size, second.Size)
	}
	if second.Rev != first.Rev+1 {
		t.Errorf("Rev = %d, want %d", second.Rev, first.Rev+1)
	}
}

func TestUpsert_BusyIdentifierIsNoop(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	path := filepath.Join(root, "a.md")
	writeFile(t, path, []byte("content"))

	// Simulate an in-flight upsert for the same identifier.
	eng.guard.MarkBusy("a.md")
	defer eng.guard.MarkFree("a.md")

	if err := eng.Upsert(context.Background(), path); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	gets, puts, _ := fs.counters()
	if gets != 0 || puts != 0 {
		t.Errorf("Busy identifier triggered store operations: gets=%d puts=%d", gets, puts)
	}
}

func TestUpsert_MissingFileIsNoop(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	// The file may vanish between enumeration and processing.
	if err := eng.Upsert(context.Background(), filepath.Join(root, "gone.md")); err != nil {
		t.Fatalf("Upsert() of missing file failed: %v", err)
	}

	gets, puts, _ := fs.counters()
	if gets != 0 || puts != 0 {
		t.Errorf("Missing file triggered store operations: gets=%d puts=%d", gets, puts)
	}
}

func TestUpsert_InvalidUTF8(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	bad := filepath.Join(root, "notes", "bad.md")
	writeFile(t, bad, []byte{0xff, 0xfe, 0xfd})

	if err := eng.Upsert(context.Background(), bad); err == nil {
		t.Error("Upsert() of non-text content should fail")
	}
	if _, ok := fs.doc("notes/bad.md"); ok {
		t.Error("Document created for non-text content")
	}

	// The failure is scoped to that one file; the engine keeps working.
	good := filepath.Join(root, "notes", "good.md")
	writeFile(t, good, []byte("fine"))
	if err := eng.Upsert(context.Background(), good); err != nil {
		t.Fatalf("Upsert() after per-file failure failed: %v", err)
	}
	if _, ok := fs.doc("notes/good.md"); !ok {
		t.Error("Document not created after earlier per-file failure")
	}
}

func TestUpsert_StoreFailureClearsBusyMark(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	fs.putErr = context.DeadlineExceeded
	eng := newTestEngine(t, root, fs)

	path := filepath.Join(root, "a.md")
	writeFile(t, path, []byte("content"))

	if err := eng.Upsert(context.Background(), path); err == nil {
		t.Error("Upsert() should surface the store failure")
	}
	if eng.guard.ShouldSkip("a.md") {
		t.Error("Busy mark not cleared after failed upsert")
	}

	// And the next attempt goes through once the store recovers.
	fs.putErr = nil
	if err := eng.Upsert(context.Background(), path); err != nil {
		t.Fatalf("Upsert() after store recovery failed: %v", err)
	}
}

func TestDeleteRemote_Idempotent(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	// Deleting a path whose document never existed is a success.
	if err := eng.DeleteRemote(context.Background(), filepath.Join(root, "never.md")); err != nil {
		t.Fatalf("DeleteRemote() failed: %v", err)
	}

	_, _, deletes := fs.counters()
	if deletes != 0 {
		t.Errorf("Delete issued for absent document: deletes=%d", deletes)
	}
}

func TestDeleteRemote_RemovesDocument(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	path := filepath.Join(root, "notes", "a.md")
	writeFile(t, path, []byte("hello"))
	if err := eng.Upsert(context.Background(), path); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	if err := eng.DeleteRemote(context.Background(), path); err != nil {
		t.Fatalf("DeleteRemote() failed: %v", err)
	}

	if _, ok := fs.doc("notes/a.md"); ok {
		t.Error("Document still present after delete propagation")
	}
}

func TestReconcile(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	writeFile(t, filepath.Join(root, "a.md"), []byte("a"))
	writeFile(t, filepath.Join(root, "notes", "b.md"), []byte("b"))
	writeFile(t, filepath.Join(root, "notes", "sub", "c.md"), []byte("c"))
	writeFile(t, filepath.Join(root, "notes", "skip.txt"), []byte("not tracked"))
	writeFile(t, filepath.Join(root, ReservedDir, "cache.md"), []byte("reserved"))
	writeFile(t, filepath.Join(root, "drafts", ReservedDir, "cache.md"), []byte("reserved"))

	synced, err := eng.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if synced != 3 {
		t.Errorf("Reconcile() synced %d files, want 3", synced)
	}

	for _, id := range []string{"a.md", "notes/b.md", "notes/sub/c.md"} {
		if _, ok := fs.doc(id); !ok {
			t.Errorf("Document %s not created by reconciliation", id)
		}
	}
	for _, id := range []string{
		"notes/skip.txt",
		ReservedDir + "/cache.md",
		"drafts/" + ReservedDir + "/cache.md",
	} {
		if _, ok := fs.doc(id); ok {
			t.Errorf("Document %s should not have been created", id)
		}
	}

	// Each tracked file visited exactly once.
	_, puts, _ := fs.counters()
	if puts != 3 {
		t.Errorf("Reconcile() issued %d saves, want 3", puts)
	}
}

func TestReconcile_PerFileFailureContinues(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()
	eng := newTestEngine(t, root, fs)

	writeFile(t, filepath.Join(root, "bad.md"), []byte{0xff, 0xfe})
	writeFile(t, filepath.Join(root, "good.md"), []byte("fine"))

	synced, err := eng.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if synced != 1 {
		t.Errorf("Reconcile() synced %d files, want 1", synced)
	}
	if _, ok := fs.doc("good.md"); !ok {
		t.Error("Good file not synced after neighboring failure")
	}
	if _, ok := fs.doc("bad.md"); ok {
		t.Error("Non-text file should not produce a document")
	}
}

// TestEngine_RunLive drives the full lifecycle against a real filesystem
// watcher: priming scan, live writes, delete propagation, and reserved
// directory exclusion.
func TestEngine_RunLive(t *testing.T) {
	root := t.TempDir()
	fs := newFakeStore()

	writeFile(t, filepath.Join(root, "notes", "seed.md"), []byte("seeded"))

	eng := newTestEngine(t, root, fs)

	w, err := watch.New(watch.Config{
		Root:        root,
		TrackedExt:  TrackedExt,
		ReservedDir: ReservedDir,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("watch.New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(ctx, w)
	}()

	// The priming scan picks up the pre-existing file.
	waitFor(t, "seed document", func() bool {
		_, ok := fs.doc("notes/seed.md")
		return ok
	})

	waitFor(t, "watcher start", w.IsRunning)

	// Live write.
	writeFile(t, filepath.Join(root, "notes", "a.md"), []byte("hello"))
	waitFor(t, "live document", func() bool {
		doc, ok := fs.doc("notes/a.md")
		if !ok {
			return false
		}
		content, err := doc.Content()
		return err == nil && string(content) == "hello" && doc.Size == 5
	})

	// Live delete.
	if err := os.Remove(filepath.Join(root, "notes", "a.md")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}
	waitFor(t, "delete propagation", func() bool {
		_, ok := fs.doc("notes/a.md")
		return !ok
	})

	// Non-text content is a per-file error; the engine stays responsive.
	writeFile(t, filepath.Join(root, "notes", "bad.md"), []byte{0xff, 0xfe})
	writeFile(t, filepath.Join(root, "notes", "after.md"), []byte("still alive"))
	waitFor(t, "post-failure document", func() bool {
		_, ok := fs.doc("notes/after.md")
		return ok
	})
	if _, ok := fs.doc("notes/bad.md"); ok {
		t.Error("Document created for non-text content")
	}

	// Reserved subdirectory never produces a document.
	writeFile(t, filepath.Join(root, "drafts", ReservedDir, "cache.md"), []byte("reserved"))
	time.Sleep(300 * time.Millisecond)
	if _, ok := fs.doc("drafts/" + ReservedDir + "/cache.md"); ok {
		t.Error("Document created for reserved subdirectory")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not exit after cancellation")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
}
