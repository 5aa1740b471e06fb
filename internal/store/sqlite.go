package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB implements Store on top of database/sql.
//
// Two DSN forms are supported:
//   - file:path/to/store.db  — embedded SQLite (ncruces/go-sqlite3)
//   - libsql://host?authToken=... — remote libSQL/Turso
//
// The connection is established once at Open and owned for the lifetime of
// the process. Every operation runs under the configured per-call timeout
// and retry policy.
type DB struct {
	conn      *sql.DB
	namespace string
	timeout   time.Duration
	retry     RetryPolicy
	logger    *log.Logger
}

// Options configures Open.
type Options struct {
	// DSN selects the backend; see DB.
	DSN string

	// Namespace scopes all documents. One namespace per vault.
	Namespace string

	// OpTimeout bounds each store round-trip (default 10s).
	OpTimeout time.Duration

	// Retry governs transient-failure retries (default DefaultRetryPolicy).
	Retry RetryPolicy

	// Logger for store activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// Open connects to the document store and ensures the schema exists.
//
// The caller MUST call Close() when done.
func Open(opts Options) (*DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("store DSN cannot be empty")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("store namespace cannot be empty")
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	driver := "sqlite3"
	if strings.HasPrefix(opts.DSN, "libsql://") {
		driver = "libsql"
	} else if path := strings.TrimPrefix(opts.DSN, "file:"); path != opts.DSN {
		// Embedded mode: make sure the parent directory exists before the
		// driver tries to create the database file.
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}

	conn, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to reach store: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:      conn,
		namespace: opts.Namespace,
		timeout:   opts.OpTimeout,
		retry:     opts.Retry,
		logger:    opts.Logger,
	}

	if driver == "sqlite3" {
		// WAL keeps readers (status command) from blocking the daemon.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	if err := db.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Namespace returns the namespace this connection is scoped to.
func (db *DB) Namespace() string {
	return db.namespace
}

// Close closes the store connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	db.conn = nil
	return nil
}

// initSchema creates the documents table if it doesn't exist. Idempotent.
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		namespace TEXT NOT NULL,
		doc_id    TEXT NOT NULL,
		rev       INTEGER NOT NULL DEFAULT 1,
		data      TEXT NOT NULL,
		mtime     INTEGER NOT NULL,
		size      INTEGER NOT NULL,
		doc_type  TEXT NOT NULL DEFAULT 'plain',
		PRIMARY KEY (namespace, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_mtime
	    ON documents(namespace, mtime);`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return nil
}

// Get implements Store.Get.
func (db *DB) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{ID: id}

	err := db.withRetry(ctx, "get", func(ctx context.Context) error {
		row := db.conn.QueryRowContext(ctx,
			`SELECT rev, data, mtime, size, doc_type
			 FROM documents WHERE namespace = ? AND doc_id = ?`,
			db.namespace, id)

		err := row.Scan(&doc.Rev, &doc.Data, &doc.MTime, &doc.Size, &doc.Type)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Put implements Store.Put.
//
// A document with Rev == 0 is created with rev 1; creation fails with
// ErrConflict if the identifier already exists. Otherwise the save requires
// Rev to match the stored revision, and advances it on success.
func (db *DB) Put(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	return db.withRetry(ctx, "put", func(ctx context.Context) error {
		if doc.Rev == 0 {
			res, err := db.conn.ExecContext(ctx,
				`INSERT INTO documents (namespace, doc_id, rev, data, mtime, size, doc_type)
				 VALUES (?, ?, 1, ?, ?, ?, ?)
				 ON CONFLICT(namespace, doc_id) DO NOTHING`,
				db.namespace, doc.ID, doc.Data, doc.MTime, doc.Size, doc.Type)
			if err != nil {
				return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
			}
			if n == 0 {
				return ErrConflict
			}
			doc.Rev = 1
			return nil
		}

		res, err := db.conn.ExecContext(ctx,
			`UPDATE documents
			 SET rev = rev + 1, data = ?, mtime = ?, size = ?, doc_type = ?
			 WHERE namespace = ? AND doc_id = ? AND rev = ?`,
			doc.Data, doc.MTime, doc.Size, doc.Type,
			db.namespace, doc.ID, doc.Rev)
		if err != nil {
			return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
		}
		if n == 0 {
			return ErrConflict
		}
		doc.Rev++
		return nil
	})
}

// Delete implements Store.Delete.
func (db *DB) Delete(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	return db.withRetry(ctx, "delete", func(ctx context.Context) error {
		res, err := db.conn.ExecContext(ctx,
			`DELETE FROM documents WHERE namespace = ? AND doc_id = ?`,
			db.namespace, doc.ID)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Count implements Store.Count.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := db.withRetry(ctx, "count", func(ctx context.Context) error {
		row := db.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE namespace = ?`, db.namespace)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("failed to count documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
