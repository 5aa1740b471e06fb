// Package store provides the document store that vault files are mirrored
// into.
//
// Documents are addressed by a namespace (one per vault) plus a document
// identifier derived from the file's relative path. The store tracks a
// revision counter per document and rejects saves made against a stale
// revision, which gives the sync engine read-modify-write semantics even
// though the single-daemon design never exercises the conflict path.
package store

import (
	"context"
	"encoding/base64"
	"errors"
)

// TypePlain is the content-encoding tag applied to every document.
// No alternate encodings are modeled.
const TypePlain = "plain"

var (
	// ErrNotFound indicates the requested document does not exist in the
	// store namespace.
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates a save was attempted against a stale revision.
	ErrConflict = errors.New("document revision conflict")
)

// Document is the store-side representation of a tracked file.
type Document struct {
	// ID is the forward-slash relative path of the file within its vault.
	ID string

	// Rev is the store's revision counter. Zero means the document has
	// never been saved; Put assigns and advances it.
	Rev int64

	// Data is the file content, base64-encoded for safe storage as an
	// opaque blob.
	Data string

	// MTime is the engine-assigned sync time in milliseconds since epoch.
	// This is not the filesystem mtime.
	MTime int64

	// Size is the byte length of the decoded content.
	Size int64

	// Type is the content-encoding tag, always TypePlain.
	Type string
}

// SetContent encodes content into the document payload and records its
// decoded length.
func (d *Document) SetContent(content []byte) {
	d.Data = base64.StdEncoding.EncodeToString(content)
	d.Size = int64(len(content))
}

// Content decodes and returns the document payload.
func (d *Document) Content() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Data)
}

// Store is the document store contract consumed by the sync engine.
//
// Get returns ErrNotFound for an absent identifier. Put saves a document,
// creating it when Rev is zero and otherwise requiring Rev to match the
// stored revision (ErrConflict if it does not). Delete removes a document
// and returns ErrNotFound if it is already absent.
type Store interface {
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, doc *Document) error
	Count(ctx context.Context) (int, error)
	Close() error
}
