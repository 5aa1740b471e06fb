package sync

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// TrackedExt is the file extension eligible for synchronization.
	TrackedExt = ".md"

	// ReservedDir is the tooling-internal directory excluded from all
	// sync operations anywhere under the vault root.
	ReservedDir = ".obsidian"
)

// DocumentID derives the store identifier for a file: its path relative to
// the vault root, normalized to forward slashes so identifiers are stable
// across platforms. The mapping is bijective over non-reserved relative
// paths; no escaping beyond separator normalization is performed.
//
// path must lie beneath root. Callers pre-filter by root, so a violation is
// a bug and panics.
func DocumentID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		panic(fmt.Sprintf("sync: path %q is not under vault root %q", path, root))
	}
	return filepath.ToSlash(rel)
}

// tracked reports whether name passes the tracked-extension filter.
func tracked(name string) bool {
	return strings.HasSuffix(name, TrackedExt)
}
