//go:build cgo

package store

// The libSQL/Turso driver is CGo-only; registering it is limited to cgo
// builds so the package still compiles with CGO_ENABLED=0.
import _ "github.com/tursodatabase/go-libsql"
