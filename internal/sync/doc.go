// Package sync implements the vault synchronization engine.
//
// The engine mirrors a directory tree of plain-text notes into a document
// store. Sync is one-directional: the file on disk is authoritative, local
// deletes are propagated to the store, and remote changes are never pulled
// back to disk. That asymmetry is a deliberate limitation, not a bug.
//
// # Lifecycle
//
// The engine has two phases with no return path between them:
//
//  1. Priming: a full walk of the vault root upserts every tracked file
//     into the store, unconditionally. The walk is neither incremental nor
//     resumable; an interrupted run simply starts over next time.
//  2. Watching: classified events from an EventSource are consumed one at
//     a time, strictly in delivery order, with no coalescing or debouncing.
//
// # Loop prevention
//
// Depending on the watch mechanism, a store write issued by the engine can
// surface as a fresh notification for the file just synced. A process-local
// guard marks each document identifier busy for the duration of its store
// mutation so such notifications short-circuit instead of re-entering the
// upload path. The guard is best-effort and same-process only: it cannot
// protect two engine instances sharing a store namespace, and that setup
// is unsupported.
//
// # Error policy
//
// Failures below startup never propagate past the file that caused them: a
// vanished file, undecodable content, or a failed store call is logged and
// the engine moves on. There is no automatic re-reconciliation; a failed
// operation leaves store and disk diverged until the next event for that
// identifier.
package sync
