package sync

// Guard is the loop-prevention marker set. An identifier is marked busy
// immediately before the engine issues a store mutation for it and freed
// unconditionally afterwards, so a watcher notification caused by the
// engine's own write short-circuits instead of re-entering the upload path.
//
// Guard is not safe for concurrent use. The engine processes one event at
// a time, so no locking is needed; a concurrent redesign must add its own
// synchronization first. The guard holds no state across restarts and
// offers no protection against a second engine instance sharing the same
// store namespace.
type Guard struct {
	busy map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{busy: make(map[string]struct{})}
}

// ShouldSkip reports whether a mutation for id is already in flight.
func (g *Guard) ShouldSkip(id string) bool {
	_, ok := g.busy[id]
	return ok
}

// MarkBusy records that the engine is about to mutate the document for id.
func (g *Guard) MarkBusy(id string) {
	g.busy[id] = struct{}{}
}

// MarkFree clears the busy mark for id. Safe to call for an unmarked id.
func (g *Guard) MarkFree(id string) {
	delete(g.busy, id)
}
