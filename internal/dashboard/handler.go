package dashboard

import (
	"encoding/json"
	"log"
	"time"
)

// Handler receives engine sync activity and formats it as dashboard
// messages. It satisfies the engine's Notifier interface and bridges
// between the sync engine and the WebSocket server.
//
// The engine calls Handler from its single event loop, so the counters
// need no locking.
type Handler struct {
	server *Server
	logger *log.Logger

	// Cumulative statistics since daemon start
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// DocumentSynced handles a document create/update
func (h *Handler) DocumentSynced(id string, size int64) {
	h.stats.Synced++

	h.send(MessageTypeDocSynced, DocSyncedData{
		DocID: id,
		Size:  size,
	})
	h.broadcastStats()
}

// DocumentDeleted handles a document removal
func (h *Handler) DocumentDeleted(id string) {
	h.stats.Deleted++

	h.send(MessageTypeDocDeleted, DocDeletedData{DocID: id})
	h.broadcastStats()
}

// ScanComplete handles completion of the priming scan
func (h *Handler) ScanComplete(synced, failed int, elapsed time.Duration) {
	h.stats.Failed += failed

	h.send(MessageTypeScanComplete, ScanCompleteData{
		Synced:   synced,
		Failed:   failed,
		Duration: elapsed,
	})
	h.broadcastStats()
}

// broadcastStats sends current cumulative statistics
func (h *Handler) broadcastStats() {
	h.send(MessageTypeStats, h.stats)
}

// send marshals data and broadcasts it under the given message type
func (h *Handler) send(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
