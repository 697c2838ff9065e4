package webrtc

import (
	"log"

	"selfie-capture-kiosk/models"
)

// ============================================================
// CONNECTION CLEANUP
// ============================================================

// cleanupConnection tears down a client's peer connection once and tells the
// browser to stop its tracks.
func (w *Manager) cleanupConnection(clientID string) {
	w.mu.Lock()
	state, exists := w.connections[clientID]
	if !exists {
		w.mu.Unlock()
		return
	}
	delete(w.connections, clientID)
	w.mu.Unlock()

	state.cleanupOnce.Do(func() {
		log.Printf("🧹 Cleaning up %s", clientID)

		// 1. Cancel context (stops goroutines)
		if state.cancelFunc != nil {
			state.cancelFunc()
		}

		// 2. Close peer connection; blocked RTP reads return
		if state.pc != nil {
			if err := state.pc.Close(); err != nil {
				log.Printf("   ⚠️  PC close: %v", err)
			}
		}

		// 3. No more frames
		if state.stream != nil {
			state.stream.end()
		}

		// 4. Send quit signal (best effort)
		if err := w.signaler.Send(clientID, models.MsgQuit, ""); err != nil {
			log.Printf("   ⚠️  Quit signal: %v", err)
		}

		log.Printf("   ✅ Cleanup complete")
	})
}

// closeStream tears down the connection s belongs to, unless the client has
// already replaced it with a newer one.
func (w *Manager) closeStream(s *peerStream) {
	w.mu.RLock()
	state, exists := w.connections[s.clientID]
	w.mu.RUnlock()
	if exists && state.stream == s {
		w.cleanupConnection(s.clientID)
	}
}

// ClientGone drops whatever the client had open, e.g. when its websocket
// closes.
func (w *Manager) ClientGone(clientID string) {
	w.cleanupConnection(clientID)
}
