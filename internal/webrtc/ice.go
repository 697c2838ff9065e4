package webrtc

import (
	"fmt"
	"log"

	"selfie-capture-kiosk/models"

	"github.com/bytedance/sonic"
	"github.com/pion/webrtc/v4"
)

// ============================================================
// SEND ICE CANDIDATE
// ============================================================

func (w *Manager) sendICECandidate(clientID string, candidate *webrtc.ICECandidate) {
	candidateJSON, err := sonic.MarshalString(candidate.ToJSON())
	if err != nil {
		log.Printf("⚠️  Failed to marshal ICE candidate: %v", err)
		return
	}

	if err := w.signaler.Send(clientID, models.MsgCandidate, candidateJSON); err != nil {
		log.Printf("⚠️  Failed to send ICE candidate: %v", err)
	}
}

// ============================================================
// ICE CANDIDATE HANDLING
// ============================================================

func (w *Manager) handleICECandidate(clientID, data string) error {
	var candidate webrtc.ICECandidateInit
	if err := sonic.UnmarshalString(data, &candidate); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}

	w.mu.RLock()
	state, exists := w.connections[clientID]
	w.mu.RUnlock()

	if !exists {
		log.Printf("⚠️  Connection not found for client %s", clientID)
		return fmt.Errorf("connection not found")
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	// Queue if not ready
	if !state.iceReady {
		state.pendingICE = append(state.pendingICE, candidate)
		log.Printf("📦 Queued ICE (total: %d)", len(state.pendingICE))
		return nil
	}

	if err := state.pc.AddICECandidate(candidate); err != nil {
		log.Printf("⚠️  Failed to add ICE: %v", err)
		return err
	}

	sdpMid := "unknown"
	if candidate.SDPMid != nil {
		sdpMid = *candidate.SDPMid
	}
	log.Printf("✅ Added ICE (sdpMid: %s)", sdpMid)
	return nil
}

// flushPendingICE applies candidates that arrived before the answer was set.
func (w *Manager) flushPendingICE(state *connectionState) {
	state.mu.Lock()
	state.iceReady = true
	pendingCandidates := state.pendingICE
	state.pendingICE = nil
	state.mu.Unlock()

	if len(pendingCandidates) == 0 {
		return
	}
	log.Printf("📦 Processing %d pending ICE candidates...", len(pendingCandidates))
	for i, candidate := range pendingCandidates {
		if err := state.pc.AddICECandidate(candidate); err != nil {
			log.Printf("⚠️  Failed to add pending ICE %d: %v", i+1, err)
		} else {
			log.Printf("✅ Added pending ICE %d/%d", i+1, len(pendingCandidates))
		}
	}
}
