package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/internal/utils"
	"selfie-capture-kiosk/models"

	"github.com/bytedance/sonic"
	"github.com/pion/webrtc/v4"
)

// ============================================================
// MAIN SIGNAL HANDLER
// ============================================================

func (w *Manager) HandleSignal(clientID string, signal models.InboundMessage) error {
	log.Println("\n" + strings.Repeat("=", 60))
	log.Printf("📡 WebRTC Signal (Type: %s)", signal.Type)
	log.Printf("   ClientID: %s", clientID)
	log.Println(strings.Repeat("=", 60))

	switch signal.Type {
	case models.MsgOffer:
		return w.handleOffer(clientID, signal.Data)
	case models.MsgCandidate:
		return w.handleICECandidate(clientID, signal.Data)
	case models.MsgCameraError:
		return w.handleCameraError(clientID, signal.Data)
	case models.MsgQuit:
		log.Printf("👋 Camera closed by client")
		w.cleanupConnection(clientID)
		return nil
	default:
		log.Printf("⚠️  Unknown signal type: %s", signal.Type)
		return nil
	}
}

// ============================================================
// CAMERA ERROR
// ============================================================

// handleCameraError fails the pending Open with the browser's message,
// unchanged.
func (w *Manager) handleCameraError(clientID, message string) error {
	if message == "" {
		message = "camera unavailable"
	}
	log.Printf("❌ Client %s could not open its camera: %s", clientID, message)

	req := w.takePending()
	if req == nil {
		return nil
	}
	req.resolve(openResult{err: camera.AccessError("getUserMedia", errors.New(message))})
	return nil
}

// ============================================================
// OFFER HANDLING
// ============================================================

// parseOffer accepts a gzip+base64 payload, a JSON session description or
// a bare SDP string.
func parseOffer(data string) (string, error) {
	data, err := utils.MaybeDecompress(data)
	if err != nil {
		return "", fmt.Errorf("decompress failed: %w", err)
	}

	var offer map[string]interface{}
	if err := sonic.UnmarshalString(data, &offer); err != nil {
		offer = map[string]interface{}{
			"type": "offer",
			"sdp":  data,
		}
	}

	sdp, ok := offer["sdp"].(string)
	if !ok || strings.TrimSpace(sdp) == "" {
		return "", fmt.Errorf("invalid offer: missing sdp")
	}
	return sdp, nil
}

func (w *Manager) handleOffer(clientID, data string) error {
	log.Println("📝 Processing offer...")

	sdp, err := parseOffer(data)
	if err != nil {
		return err
	}

	req := w.takePending()
	if req == nil {
		log.Printf("⚠️  Unsolicited offer from %s, rejecting", clientID)
		_ = w.signaler.Send(clientID, models.MsgQuit, "")
		return fmt.Errorf("no camera request pending")
	}

	// one camera per client
	w.cleanupConnection(clientID)

	pc, err := w.createPeerConnection()
	if err != nil {
		req.resolve(openResult{err: camera.AccessError("peer_connection", err)})
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &connectionState{
		clientID:   clientID,
		pc:         pc,
		cancelFunc: cancel,
		pendingICE: make([]webrtc.ICECandidateInit, 0, 10),
		iceReady:   false,
	}
	state.stream = newPeerStream(clientID, w)

	w.mu.Lock()
	w.connections[clientID] = state
	w.mu.Unlock()

	log.Printf("✅ Connection created for client %s", clientID)

	w.setupPeerConnectionHandlers(ctx, state)

	fail := func(step string, err error) error {
		w.cleanupConnection(clientID)
		req.resolve(openResult{err: camera.AccessError(step, err)})
		return fmt.Errorf("failed to %s: %w", step, err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		return fail("set remote description", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail("create answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail("set local description", err)
	}

	patchedAnswer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP: utils.PatchSDPBitrate(answer.SDP, utils.BitrateHints{
			AS:  w.config.BitrateKbps,
			Min: w.config.MinBitrateKbps,
			Max: w.config.MaxBitrateKbps,
		}),
	}
	answerJSON, err := sonic.MarshalString(patchedAnswer)
	if err != nil {
		return fail("encode answer", err)
	}
	packed, err := utils.CompressGzip(answerJSON)
	if err != nil {
		return fail("compress answer", err)
	}

	if err := w.signaler.Send(clientID, models.MsgAnswer, packed); err != nil {
		return fail("send answer", err)
	}

	w.flushPendingICE(state)

	if !req.resolve(openResult{stream: state.stream}) {
		log.Printf("⚠️  Camera request was abandoned, closing %s", clientID)
		w.cleanupConnection(clientID)
		return nil
	}

	log.Println("✅ Answer sent!")
	log.Println(strings.Repeat("=", 60))
	return nil
}
