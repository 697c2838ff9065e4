package webrtc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// ============================================================
// PEER CONNECTION CREATION
// ============================================================

// vp8Codec is the only codec offered back to the browser; keyframes are
// decoded one at a time, so there is nothing to gain from H.264 or VP9.
var vp8Codec = webrtc.RTPCodecParameters{
	RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
		RTCPFeedback: []webrtc.RTCPFeedback{
			{Type: webrtc.TypeRTCPFBGoogREMB},
			{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
			{Type: webrtc.TypeRTCPFBNACK},
			{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
		},
	},
	PayloadType: 96,
}

func (w *Manager) createPeerConnection() (*webrtc.PeerConnection, error) {
	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterCodec(vp8Codec, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register vp8: %w", err)
	}

	pc, err := webrtc.NewAPI(webrtc.WithMediaEngine(engine)).NewPeerConnection(webrtc.Configuration{
		ICEServers: w.config.ICEServers,
	})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return pc, nil
}

// ============================================================
// PEER CONNECTION HANDLERS
// ============================================================

func (w *Manager) setupPeerConnectionHandlers(ctx context.Context, state *connectionState) {
	pc := state.pc
	clientID := state.clientID

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			log.Printf("✅ ICE gathering complete for %s", clientID)
			return
		}
		w.sendICECandidate(clientID, candidate)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Printf("🔗 Peer %s: %s", clientID, s)
		switch s {
		case webrtc.PeerConnectionStateConnected:
			state.stream.setPaused(false)
		case webrtc.PeerConnectionStateDisconnected:
			// may recover; frames stop until then
			state.stream.setPaused(true)
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
			go w.cleanupConnection(clientID)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		mime := track.Codec().MimeType
		log.Printf("🎬 Track from %s: %s (%s)", clientID, track.Kind(), mime)

		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		if !strings.EqualFold(mime, webrtc.MimeTypeVP8) {
			log.Printf("   ⚠️  Ignoring %s track, only VP8 is decoded", mime)
			return
		}

		kr := &keyframeRequester{pc: pc, ssrc: uint32(track.SSRC()), interval: w.config.PLIInterval}
		go kr.burst(ctx, 3, 100*time.Millisecond)
		go kr.run(ctx)
		go w.receiveVideo(ctx, track, state.stream)
	})
}

// ============================================================
// KEYFRAME REQUESTS
// ============================================================

const maxPLIFailures = 3

// keyframeRequester sends Picture Loss Indications so the browser keeps
// producing keyframes; inter frames are never decoded.
type keyframeRequester struct {
	pc       *webrtc.PeerConnection
	ssrc     uint32
	interval time.Duration
}

func (k *keyframeRequester) request() error {
	return k.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: k.ssrc}})
}

// burst asks for a few keyframes right away so the first frame does not
// wait a full interval.
func (k *keyframeRequester) burst(ctx context.Context, n int, gap time.Duration) {
	for i := 0; i < n; i++ {
		if err := k.request(); err == nil {
			log.Println("   ⚡ Keyframe requested")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(gap):
		}
	}
}

// run requests keyframes periodically until ctx ends, the connection
// closes or writes fail maxPLIFailures times in a row.
func (k *keyframeRequester) run(ctx context.Context) {
	interval := k.interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch k.pc.ConnectionState() {
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
			return
		}

		if err := k.request(); err != nil {
			failures++
			if failures >= maxPLIFailures {
				log.Printf("   ⚠️  Keyframe requests stopped after %d errors: %v", failures, err)
				return
			}
			continue
		}
		failures = 0
	}
}
