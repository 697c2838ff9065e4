package webrtc

import (
	"context"
	"sync"
	"time"

	"selfie-capture-kiosk/models"

	"github.com/pion/webrtc/v4"
)

// ============================================================
// SIGNALER
// ============================================================

// Signaler delivers signalling messages to browser clients.
type Signaler interface {
	Send(clientID, msgType string, data interface{}) error
	// Broadcast returns how many clients received the message.
	Broadcast(msgType string, data interface{}) int
}

// ============================================================
// CORE MANAGER
// ============================================================

// Manager is a camera.Source backed by browser cameras over WebRTC. It owns
// at most one pending camera request and one peer connection per client.
type Manager struct {
	connections map[string]*connectionState
	mu          sync.RWMutex
	signaler    Signaler
	config      Config
	decoder     *vp8Decoder
	pending     *openRequest
	shutdown    chan struct{}
	closeOnce   sync.Once
}

// ============================================================
// CONNECTION STATE
// ============================================================

type connectionState struct {
	clientID    string
	pc          *webrtc.PeerConnection
	stream      *peerStream
	cancelFunc  context.CancelFunc
	cleanupOnce sync.Once
	mu          sync.Mutex
	pendingICE  []webrtc.ICECandidateInit
	iceReady    bool
}

// ============================================================
// OPEN REQUEST
// ============================================================

type openResult struct {
	stream *peerStream
	err    error
}

type openRequest struct {
	request models.CameraRequest
	result  chan openResult
	mu      sync.Mutex
	closed  bool
}

// resolve hands res to the waiting Open. It reports false when Open has
// already given up.
func (r *openRequest) resolve(res openResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	r.result <- res
	return true
}

// abandon closes the request and returns a result that raced in, if any.
func (r *openRequest) abandon() (openResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		return openResult{}, false
	}
	select {
	case res := <-r.result:
		return res, true
	default:
		return openResult{}, false
	}
}

// ============================================================
// RECEIVE STATE
// ============================================================

type receiveState struct {
	startTime             time.Time
	sampleCount           int
	decodedCount          int
	firstKeyframeReceived bool
}

// ============================================================
// CONFIG
// ============================================================

type Config struct {
	ICEServers []webrtc.ICEServer

	// PLIInterval paces keyframe requests; only keyframes are decoded.
	PLIInterval     time.Duration
	KeyframeTimeout time.Duration
	SampleBufferMax uint16
	DecodeTimeout   time.Duration
	MaxDecodeWidth  int
	MaxDecodeHeight int

	// Answer bitrate hints, kbps.
	BitrateKbps    int
	MinBitrateKbps int
	MaxBitrateKbps int
}

// ============================================================
// BUFFER POOL
// ============================================================

type bufferPool struct {
	pool sync.Pool
}
