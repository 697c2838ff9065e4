package webrtc

import (
	"bytes"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// ============================================================
// DEFAULT CONFIGURATION
// ============================================================

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		PLIInterval:     250 * time.Millisecond,
		KeyframeTimeout: 10 * time.Second,
		SampleBufferMax: 128,
		DecodeTimeout:   2 * time.Second,
		MaxDecodeWidth:  1920,
		MaxDecodeHeight: 1080,
		BitrateKbps:     2500,
		MinBitrateKbps:  1500,
		MaxBitrateKbps:  3000,
	}
}

// ============================================================
// BUFFER POOL IMPLEMENTATION
// ============================================================

const (
	maxPooledBufferSize = 10 * 1024 * 1024 // 10MB
	initialBufferCap    = 1024 * 1024      // 1MB, one 640x480 BGR frame
)

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := new(bytes.Buffer)
				buf.Grow(initialBufferCap)
				return buf
			},
		},
	}
}

func (p *bufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	// Only pool buffers < 10MB to prevent memory bloat
	if buf.Cap() < maxPooledBufferSize {
		p.pool.Put(buf)
	}
}
