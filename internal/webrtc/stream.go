package webrtc

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/internal/vision"

	"gocv.io/x/gocv"
)

// peerStream is the camera.Stream of one browser peer connection. Decoded
// keyframes land in a latest-frame slot.
type peerStream struct {
	clientID string
	manager  *Manager

	mu    sync.Mutex
	slot  *vision.Slot
	ended bool

	ready     chan struct{}
	readyOnce sync.Once
	size      atomic.Value // image.Point

	paused   atomic.Bool
	stopOnce sync.Once
}

func newPeerStream(clientID string, m *Manager) *peerStream {
	s := &peerStream{
		clientID: clientID,
		manager:  m,
		slot:     vision.NewSlot(),
		ready:    make(chan struct{}),
	}
	// paused until the connection is up
	s.paused.Store(true)
	return s
}

// put stores a decoded frame unless the stream has ended.
func (s *peerStream) put(mat gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.slot.Put(mat)
	s.readyOnce.Do(func() {
		s.size.Store(image.Pt(mat.Cols(), mat.Rows()))
		close(s.ready)
	})
}

// end marks the stream finished and frees the stored frame.
func (s *peerStream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	s.slot.Drain()
}

func (s *peerStream) setPaused(p bool) {
	s.paused.Store(p)
}

func (s *peerStream) Ready(ctx context.Context) (image.Point, error) {
	select {
	case <-s.ready:
		return s.size.Load().(image.Point), nil
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	}
}

func (s *peerStream) Frame() (camera.Frame, bool) {
	if s.paused.Load() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, false
	}
	f, ok := s.slot.Peek()
	if !ok {
		return nil, false
	}
	return f, true
}

func (s *peerStream) Paused() bool {
	return s.paused.Load()
}

func (s *peerStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// Stop closes the peer connection and asks the browser to release its
// tracks. Safe to call more than once.
func (s *peerStream) Stop() {
	s.stopOnce.Do(func() {
		s.manager.closeStream(s)
		s.end()
	})
}
