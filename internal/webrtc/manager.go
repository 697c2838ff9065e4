package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/models"
)

// ============================================================
// MANAGER INITIALIZATION
// ============================================================

func NewManager(signaler Signaler, config Config) (*Manager, error) {
	if signaler == nil {
		return nil, fmt.Errorf("signaler cannot be nil")
	}

	return &Manager{
		connections: make(map[string]*connectionState),
		signaler:    signaler,
		config:      config,
		decoder:     newVP8Decoder(config, newBufferPool()),
		shutdown:    make(chan struct{}),
	}, nil
}

// ============================================================
// CAMERA SOURCE
// ============================================================

// Open asks connected browsers to share their camera and waits for the
// first offer carrying video. A getUserMedia rejection reported by the
// browser fails with a camera access error carrying its message.
func (w *Manager) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	req := &openRequest{
		request: models.CameraRequest{
			FacingMode:  c.FacingMode,
			IdealWidth:  c.IdealWidth,
			IdealHeight: c.IdealHeight,
		},
		result: make(chan openResult, 1),
	}

	w.mu.Lock()
	if w.pending != nil {
		w.mu.Unlock()
		return nil, camera.AccessError("open", errors.New("a camera request is already pending"))
	}
	w.pending = req
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.pending == req {
			w.pending = nil
		}
		w.mu.Unlock()
	}()

	n := w.signaler.Broadcast(models.MsgCameraRequest, req.request)
	if n == 0 {
		log.Println("📞 No browser connected yet, camera request will be resent on connect")
	} else {
		log.Printf("📞 Camera requested from %d client(s)", n)
	}

	select {
	case res := <-req.result:
		if res.err != nil {
			return nil, res.err
		}
		return res.stream, nil
	case <-ctx.Done():
		w.discard(req)
		return nil, ctx.Err()
	case <-w.shutdown:
		w.discard(req)
		return nil, camera.AccessError("open", errors.New("camera source closed"))
	}
}

func (w *Manager) discard(req *openRequest) {
	if res, ok := req.abandon(); ok && res.stream != nil {
		res.stream.Stop()
	}
}

// PendingRequest returns the outstanding camera request, if any, so a newly
// connected client can be asked too.
func (w *Manager) PendingRequest() (models.CameraRequest, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.pending == nil {
		return models.CameraRequest{}, false
	}
	return w.pending.request, true
}

// takePending detaches the outstanding request so only one offer wins it.
func (w *Manager) takePending() *openRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	req := w.pending
	w.pending = nil
	return req
}

// ============================================================
// SHUTDOWN
// ============================================================

func (w *Manager) CloseAll() {
	w.closeOnce.Do(func() {
		close(w.shutdown)
		log.Println("🛑 WebRTC shutdown starting...")

		w.mu.Lock()
		clientIDs := make([]string, 0, len(w.connections))
		for id := range w.connections {
			clientIDs = append(clientIDs, id)
		}
		w.mu.Unlock()

		done := make(chan struct{})
		go func() {
			var wg sync.WaitGroup
			for _, id := range clientIDs {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					w.cleanupConnection(id)
				}(id)
			}
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("   ✅ All closed")
		case <-time.After(5 * time.Second):
			log.Println("   ⚠️  Timeout")
		}

		log.Println("🛑 WebRTC shutdown complete")
	})
}
