package device

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/internal/vision"

	"gocv.io/x/gocv"
)

// ============================================================
// SOURCE
// ============================================================

// Source opens local webcams through OpenCV.
type Source struct{}

func NewSource() *Source {
	return &Source{}
}

func (s *Source) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(c.DeviceID)
	if err != nil {
		return nil, camera.AccessError("open", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, camera.AccessError("open", fmt.Errorf("could not start video source %d", c.DeviceID))
	}

	if c.IdealWidth > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.IdealWidth))
	}
	if c.IdealHeight > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.IdealHeight))
	}
	log.Printf("📹 Camera %d opened (ideal %dx%d, facing %s)", c.DeviceID, c.IdealWidth, c.IdealHeight, c.FacingMode)

	st := newStream(vc)
	go st.readLoop()
	return st, nil
}

// ============================================================
// STREAM
// ============================================================

// Stream reads frames on its own goroutine into a latest-frame slot.
type Stream struct {
	vc   *gocv.VideoCapture
	slot *vision.Slot

	ready     chan struct{}
	readyOnce sync.Once
	size      atomic.Value // image.Point

	paused  atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	done     chan struct{}
	quit     chan struct{}
}

func newStream(vc *gocv.VideoCapture) *Stream {
	return &Stream{
		vc:    vc,
		slot:  vision.NewSlot(),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
}

func (s *Stream) readLoop() {
	defer close(s.done)

	img := gocv.NewMat()
	defer img.Close()

	misses := 0
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if ok := s.vc.Read(&img); !ok || img.Empty() {
			misses++
			if misses%100 == 0 {
				log.Printf("⚠️  Camera returned %d empty frames", misses)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		if s.paused.Load() {
			continue
		}
		s.slot.Put(img)
		s.readyOnce.Do(func() {
			s.size.Store(image.Pt(img.Cols(), img.Rows()))
			close(s.ready)
		})
	}
}

// Ready waits for the first frame. There is no timeout.
func (s *Stream) Ready(ctx context.Context) (image.Point, error) {
	select {
	case <-s.ready:
		return s.size.Load().(image.Point), nil
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	}
}

func (s *Stream) Frame() (camera.Frame, bool) {
	if s.stopped.Load() || s.paused.Load() {
		return nil, false
	}
	f, ok := s.slot.Peek()
	if !ok {
		return nil, false
	}
	return f, true
}

func (s *Stream) Pause()  { s.paused.Store(true) }
func (s *Stream) Resume() { s.paused.Store(false) }

func (s *Stream) Paused() bool { return s.paused.Load() }
func (s *Stream) Active() bool { return !s.stopped.Load() }

func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.quit)
		<-s.done
		s.vc.Close()
		s.slot.Drain()
		log.Println("📹 Camera released")
	})
}
