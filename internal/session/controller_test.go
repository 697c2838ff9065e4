package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/internal/eventlog"
	"selfie-capture-kiosk/internal/gate"
	"selfie-capture-kiosk/internal/ui"
	"selfie-capture-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// FAKES
// ============================================================

type fakeFrame struct {
	size image.Point
}

func (f fakeFrame) Size() image.Point { return f.size }

func (f fakeFrame) ToImage() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, f.size.X, f.size.Y)), nil
}

func (f fakeFrame) Close() {}

type fakeStream struct {
	size    image.Point
	paused  atomic.Bool
	stopped atomic.Int32
}

func (s *fakeStream) Ready(ctx context.Context) (image.Point, error) {
	return s.size, nil
}

func (s *fakeStream) Frame() (camera.Frame, bool) {
	if s.paused.Load() || s.stopped.Load() > 0 {
		return nil, false
	}
	return fakeFrame{size: s.size}, true
}

func (s *fakeStream) Paused() bool { return s.paused.Load() }
func (s *fakeStream) Active() bool { return s.stopped.Load() == 0 }
func (s *fakeStream) Stop()        { s.stopped.Add(1) }

// blockingReadyStream reports its size only once release is closed,
// ignoring cancellation like a camera that answers late.
type blockingReadyStream struct {
	*fakeStream
	release chan struct{}
}

func (s *blockingReadyStream) Ready(ctx context.Context) (image.Point, error) {
	<-s.release
	return s.size, nil
}

type streamSource struct {
	stream camera.Stream
}

func (s *streamSource) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	return s.stream, nil
}

type fakeSource struct {
	stream *fakeStream
	err    error
	got    camera.Constraints
}

func (s *fakeSource) Open(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	s.got = c
	if s.err != nil {
		return nil, s.err
	}
	return s.stream, nil
}

type fakeDetector struct {
	loadErr error
	load    func(ctx context.Context) error
	calls   atomic.Int32
	detect  func(n int32) (models.DetectionResult, error)
}

func (d *fakeDetector) LoadModels(ctx context.Context) error {
	if d.load != nil {
		return d.load(ctx)
	}
	return d.loadErr
}

func (d *fakeDetector) Detect(ctx context.Context, frame camera.Frame) (models.DetectionResult, error) {
	n := d.calls.Add(1)
	return d.detect(n)
}

type fakeSurface struct {
	mu     sync.Mutex
	size   image.Point
	clears int
	draws  int
}

func (s *fakeSurface) Resize(size image.Point) {
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
}

func (s *fakeSurface) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

func (s *fakeSurface) Draw(models.DetectionResult) {
	s.mu.Lock()
	s.draws++
	s.mu.Unlock()
}

type captureSink struct {
	records chan *models.CaptureRecord
}

func (s *captureSink) PublishCapture(r *models.CaptureRecord) {
	s.records <- r
}

// ============================================================
// HELPERS
// ============================================================

func validResult() models.DetectionResult {
	return models.DetectionResult{
		FrameWidth:  640,
		FrameHeight: 480,
		Faces: []models.FaceObservation{{
			Box:         models.BoundingBox{X: 220, Y: 125, Width: 200, Height: 230},
			Landmarks:   []models.Point{{X: 280, Y: 200}, {X: 360, Y: 200}},
			Expressions: models.Expressions{models.ExpressionHappy: 0.9, models.ExpressionNeutral: 0.1},
			Score:       0.95,
		}},
	}
}

type harness struct {
	ctrl     *Controller
	source   *fakeSource
	stream   *fakeStream
	detector *fakeDetector
	surface  *fakeSurface
	board    *ui.Board
	log      *eventlog.Log
	sink     *captureSink
}

func newHarness(t *testing.T, detect func(n int32) (models.DetectionResult, error)) *harness {
	t.Helper()
	cfg := models.DefaultConfig()
	cfg.Session.TickInterval = time.Millisecond

	stream := &fakeStream{size: image.Pt(640, 480)}
	h := &harness{
		stream:   stream,
		source:   &fakeSource{stream: stream},
		detector: &fakeDetector{detect: detect},
		surface:  &fakeSurface{},
		board:    ui.NewBoard(nil),
		log:      eventlog.New(nil),
		sink:     &captureSink{records: make(chan *models.CaptureRecord, 1)},
	}
	h.ctrl = NewController(cfg, Deps{
		Source:   h.source,
		Detector: h.detector,
		Surface:  h.surface,
		Board:    h.board,
		Log:      h.log,
		Sink:     h.sink,
	})
	t.Cleanup(h.ctrl.Stop)
	return h
}

func alwaysValid(int32) (models.DetectionResult, error) {
	return validResult(), nil
}

func lastEntry(t *testing.T, l *eventlog.Log) models.LogEntry {
	t.Helper()
	entries := l.Entries()
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

// ============================================================
// START / STOP
// ============================================================

func TestStartRunsDetectionAndOpensGate(t *testing.T) {
	h := newHarness(t, alwaysValid)

	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.Equal(t, camera.Constraints{FacingMode: "user", IdealWidth: 640, IdealHeight: 480}, h.source.got)
	assert.Equal(t, image.Pt(640, 480), h.surface.size)

	state := h.ctrl.State()
	assert.True(t, state.Active)
	assert.True(t, state.CameraActive)
	assert.True(t, state.ModelsLoaded)

	require.Eventually(t, func() bool {
		return h.ctrl.Gate().State().IsValid
	}, time.Second, 5*time.Millisecond)

	st := h.board.State()
	assert.True(t, st.CaptureEnabled)
	assert.False(t, st.Loading)
	assert.False(t, st.CameraPlaceholder)
	assert.Equal(t, "valid face", st.Status)
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, alwaysValid)
	require.NoError(t, h.ctrl.Start(context.Background()))

	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, models.ErrSessionActive)
}

func TestCameraAccessErrorIsShownVerbatim(t *testing.T) {
	h := newHarness(t, alwaysValid)
	h.source.err = camera.AccessError("open", errors.New("Permission denied"))

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCameraAccess)

	st := h.board.State()
	assert.Contains(t, st.Status, "Permission denied")
	assert.Equal(t, models.IndicatorError, st.Indicator)
	assert.False(t, st.Loading)
	assert.True(t, st.CameraPlaceholder)

	entry := lastEntry(t, h.log)
	assert.Equal(t, models.SeverityError, entry.Severity)
	assert.Equal(t, "Permission denied", entry.Detail)

	assert.False(t, h.ctrl.State().Active)
	assert.Zero(t, h.detector.calls.Load())
}

func TestModelLoadFailureNeverStartsPolling(t *testing.T) {
	h := newHarness(t, alwaysValid)
	h.detector.loadErr = errors.New("404 model not found")

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindModelLoad))

	st := h.board.State()
	assert.True(t, st.Loading)
	assert.Contains(t, st.LoadingText, "404 model not found")
	assert.Equal(t, models.SeverityError, lastEntry(t, h.log).Severity)

	assert.Never(t, func() bool {
		return h.detector.calls.Load() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	// camera stays up until the session is torn down
	assert.Zero(t, h.stream.stopped.Load())
	h.ctrl.Stop()
	assert.Equal(t, int32(1), h.stream.stopped.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, alwaysValid)

	h.ctrl.Stop()
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Stop()
	h.ctrl.Stop()

	assert.Equal(t, int32(1), h.stream.stopped.Load())
	assert.False(t, h.ctrl.State().Active)
	assert.False(t, h.board.State().CaptureEnabled)

	calls := h.detector.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.detector.calls.Load(), "loop must end with the session")
}

func TestCancelledContextEndsLoop(t *testing.T) {
	h := newHarness(t, alwaysValid)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.ctrl.Start(ctx))
	require.Eventually(t, func() bool { return h.detector.calls.Load() > 0 }, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		return h.stream.stopped.Load() == 1
	}, time.Second, time.Millisecond)
	assert.False(t, h.ctrl.State().Active)
	assert.False(t, h.ctrl.State().CameraActive)

	calls := h.detector.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, h.detector.calls.Load())

	h.ctrl.Stop()
	assert.Equal(t, int32(1), h.stream.stopped.Load())
}

func TestRestartAfterCancelledContext(t *testing.T) {
	h := newHarness(t, alwaysValid)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.ctrl.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !h.ctrl.State().Active }, time.Second, time.Millisecond)

	next := &fakeStream{size: image.Pt(640, 480)}
	h.source.stream = next
	require.NoError(t, h.ctrl.Start(context.Background()))

	// the first session's teardown must not reach the second one
	time.Sleep(20 * time.Millisecond)
	assert.True(t, h.ctrl.State().Active)
	assert.Zero(t, next.stopped.Load())
	assert.Equal(t, int32(1), h.stream.stopped.Load())
}

func TestCancelDuringModelLoadReleasesCamera(t *testing.T) {
	h := newHarness(t, alwaysValid)
	ctx, cancel := context.WithCancel(context.Background())
	loading := make(chan struct{})
	h.detector.load = func(lctx context.Context) error {
		close(loading)
		<-lctx.Done()
		return lctx.Err()
	}

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Start(ctx) }()
	<-loading
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	require.Eventually(t, func() bool {
		return h.stream.stopped.Load() == 1
	}, time.Second, time.Millisecond)
	assert.False(t, h.ctrl.State().Active)
	assert.Zero(t, h.detector.calls.Load())
}

func TestStopDuringReadyLeavesNoFrameSize(t *testing.T) {
	h := newHarness(t, alwaysValid)
	stream := &blockingReadyStream{fakeStream: &fakeStream{size: image.Pt(640, 480)}, release: make(chan struct{})}
	h.ctrl.source = &streamSource{stream: stream}

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Start(context.Background()) }()
	require.Eventually(t, func() bool { return h.ctrl.State().CameraActive }, time.Second, time.Millisecond)

	h.ctrl.Stop()
	close(stream.release)

	require.Error(t, <-errc)
	assert.Equal(t, SessionState{}, h.ctrl.State())
	assert.Equal(t, int32(1), stream.stopped.Load())
}

// ============================================================
// POLLING
// ============================================================

func TestTickErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t, func(n int32) (models.DetectionResult, error) {
		switch {
		case n <= 3:
			return models.DetectionResult{}, errors.New("inference failed")
		case n == 4:
			panic("corrupt frame")
		default:
			return validResult(), nil
		}
	})
	require.NoError(t, h.ctrl.Start(context.Background()))

	require.Eventually(t, func() bool {
		return h.ctrl.Gate().State().IsValid
	}, time.Second, 5*time.Millisecond)

	for _, e := range h.log.Entries() {
		assert.NotContains(t, e.Detail, "inference failed")
	}
}

func TestPausedStreamSkipsTicks(t *testing.T) {
	h := newHarness(t, alwaysValid)
	h.stream.paused.Store(true)
	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.Never(t, func() bool {
		return h.detector.calls.Load() > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	h.stream.paused.Store(false)
	require.Eventually(t, func() bool {
		return h.detector.calls.Load() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestEachTickClearsAndRedrawsOverlay(t *testing.T) {
	h := newHarness(t, alwaysValid)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.detector.calls.Load() >= 3 }, time.Second, time.Millisecond)
	h.ctrl.Stop()

	h.surface.mu.Lock()
	defer h.surface.mu.Unlock()
	assert.Equal(t, h.surface.clears, h.surface.draws)
	assert.GreaterOrEqual(t, h.surface.clears, 2)
}

func TestObserverSeesTransitions(t *testing.T) {
	h := newHarness(t, func(n int32) (models.DetectionResult, error) {
		if n == 1 {
			return models.DetectionResult{FrameWidth: 640, FrameHeight: 480}, nil
		}
		return validResult(), nil
	})
	rising := make(chan gate.Transition, 1)
	h.ctrl.OnTransition(func(tr gate.Transition) {
		if tr.Changed() && tr.To == gate.StateValid {
			select {
			case rising <- tr:
			default:
			}
		}
	})
	require.NoError(t, h.ctrl.Start(context.Background()))

	select {
	case tr := <-rising:
		assert.Equal(t, gate.StateInvalid, tr.From)
		assert.Equal(t, gate.VerdictAccepted, tr.Judgement.Verdict)
	case <-time.After(time.Second):
		t.Fatal("no rising edge observed")
	}
}

// ============================================================
// COMMANDS
// ============================================================

func TestCaptureWhileValid(t *testing.T) {
	h := newHarness(t, alwaysValid)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return h.ctrl.Gate().State().IsValid }, time.Second, 5*time.Millisecond)

	record, err := h.ctrl.Capture()
	require.NoError(t, err)
	assert.Equal(t, 640, record.ImageWidth)
	assert.Equal(t, 480, record.ImageHeight)
	assert.Equal(t, models.FaceBox{X: 220, Y: 125, Width: 200, Height: 230}, record.FaceBox)
	assert.Same(t, record, h.ctrl.LastCapture())
	assert.Same(t, record, <-h.sink.records)
	assert.True(t, h.board.State().ProceedEnabled)

	require.NoError(t, h.ctrl.Proceed())
	assert.Equal(t, "Process completed - continuing registration", lastEntry(t, h.log).Message)
}

func TestCaptureWithoutSession(t *testing.T) {
	h := newHarness(t, alwaysValid)

	record, err := h.ctrl.Capture()
	assert.Nil(t, record)
	assert.ErrorIs(t, err, models.ErrNoValidFace)
	assert.Equal(t, models.SeverityError, lastEntry(t, h.log).Severity)
	assert.Nil(t, h.ctrl.LastCapture())
}

func TestProceedNeedsCapture(t *testing.T) {
	h := newHarness(t, alwaysValid)
	assert.ErrorIs(t, h.ctrl.Proceed(), models.ErrNoValidFace)
	assert.Equal(t, models.SeverityError, lastEntry(t, h.log).Severity)
}

func TestClearLogLeavesSingleEntry(t *testing.T) {
	h := newHarness(t, alwaysValid)
	h.log.Info("one")
	h.log.Error("two")

	h.ctrl.ClearLog()

	entries := h.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Log cleared", entries[0].Message)
	assert.Equal(t, models.SeverityInfo, entries[0].Severity)
}

func TestBackLogsNavigation(t *testing.T) {
	h := newHarness(t, alwaysValid)
	h.ctrl.Back()
	assert.Equal(t, "Navigation: back", lastEntry(t, h.log).Message)
}
