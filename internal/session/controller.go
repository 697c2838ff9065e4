package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/internal/eventlog"
	"selfie-capture-kiosk/internal/gate"
	"selfie-capture-kiosk/internal/ui"
	"selfie-capture-kiosk/models"
)

// ============================================================
// COLLABORATORS
// ============================================================

// Detector is the external face library.
type Detector interface {
	// LoadModels is one-time and idempotent.
	LoadModels(ctx context.Context) error
	Detect(ctx context.Context, frame camera.Frame) (models.DetectionResult, error)
}

// Surface is the overlay drawn on top of the video.
type Surface interface {
	Resize(size image.Point)
	Clear()
	Draw(result models.DetectionResult)
}

// CaptureSink is notified of every emitted record after the gate has
// finished with it.
type CaptureSink interface {
	PublishCapture(record *models.CaptureRecord)
}

// SessionState is the controller's own view of the session.
type SessionState struct {
	Active       bool        `json:"active"`
	CameraActive bool        `json:"cameraActive"`
	ModelsLoaded bool        `json:"modelsLoaded"`
	FrameSize    image.Point `json:"frameSize"`
}

type Deps struct {
	Source   camera.Source
	Detector Detector
	Surface  Surface
	Board    *ui.Board
	Log      *eventlog.Log
	Handoff  gate.Handoff
	Sink     CaptureSink
}

// ============================================================
// CONTROLLER
// ============================================================

// Controller owns the camera stream for the whole life of a session and
// drives the polling loop.
type Controller struct {
	cfg         models.Config
	constraints camera.Constraints

	source   camera.Source
	detector Detector
	surface  Surface
	board    *ui.Board
	log      *eventlog.Log
	sink     CaptureSink
	gate     *gate.Gate

	mu          sync.Mutex
	state       SessionState
	stream      camera.Stream
	cancel      context.CancelFunc
	unwatch     func() bool
	loopDone    chan struct{}
	generation  uint64
	lastCapture *models.CaptureRecord

	observer func(gate.Transition)
}

func NewController(cfg models.Config, deps Deps) *Controller {
	g := gate.New(cfg.Validation, cfg.Capture, deps.Board, deps.Log)
	if deps.Handoff != nil {
		g.WithHandoff(deps.Handoff)
	}
	return &Controller{
		cfg:         cfg,
		constraints: camera.ConstraintsFromConfig(cfg.Camera),
		source:      deps.Source,
		detector:    deps.Detector,
		surface:     deps.Surface,
		board:       deps.Board,
		log:         deps.Log,
		sink:        deps.Sink,
		gate:        g,
	}
}

// OnTransition registers a callback run after every processed frame, on the
// polling goroutine. The callback must not call Stop.
func (c *Controller) OnTransition(fn func(gate.Transition)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *Controller) Gate() *gate.Gate {
	return c.gate
}

func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastCapture() *models.CaptureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCapture
}

// ============================================================
// START
// ============================================================

// Start acquires the camera, waits for its first frame, loads the models and
// launches the polling loop. ctx bounds the whole session: cancelling it is
// the same as Stop. A model load failure leaves the camera running without
// detection and is returned as a ModelLoadError.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Active {
		c.mu.Unlock()
		return models.ErrSessionActive
	}
	sctx, cancel := context.WithCancel(ctx)
	c.generation++
	gen := c.generation
	c.state = SessionState{Active: true}
	c.cancel = cancel
	// a cancelled parent tears the session down like Stop
	c.unwatch = context.AfterFunc(sctx, func() { c.teardown(gen) })
	c.mu.Unlock()

	c.board.ShowLoading("Requesting camera access...")

	stream, err := c.source.Open(sctx, c.constraints)
	if err != nil {
		if sctx.Err() != nil {
			c.Stop()
			return sctx.Err()
		}
		c.failCamera(err)
		return err
	}
	if !c.attach(sctx, stream) {
		stream.Stop()
		return sctx.Err()
	}

	c.board.SetCameraPlaceholder(false)
	c.board.SetStatus("Camera ready - loading AI...", models.IndicatorIdle)

	size, err := stream.Ready(sctx)
	if err != nil {
		c.Stop()
		return err
	}
	c.mu.Lock()
	if sctx.Err() != nil {
		c.mu.Unlock()
		return sctx.Err()
	}
	c.state.FrameSize = size
	c.mu.Unlock()
	c.surface.Resize(size)
	c.log.Success("Camera initialized", fmt.Sprintf("Resolution: %dx%d", size.X, size.Y))

	c.board.SetLoadingText("Loading AI models...")
	if err := c.detector.LoadModels(sctx); err != nil {
		if sctx.Err() != nil {
			return sctx.Err()
		}
		merr := models.NewError(models.KindModelLoad, "load_models", err)
		c.board.SetLoadingText("Error loading models: " + merr.Message)
		c.log.Error("Error loading AI models", merr.Message)
		log.Printf("❌ Model load failed: %v", err)
		return merr
	}

	c.mu.Lock()
	if sctx.Err() != nil {
		c.mu.Unlock()
		return sctx.Err()
	}
	c.state.ModelsLoaded = true
	done := make(chan struct{})
	c.loopDone = done
	c.mu.Unlock()

	c.log.Success("AI models loaded")
	c.board.HideLoading()
	c.board.SetStatus("AI ready - detecting faces...", models.IndicatorIdle)
	log.Printf("✅ Session started (%dx%d)", size.X, size.Y)

	go c.pollLoop(sctx, stream, done)
	return nil
}

// StartAsync runs Start in the background for callers that cannot wait on a
// browser to answer the camera request. The outcome reaches the board and
// log either way.
func (c *Controller) StartAsync(ctx context.Context) {
	go func() {
		if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("❌ Session start: %v", err)
		}
	}()
}

// attach records the stream unless the session was stopped meanwhile.
func (c *Controller) attach(ctx context.Context, stream camera.Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.stream = stream
	c.state.CameraActive = true
	return true
}

func (c *Controller) failCamera(err error) {
	msg := models.UserMessage(err)
	c.board.SetStatus("Error: "+msg, models.IndicatorError)
	c.board.SetCameraPlaceholder(true)
	c.board.HideLoading()
	c.log.Error("Error starting camera", msg)
	log.Printf("❌ Camera access failed: %v", err)

	c.mu.Lock()
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = SessionState{}
	c.mu.Unlock()
}

// ============================================================
// POLLING
// ============================================================

func (c *Controller) pollLoop(ctx context.Context, stream camera.Stream, done chan struct{}) {
	defer close(done)

	interval := c.cfg.Session.TickInterval
	if interval <= 0 {
		interval = models.DefaultSessionConfig().TickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := c.pollTick(ctx, stream); err != nil {
			c.debugf("tick: %v", err)
		}
	}
}

// pollTick runs one detection. Errors are returned for the debug channel
// only; the loop keeps going.
func (c *Controller) pollTick(ctx context.Context, stream camera.Stream) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewError(models.KindDetectionTick, "detect", fmt.Errorf("panic: %v", r))
		}
	}()

	if stream.Paused() || !stream.Active() {
		return nil
	}
	frame, ok := stream.Frame()
	if !ok {
		return nil
	}
	defer frame.Close()

	result, err := c.detector.Detect(ctx, frame)
	if err != nil {
		return models.NewError(models.KindDetectionTick, "detect", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	c.surface.Clear()
	c.surface.Draw(result)
	t := c.gate.Process(result)

	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer(t)
	}
	return nil
}

func (c *Controller) debugf(format string, args ...interface{}) {
	if c.cfg.Session.Verbose {
		log.Printf("🐛 "+format, args...)
	}
}

// ============================================================
// STOP
// ============================================================

// Stop releases the stream and ends the loop. Calling it without an active
// session does nothing.
func (c *Controller) Stop() {
	c.teardown(0)
}

// teardown ends the session numbered gen, or whichever is active when gen
// is 0. The stream is released exactly once whichever path gets here first.
func (c *Controller) teardown(gen uint64) {
	c.mu.Lock()
	if !c.state.Active || (gen != 0 && gen != c.generation) {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	unwatch := c.unwatch
	stream := c.stream
	done := c.loopDone
	c.cancel = nil
	c.unwatch = nil
	c.stream = nil
	c.loopDone = nil
	c.state = SessionState{}
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if stream != nil {
		stream.Stop()
	}

	c.gate.Reset()
	c.board.Reset("Camera stopped")
	log.Println("🛑 Session stopped")
}

// ============================================================
// COMMANDS
// ============================================================

// Capture freezes the current frame with the last accepted face.
func (c *Controller) Capture() (*models.CaptureRecord, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()

	record, err := c.gate.Capture(func() (image.Image, error) {
		if stream == nil {
			return nil, models.ErrSessionInactive
		}
		frame, ok := stream.Frame()
		if !ok {
			return nil, fmt.Errorf("no video frame available")
		}
		defer frame.Close()
		return frame.ToImage()
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastCapture = record
	c.mu.Unlock()
	if c.sink != nil {
		c.sink.PublishCapture(record)
	}
	return record, nil
}

func (c *Controller) ClearLog() {
	c.log.Clear()
	c.log.Info("Log cleared")
}

// Proceed hands control to the next registration step. It needs a capture.
func (c *Controller) Proceed() error {
	if c.LastCapture() == nil {
		c.log.Error("Cannot continue", "Capture a photo first")
		return models.ErrNoValidFace
	}
	c.log.Info("Process completed - continuing registration")
	return nil
}

func (c *Controller) Back() {
	c.log.Info("Navigation: back")
}
