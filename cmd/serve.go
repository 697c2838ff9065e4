package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"selfie-capture-kiosk/internal/api"
	"selfie-capture-kiosk/internal/camera"
	"selfie-capture-kiosk/internal/camera/device"
	"selfie-capture-kiosk/internal/detector"
	"selfie-capture-kiosk/internal/eventlog"
	"selfie-capture-kiosk/internal/events"
	"selfie-capture-kiosk/internal/gate"
	"selfie-capture-kiosk/internal/session"
	"selfie-capture-kiosk/internal/transport/ws"
	"selfie-capture-kiosk/internal/ui"
	"selfie-capture-kiosk/internal/vision"
	"selfie-capture-kiosk/internal/webrtc"
	"selfie-capture-kiosk/models"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr      string
	serveAutoStart bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the capture session over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		if cmd.Flags().Changed("addr") {
			c.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("auto-start") {
			c.Server.AutoStart = serveAutoStart
		}
		return runServe(cmd.Context(), c)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveAutoStart, "auto-start", false, "Start the session as soon as the server is up")
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the session to the HTTP and WebSocket surfaces and runs
// until ctx is cancelled.
func runServe(ctx context.Context, c models.Config) error {
	log.Println("🚀 Selfie capture kiosk starting")
	log.Printf("   Camera: %s | Detector: %s | Validation: %s", c.Camera.Source, c.Detector.Backend, c.Validation.Strictness)

	bus := events.New()
	board := ui.NewBoard(bus)
	entries := eventlog.New(bus)

	hub := ws.NewHub(board, entries, c.Server.AllowOrigins)
	if err := hub.Attach(bus); err != nil {
		return err
	}
	defer hub.Close()

	source, closeSource, err := newSource(c, hub)
	if err != nil {
		return err
	}
	defer closeSource()

	det := detector.NewFaceDetector(c.Detector)
	defer det.Close()

	canvas := vision.NewCanvas()
	defer canvas.Close()

	ctrl := session.NewController(c, session.Deps{
		Source:   source,
		Detector: det,
		Surface:  canvas,
		Board:    board,
		Log:      entries,
		Handoff:  gate.DebugHandoff{Verbose: c.Session.Verbose},
		Sink:     bus,
	})

	g, gctx := errgroup.WithContext(ctx)
	registerCommands(gctx, hub, ctrl)

	srv, err := api.NewServer(api.Options{
		Config:      c.Server,
		Session:     ctrl,
		Validity:    ctrl.Gate(),
		Board:       board,
		Log:         entries,
		Overlay:     canvas,
		WS:          hub,
		BaseContext: gctx,
		Verbose:     c.Session.Verbose,
	})
	if err != nil {
		return err
	}

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if c.Server.AutoStart {
		ctrl.StartAsync(gctx)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("🛑 Shutting down...")
		ctrl.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("👋 Bye")
	return nil
}

// newSource picks the camera backend. The WebRTC source signals through the
// hub, and the hub routes browser signalling back to it.
func newSource(c models.Config, hub *ws.Hub) (camera.Source, func(), error) {
	switch c.Camera.Source {
	case models.CameraSourceDevice:
		return device.NewSource(), func() {}, nil

	case models.CameraSourceWebRTC:
		m, err := webrtc.NewManager(hub, webrtc.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}
		hub.SetSignalHandler(m)
		return m, m.CloseAll, nil

	default:
		return nil, nil, fmt.Errorf("unknown camera source %q", c.Camera.Source)
	}
}

// registerCommands maps websocket commands onto the controller.
func registerCommands(ctx context.Context, hub *ws.Hub, ctrl *session.Controller) {
	hub.On(models.MsgStart, func(string) error {
		if ctrl.State().Active {
			return models.ErrSessionActive
		}
		// the same client may still have to answer the camera request
		ctrl.StartAsync(ctx)
		return nil
	})
	hub.On(models.MsgStop, func(string) error {
		ctrl.Stop()
		return nil
	})
	hub.On(models.MsgCapture, func(string) error {
		_, err := ctrl.Capture()
		return err
	})
	hub.On(models.MsgClearLog, func(string) error {
		ctrl.ClearLog()
		return nil
	})
	hub.On(models.MsgProceed, func(string) error {
		return ctrl.Proceed()
	})
	hub.On(models.MsgBack, func(string) error {
		ctrl.Back()
		return nil
	})
}
