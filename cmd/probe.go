package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"selfie-capture-kiosk/internal/camera/device"
	"selfie-capture-kiosk/internal/detector"
	"selfie-capture-kiosk/internal/eventlog"
	"selfie-capture-kiosk/internal/events"
	"selfie-capture-kiosk/internal/gate"
	"selfie-capture-kiosk/internal/session"
	"selfie-capture-kiosk/internal/ui"
	"selfie-capture-kiosk/internal/vision"
	"selfie-capture-kiosk/models"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	probeAutoCapture bool
	probeDuration    time.Duration
	probeOutput      string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run a headless session on the local webcam",
	Long: `Opens the local webcam, loads the models and prints every validity
transition and log entry. With --auto-capture the first valid face is
captured and the probe exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		c.Camera.Source = models.CameraSourceDevice
		return runProbe(cmd.Context(), c)
	},
}

func init() {
	probeCmd.Flags().BoolVar(&probeAutoCapture, "auto-capture", false, "Capture on the first valid face and exit")
	probeCmd.Flags().DurationVarP(&probeDuration, "duration", "d", 0, "Stop after this long (0 = until interrupted)")
	probeCmd.Flags().StringVarP(&probeOutput, "output", "o", "", "Write the captured JPEG here")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(ctx context.Context, c models.Config) error {
	bus := events.New()
	board := ui.NewBoard(bus)
	entries := eventlog.New(bus)

	spinner := &loadingSpinner{}
	defer spinner.hide()

	if _, err := bus.OnUIState(func(s models.UIState) {
		if s.Loading {
			spinner.show(s.LoadingText)
		} else {
			spinner.hide()
		}
	}); err != nil {
		return err
	}
	if _, err := bus.OnLogAppend(printEntry); err != nil {
		return err
	}

	det := detector.NewFaceDetector(c.Detector).WithProgress(downloadBar)
	defer det.Close()

	canvas := vision.NewCanvas()
	defer canvas.Close()

	ctrl := session.NewController(c, session.Deps{
		Source:   device.NewSource(),
		Detector: det,
		Surface:  canvas,
		Board:    board,
		Log:      entries,
		Handoff:  gate.DebugHandoff{Verbose: c.Session.Verbose},
		Sink:     bus,
	})
	defer ctrl.Stop()

	valid := make(chan struct{}, 1)
	ctrl.OnTransition(func(t gate.Transition) {
		if !t.Changed() {
			return
		}
		log.Printf("🔀 %s -> %s (%s, ratio %.3f)", t.From, t.To, t.Judgement.Verdict, t.Judgement.FaceRatio)
		if t.To == gate.StateValid {
			select {
			case valid <- struct{}{}:
			default:
			}
		}
	})

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if probeDuration > 0 {
		timer := time.NewTimer(probeDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeout:
			log.Println("⏱️  Probe duration reached")
			return nil
		case <-valid:
			if !probeAutoCapture {
				continue
			}
			record, err := ctrl.Capture()
			if err != nil {
				// the face left between the edge and the capture
				log.Printf("⚠️  Capture failed: %v", err)
				continue
			}
			return reportCapture(record)
		}
	}
}

func reportCapture(r *models.CaptureRecord) error {
	fmt.Printf("📸 Captured %s: %dx%d, %s (%.0f%%), confidence %.3f, %d landmarks\n",
		r.ID, r.ImageWidth, r.ImageHeight, r.Expression, r.ExpressionProbability*100, r.Confidence, r.LandmarkCount)
	if probeOutput == "" {
		return nil
	}
	if err := os.WriteFile(probeOutput, r.Image, 0o644); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	fmt.Printf("💾 Saved to %s\n", probeOutput)
	return nil
}

func printEntry(e models.LogEntry) {
	icon := "ℹ️ "
	switch e.Severity {
	case models.SeveritySuccess:
		icon = "✅"
	case models.SeverityError:
		icon = "❌"
	}
	if e.Detail != "" {
		fmt.Printf("[%s] %s %s - %s\n", e.Clock(), icon, e.Message, e.Detail)
		return
	}
	fmt.Printf("[%s] %s %s\n", e.Clock(), icon, e.Message)
}

// downloadBar shows model download progress.
func downloadBar(name string, size int64) io.Writer {
	return progressbar.DefaultBytes(size, "⬇️  "+name)
}

// ============================================================
// LOADING SPINNER
// ============================================================

// loadingSpinner mirrors the loading overlay on stderr. show and hide are
// called from bus handlers and never block.
type loadingSpinner struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	stop chan struct{}
}

func (s *loadingSpinner) show(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		s.bar.Describe(text)
		return
	}

	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(text),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	s.stop = make(chan struct{})

	go func(bar *progressbar.ProgressBar, stop chan struct{}) {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}(s.bar, s.stop)
}

func (s *loadingSpinner) hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return
	}
	close(s.stop)
	_ = s.bar.Finish()
	s.bar = nil
	s.stop = nil
}
