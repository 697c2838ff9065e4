package camera

import (
	"context"
	"image"

	"selfie-capture-kiosk/models"
)

// ============================================================
// CONSTRAINTS
// ============================================================

// Constraints mirror a video-only media request: facing preference plus an
// ideal resolution the device may or may not honour.
type Constraints struct {
	FacingMode  string `json:"facingMode"`
	IdealWidth  int    `json:"idealWidth"`
	IdealHeight int    `json:"idealHeight"`
	DeviceID    int    `json:"-"`
}

func ConstraintsFromConfig(cfg models.CameraConfig) Constraints {
	return Constraints{
		FacingMode:  cfg.FacingMode,
		IdealWidth:  cfg.IdealWidth,
		IdealHeight: cfg.IdealHeight,
		DeviceID:    cfg.DeviceID,
	}
}

// ============================================================
// CONTRACTS
// ============================================================

// Frame is one decoded video frame. Callers own it and must Close it.
type Frame interface {
	Size() image.Point
	// ToImage copies the frame at native resolution.
	ToImage() (image.Image, error)
	Close()
}

// Stream is a live video stream owned by exactly one session.
type Stream interface {
	// Ready blocks until the first frame's metadata is known and returns the
	// native resolution. There is no timeout; only ctx ends the wait.
	Ready(ctx context.Context) (image.Point, error)
	// Frame returns a copy of the latest frame, or false when the stream is
	// paused, stopped, or has not produced a frame yet.
	Frame() (Frame, bool)
	Paused() bool
	Active() bool
	// Stop releases every track. Safe to call more than once.
	Stop()
}

// Source acquires streams. Failures are reported as camera access errors
// carrying the platform message verbatim.
type Source interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// AccessError wraps a platform denial or unavailability error.
func AccessError(op string, cause error) error {
	return models.NewError(models.KindCameraAccess, op, cause)
}
