package models

// ============================================================
// UI STATE
// ============================================================

type Indicator string

const (
	IndicatorIdle   Indicator = "idle"
	IndicatorActive Indicator = "active"
	IndicatorError  Indicator = "error"
)

// UIState is everything a renderer needs to draw the capture screen.
type UIState struct {
	Status            string    `json:"status"`
	Indicator         Indicator `json:"indicator"`
	CaptureEnabled    bool      `json:"captureEnabled"`
	ProceedEnabled    bool      `json:"proceedEnabled"`
	Loading           bool      `json:"loading"`
	LoadingText       string    `json:"loadingText,omitempty"`
	CameraPlaceholder bool      `json:"cameraPlaceholder"`
	Thumbnail         string    `json:"thumbnail,omitempty"`
}
