package ui

import (
	"sync"

	"selfie-capture-kiosk/models"
)

// Publisher receives a full state snapshot after every change.
type Publisher interface {
	PublishUIState(state models.UIState)
}

// Board owns the UI-facing state. Components mutate it through methods and
// renderers observe it through the Publisher; nothing here draws.
type Board struct {
	// pubMu orders publishes the same way as the changes they carry.
	// Lock order: pubMu, then mu.
	pubMu sync.Mutex
	mu    sync.RWMutex
	state models.UIState
	pub   Publisher
}

func NewBoard(pub Publisher) *Board {
	return &Board{
		pub: pub,
		state: models.UIState{
			Status:            "Waiting for camera",
			Indicator:         models.IndicatorIdle,
			CameraPlaceholder: true,
		},
	}
}

func (b *Board) State() models.UIState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Board) update(fn func(s *models.UIState)) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	before := b.state
	fn(&b.state)
	after := b.state
	b.mu.Unlock()

	if after != before && b.pub != nil {
		b.pub.PublishUIState(after)
	}
}

func (b *Board) SetStatus(text string, indicator models.Indicator) {
	b.update(func(s *models.UIState) {
		s.Status = text
		s.Indicator = indicator
	})
}

func (b *Board) SetCaptureEnabled(enabled bool) {
	b.update(func(s *models.UIState) { s.CaptureEnabled = enabled })
}

func (b *Board) SetProceedEnabled(enabled bool) {
	b.update(func(s *models.UIState) { s.ProceedEnabled = enabled })
}

// ShowLoading puts the screen in its non-interactive loading state.
func (b *Board) ShowLoading(text string) {
	b.update(func(s *models.UIState) {
		s.Loading = true
		s.LoadingText = text
	})
}

// SetLoadingText changes the overlay text without toggling it.
func (b *Board) SetLoadingText(text string) {
	b.update(func(s *models.UIState) { s.LoadingText = text })
}

func (b *Board) HideLoading() {
	b.update(func(s *models.UIState) {
		s.Loading = false
		s.LoadingText = ""
	})
}

func (b *Board) SetCameraPlaceholder(visible bool) {
	b.update(func(s *models.UIState) { s.CameraPlaceholder = visible })
}

func (b *Board) SetThumbnail(dataURL string) {
	b.update(func(s *models.UIState) { s.Thumbnail = dataURL })
}

// Reset returns every control to its initial, disabled state. The thumbnail
// of a previous capture is kept.
func (b *Board) Reset(status string) {
	b.update(func(s *models.UIState) {
		s.Status = status
		s.Indicator = models.IndicatorIdle
		s.CaptureEnabled = false
		s.Loading = false
		s.LoadingText = ""
		s.CameraPlaceholder = true
	})
}
