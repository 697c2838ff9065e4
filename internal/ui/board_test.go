package ui

import (
	"sync"
	"testing"
	"time"

	"selfie-capture-kiosk/internal/events"
	"selfie-capture-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardPublishesOnlyChanges(t *testing.T) {
	bus := events.New()
	var seen []models.UIState
	_, err := bus.OnUIState(func(s models.UIState) { seen = append(seen, s) })
	require.NoError(t, err)

	b := NewBoard(bus)
	b.SetCaptureEnabled(true)
	b.SetCaptureEnabled(true)
	b.SetStatus("valid face", models.IndicatorActive)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].CaptureEnabled)
	assert.Equal(t, "valid face", seen[1].Status)
	assert.Equal(t, models.IndicatorActive, b.State().Indicator)
}

func TestBoardLoadingAndReset(t *testing.T) {
	b := NewBoard(nil)
	assert.True(t, b.State().CameraPlaceholder)

	b.ShowLoading("Loading AI models...")
	assert.True(t, b.State().Loading)
	assert.Equal(t, "Loading AI models...", b.State().LoadingText)

	b.SetCameraPlaceholder(false)
	b.SetCaptureEnabled(true)
	b.SetThumbnail("data:image/jpeg;base64,xyz")
	b.Reset("Camera stopped")

	s := b.State()
	assert.False(t, s.Loading)
	assert.False(t, s.CaptureEnabled)
	assert.True(t, s.CameraPlaceholder)
	assert.Equal(t, "Camera stopped", s.Status)
	assert.Equal(t, "data:image/jpeg;base64,xyz", s.Thumbnail)
}

// stallingPublisher holds the first publish until release is closed.
type stallingPublisher struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	last    models.UIState
}

func (p *stallingPublisher) PublishUIState(s models.UIState) {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()

	if first {
		close(p.entered)
		<-p.release
	}

	p.mu.Lock()
	p.last = s
	p.mu.Unlock()
}

func TestBoardPublishesInChangeOrder(t *testing.T) {
	pub := &stallingPublisher{entered: make(chan struct{}), release: make(chan struct{})}
	b := NewBoard(pub)

	go b.SetCaptureEnabled(true)
	<-pub.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.SetCaptureEnabled(false)
	}()

	select {
	case <-done:
		t.Fatal("second change published while the first was still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(pub.release)
	<-done

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.False(t, b.State().CaptureEnabled)
	assert.Equal(t, b.State(), pub.last)
	assert.Equal(t, 2, pub.calls)
}
