package events

import (
	"selfie-capture-kiosk/models"

	evbus "github.com/asaskevich/EventBus"
)

// ============================================================
// TOPICS
// ============================================================

const (
	TopicUIState   = "ui:state"
	TopicLogAppend = "log:append"
	TopicLogClear  = "log:clear"
	TopicCapture   = "capture:emitted"
)

// ============================================================
// BUS
// ============================================================

// Bus is a synchronous in-process publisher. Handlers run on the publishing
// goroutine, so they must not block.
type Bus struct {
	bus evbus.Bus
}

func New() *Bus {
	return &Bus{bus: evbus.New()}
}

func (b *Bus) PublishUIState(state models.UIState) {
	b.bus.Publish(TopicUIState, state)
}

func (b *Bus) PublishLogAppend(entry models.LogEntry) {
	b.bus.Publish(TopicLogAppend, entry)
}

func (b *Bus) PublishLogClear() {
	b.bus.Publish(TopicLogClear)
}

func (b *Bus) PublishCapture(record *models.CaptureRecord) {
	b.bus.Publish(TopicCapture, record)
}

func (b *Bus) OnUIState(fn func(models.UIState)) (func(), error) {
	return b.subscribe(TopicUIState, fn)
}

func (b *Bus) OnLogAppend(fn func(models.LogEntry)) (func(), error) {
	return b.subscribe(TopicLogAppend, fn)
}

func (b *Bus) OnLogClear(fn func()) (func(), error) {
	return b.subscribe(TopicLogClear, fn)
}

func (b *Bus) OnCapture(fn func(*models.CaptureRecord)) (func(), error) {
	return b.subscribe(TopicCapture, fn)
}

// subscribe returns an unsubscribe func.
func (b *Bus) subscribe(topic string, fn interface{}) (func(), error) {
	if err := b.bus.Subscribe(topic, fn); err != nil {
		return nil, err
	}
	return func() {
		_ = b.bus.Unsubscribe(topic, fn)
	}, nil
}
