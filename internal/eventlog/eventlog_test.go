package eventlog

import (
	"sync"
	"testing"
	"time"

	"selfie-capture-kiosk/internal/events"
	"selfie-capture-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendKeepsOrder(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 9, 30, 5, 0, time.UTC)
	l := New(nil).WithClock(func() time.Time { return fixed })

	l.Info("camera ready")
	l.Success("valid face", "expression and position ok")
	l.Error("capture failed", "no valid face", "ignored")

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, models.SeverityInfo, entries[0].Severity)
	assert.Equal(t, "", entries[0].Detail)
	assert.Equal(t, models.SeveritySuccess, entries[1].Severity)
	assert.Equal(t, "expression and position ok", entries[1].Detail)
	assert.Equal(t, "no valid face", entries[2].Detail)
	assert.Equal(t, "09:30:05", entries[2].Clock())
}

func TestEntriesIsACopy(t *testing.T) {
	l := New(nil)
	l.Info("one")

	entries := l.Entries()
	entries[0].Message = "mutated"

	assert.Equal(t, "one", l.Entries()[0].Message)
}

func TestClearPublishesAndKeepsSequence(t *testing.T) {
	bus := events.New()
	var appended []models.LogEntry
	cleared := 0

	_, err := bus.OnLogAppend(func(e models.LogEntry) { appended = append(appended, e) })
	require.NoError(t, err)
	_, err = bus.OnLogClear(func() { cleared++ })
	require.NoError(t, err)

	l := New(bus)
	l.Info("a")
	l.Info("b")
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, 1, cleared)

	next := l.Info("c")
	assert.Equal(t, uint64(3), next.Seq)
	require.Len(t, appended, 3)
	assert.Equal(t, "c", appended[2].Message)
}

type seqRecorder struct {
	mu   sync.Mutex
	seqs []uint64
}

func (r *seqRecorder) PublishLogAppend(e models.LogEntry) {
	r.mu.Lock()
	r.seqs = append(r.seqs, e.Seq)
	r.mu.Unlock()
}

func (r *seqRecorder) PublishLogClear() {}

func TestConcurrentAppendsPublishInSeqOrder(t *testing.T) {
	rec := &seqRecorder{}
	l := New(rec)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Info("tick")
			}
		}()
	}
	wg.Wait()

	require.Len(t, rec.seqs, 400)
	for i, seq := range rec.seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
}
