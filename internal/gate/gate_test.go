package gate

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"math"
	"testing"
	"time"

	"selfie-capture-kiosk/internal/eventlog"
	"selfie-capture-kiosk/internal/ui"
	"selfie-capture-kiosk/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	frameW = 640
	frameH = 480
)

type mockHandoff struct {
	mock.Mock
}

func (m *mockHandoff) Deliver(record *models.CaptureRecord) {
	m.Called(record)
}

// centeredFace builds a face of the given coverage ratio in the middle of a
// 640x480 frame.
func centeredFace(ratio float64, expr models.Expression, p float64) models.FaceObservation {
	area := ratio * frameW * frameH
	w := 0.8 * math.Sqrt(area)
	h := area / w
	return models.FaceObservation{
		Box:         models.BoundingBox{X: (frameW - w) / 2, Y: (frameH - h) / 2, Width: w, Height: h},
		Landmarks:   []models.Point{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}, {X: 7, Y: 8}, {X: 9, Y: 10}},
		Expressions: models.Expressions{expr: p, models.ExpressionNeutral: 1 - p},
		Score:       0.991,
	}
}

func result(faces ...models.FaceObservation) models.DetectionResult {
	return models.DetectionResult{FrameWidth: frameW, FrameHeight: frameH, Faces: faces}
}

func newTestGate(t *testing.T, cfg models.ValidationConfig) (*Gate, *ui.Board, *eventlog.Log) {
	t.Helper()
	board := ui.NewBoard(nil)
	log := eventlog.New(nil)
	g := New(cfg, models.DefaultCaptureConfig(), board, log)
	return g, board, log
}

func snapshotOf(w, h int) Snapshotter {
	return func() (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, w, h)), nil
	}
}

func TestSingleCenteredHappyFaceBecomesValid(t *testing.T) {
	g, board, log := newTestGate(t, models.StrictValidationConfig())
	face := centeredFace(0.15, models.ExpressionHappy, 0.9)

	tr := g.Process(result(face))

	assert.Equal(t, StateInvalid, tr.From)
	assert.Equal(t, StateValid, tr.To)
	assert.True(t, tr.Changed())
	assert.InDelta(t, 0.15, tr.Judgement.FaceRatio, 1e-6)

	st := g.State()
	assert.True(t, st.IsValid)
	require.NotNil(t, st.LastAcceptedFace)
	assert.Equal(t, face, *st.LastAcceptedFace)

	assert.True(t, board.State().CaptureEnabled)
	assert.Equal(t, "valid face", board.State().Status)
	assert.Equal(t, models.IndicatorActive, board.State().Indicator)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.SeveritySuccess, entries[0].Severity)
}

func TestRisingEdgeOnlyLogsOnce(t *testing.T) {
	g, _, log := newTestGate(t, models.StrictValidationConfig())
	face := centeredFace(0.2, models.ExpressionNeutral, 0.8)

	for i := 0; i < 5; i++ {
		g.Process(result(face))
	}
	assert.Equal(t, 1, log.Len())

	g.Process(result())
	g.Process(result(face))
	assert.Equal(t, 2, log.Len())
}

func TestLastAcceptedFaceOnlySetOnRisingEdge(t *testing.T) {
	g, _, _ := newTestGate(t, models.LenientValidationConfig())
	first := centeredFace(0.2, models.ExpressionNeutral, 0.8)
	second := centeredFace(0.3, models.ExpressionHappy, 0.6)

	g.Process(result(first))
	tr := g.Process(result(second))
	assert.False(t, tr.Changed())
	assert.Equal(t, first.Box, g.State().LastAcceptedFace.Box)
}

func TestZeroOrManyFacesAlwaysInvalid(t *testing.T) {
	face := centeredFace(0.15, models.ExpressionHappy, 0.9)

	tests := []struct {
		name       string
		priorValid bool
		res        models.DetectionResult
		status     string
		indicator  models.Indicator
	}{
		{"no face from invalid", false, result(), "no face", models.IndicatorIdle},
		{"no face from valid", true, result(), "no face", models.IndicatorIdle},
		{"two faces from invalid", false, result(face, face), "multiple faces", models.IndicatorError},
		{"two faces from valid", true, result(face, face), "multiple faces", models.IndicatorError},
		{"three faces", true, result(face, face, face), "multiple faces", models.IndicatorError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, board, _ := newTestGate(t, models.StrictValidationConfig())
			if tt.priorValid {
				require.Equal(t, StateValid, g.Process(result(face)).To)
			}

			tr := g.Process(tt.res)
			assert.Equal(t, StateInvalid, tr.To)
			assert.False(t, g.State().IsValid)
			assert.False(t, board.State().CaptureEnabled)
			assert.Equal(t, tt.status, board.State().Status)
			assert.Equal(t, tt.indicator, board.State().Indicator)
		})
	}
}

func TestFallingEdgeKeepsLastAcceptedFace(t *testing.T) {
	g, _, _ := newTestGate(t, models.StrictValidationConfig())
	face := centeredFace(0.15, models.ExpressionHappy, 0.9)

	g.Process(result(face))
	tr := g.Process(result())

	assert.Equal(t, StateValid, tr.From)
	assert.Equal(t, StateInvalid, tr.To)
	st := g.State()
	assert.False(t, st.IsValid)
	require.NotNil(t, st.LastAcceptedFace)
	assert.Equal(t, face.Box, st.LastAcceptedFace.Box)
}

func TestSmallFaceRejected(t *testing.T) {
	g, board, _ := newTestGate(t, models.StrictValidationConfig())

	tr := g.Process(result(centeredFace(0.05, models.ExpressionHappy, 0.9)))

	assert.Equal(t, VerdictTooSmall, tr.Judgement.Verdict)
	assert.Equal(t, StateInvalid, tr.To)
	assert.Equal(t, "face too small/far", board.State().Status)
}

func TestEvaluatePresets(t *testing.T) {
	strict := models.StrictValidationConfig()
	lenient := models.LenientValidationConfig()

	offCenter := centeredFace(0.15, models.ExpressionNeutral, 0.9)
	offCenter.Box.X = 0
	offCenter.Box.Y = 0

	atThreshold := centeredFace(0.15, models.ExpressionNeutral, 0.9)
	atThreshold.Box = models.BoundingBox{X: 192, Y: 180, Width: 256, Height: 120}

	tests := []struct {
		name string
		cfg  models.ValidationConfig
		face models.FaceObservation
		want Verdict
	}{
		{"strict accepts happy above ceiling", strict, centeredFace(0.15, models.ExpressionHappy, 0.95), VerdictAccepted},
		{"strict rejects angry above ceiling", strict, centeredFace(0.15, models.ExpressionAngry, 0.8), VerdictExpression},
		{"strict rejects fearful above ceiling", strict, centeredFace(0.15, models.ExpressionFearful, 0.75), VerdictExpression},
		{"strict accepts disgusted below ceiling", strict, centeredFace(0.15, models.ExpressionDisgusted, 0.65), VerdictAccepted},
		{"strict rejects off center", strict, offCenter, VerdictOffCenter},
		{"strict coverage at threshold rejected", strict, atThreshold, VerdictTooSmall},
		{"lenient ignores expression", lenient, centeredFace(0.15, models.ExpressionAngry, 0.99), VerdictAccepted},
		{"lenient ignores centering", lenient, offCenter, VerdictAccepted},
		{"lenient accepts 0.09", lenient, centeredFace(0.09, models.ExpressionNeutral, 0.9), VerdictAccepted},
		{"lenient rejects 0.07", lenient, centeredFace(0.07, models.ExpressionNeutral, 0.9), VerdictTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := Evaluate(tt.cfg, result(tt.face))
			assert.Equal(t, tt.want, j.Verdict, j.Verdict.Message())
		})
	}
}

func TestEvaluateZeroFrameSize(t *testing.T) {
	j := Evaluate(models.LenientValidationConfig(), models.DetectionResult{
		Faces: []models.FaceObservation{centeredFace(0.5, models.ExpressionNeutral, 1)},
	})
	assert.Equal(t, VerdictTooSmall, j.Verdict)
}

func TestCaptureWhileInvalid(t *testing.T) {
	g, board, log := newTestGate(t, models.StrictValidationConfig())
	called := false

	record, err := g.Capture(func() (image.Image, error) {
		called = true
		return nil, nil
	})

	assert.Nil(t, record)
	assert.True(t, errors.Is(err, models.ErrNoValidFace))
	assert.False(t, called)
	assert.False(t, board.State().ProceedEnabled)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.SeverityError, entries[0].Severity)
}

func TestCaptureAfterFallingEdgeFails(t *testing.T) {
	g, _, log := newTestGate(t, models.StrictValidationConfig())
	g.Process(result(centeredFace(0.15, models.ExpressionHappy, 0.9)))
	g.Process(result())

	record, err := g.Capture(snapshotOf(frameW, frameH))
	assert.Nil(t, record)
	assert.True(t, errors.Is(err, models.ErrNoValidFace))
	assert.Equal(t, models.SeverityError, log.Entries()[log.Len()-1].Severity)
}

func TestCaptureWhileValid(t *testing.T) {
	board := ui.NewBoard(nil)
	log := eventlog.New(nil)
	handoff := &mockHandoff{}
	handoff.On("Deliver", mock.AnythingOfType("*models.CaptureRecord")).Once()

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cfg := models.LenientValidationConfig()
	g := New(cfg, models.DefaultCaptureConfig(), board, log).
		WithHandoff(handoff).
		WithClock(func() time.Time { return at })

	face := models.FaceObservation{
		Box:         models.BoundingBox{X: 10.2, Y: 19.8, Width: 100.4, Height: 119.6},
		Landmarks:   make([]models.Point, 68),
		Expressions: models.Expressions{models.ExpressionHappy: 0.9, models.ExpressionNeutral: 0.1},
		Score:       0.987,
	}
	tr := g.Process(models.DetectionResult{FrameWidth: 320, FrameHeight: 240, Faces: []models.FaceObservation{face}})
	require.Equal(t, StateValid, tr.To)

	record, err := g.Capture(func() (image.Image, error) {
		return image.NewRGBA(image.Rect(5, 5, 645, 485)), nil
	})
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, models.FaceBox{X: 10, Y: 20, Width: 100, Height: 120}, record.FaceBox)
	assert.Equal(t, 640, record.ImageWidth)
	assert.Equal(t, 480, record.ImageHeight)
	assert.Equal(t, 68, record.LandmarkCount)
	assert.Equal(t, models.ExpressionHappy, record.Expression)
	assert.InDelta(t, 0.9, record.ExpressionProbability, 1e-9)
	assert.InDelta(t, 0.987, record.Confidence, 1e-9)
	assert.Equal(t, at, record.Timestamp)
	assert.NotEmpty(t, record.ID)

	decoded, err := jpeg.Decode(bytes.NewReader(record.Image))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 480), decoded.Bounds())

	last := log.Entries()[log.Len()-1]
	assert.Equal(t, models.SeveritySuccess, last.Severity)
	assert.Contains(t, last.Detail, "100x120")
	assert.Contains(t, last.Detail, "Size: 640x480")
	assert.Contains(t, last.Detail, "happy (90.0%)")
	assert.Contains(t, last.Detail, "Confidence: 98.7%")
	assert.Contains(t, last.Detail, "Base64: data:image/jpeg;base64,")
	assert.NotContains(t, last.Detail, record.DataURL())

	assert.True(t, board.State().ProceedEnabled)
	assert.Equal(t, record.DataURL(), board.State().Thumbnail)
	handoff.AssertExpectations(t)
}

func TestCaptureSnapshotFailure(t *testing.T) {
	g, board, log := newTestGate(t, models.LenientValidationConfig())
	g.Process(result(centeredFace(0.2, models.ExpressionNeutral, 0.9)))

	record, err := g.Capture(func() (image.Image, error) {
		return nil, errors.New("video not ready")
	})

	assert.Nil(t, record)
	assert.True(t, errors.Is(err, models.ErrSnapshot))
	assert.False(t, board.State().ProceedEnabled)
	assert.Equal(t, "video not ready", log.Entries()[log.Len()-1].Detail)
}

func TestCaptureDetailTruncatesPreviewOnly(t *testing.T) {
	r := &models.CaptureRecord{ImageWidth: 1, ImageHeight: 1}
	long := "data:image/jpeg;base64," + string(bytes.Repeat([]byte("A"), 200))

	detail := captureDetail(r, long, 50)
	assert.Contains(t, detail, "Base64: "+long[:50]+"...")
	assert.NotContains(t, detail, long[:51])
}
