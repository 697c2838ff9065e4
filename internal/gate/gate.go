package gate

import (
	"sync"
	"time"

	"selfie-capture-kiosk/models"

	"github.com/google/uuid"
)

// ============================================================
// COLLABORATORS
// ============================================================

// Controls is the part of the UI the gate drives.
type Controls interface {
	SetStatus(text string, indicator models.Indicator)
	SetCaptureEnabled(enabled bool)
	SetProceedEnabled(enabled bool)
	SetThumbnail(dataURL string)
}

// Logger is the log panel sink.
type Logger interface {
	Success(message string, detail ...string) models.LogEntry
	Error(message string, detail ...string) models.LogEntry
}

// Handoff receives every emitted record. Ownership passes with the call.
type Handoff interface {
	Deliver(record *models.CaptureRecord)
}

// ============================================================
// STATE
// ============================================================

type State int

const (
	StateInvalid State = iota
	StateValid
)

func (s State) String() string {
	if s == StateValid {
		return "valid"
	}
	return "invalid"
}

// ValidityState is mutated only by Gate.Process. LastAcceptedFace survives
// the fall back to invalid so a late capture still has context.
type ValidityState struct {
	IsValid          bool
	LastAcceptedFace *models.FaceObservation
}

// Transition describes what one processed frame did to the gate.
type Transition struct {
	From      State
	To        State
	Judgement Judgement
}

func (t Transition) Changed() bool {
	return t.From != t.To
}

// ============================================================
// GATE
// ============================================================

type Gate struct {
	mu         sync.Mutex
	validation models.ValidationConfig
	capture    models.CaptureConfig
	state      ValidityState
	controls   Controls
	log        Logger
	handoff    Handoff
	now        func() time.Time
	newID      func() string
}

func New(validation models.ValidationConfig, capture models.CaptureConfig, controls Controls, log Logger) *Gate {
	return &Gate{
		validation: validation,
		capture:    capture,
		controls:   controls,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithHandoff sets the downstream collaborator for emitted records.
func (g *Gate) WithHandoff(h Handoff) *Gate {
	g.handoff = h
	return g
}

// WithClock overrides the record timestamp source (tests).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// State returns a copy of the current validity state.
func (g *Gate) State() ValidityState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state
	if s.LastAcceptedFace != nil {
		s.LastAcceptedFace = cloneFace(*s.LastAcceptedFace)
	}
	return s
}

// Process judges one frame and applies the resulting transition. Frames must
// be fed in order, one at a time.
func (g *Gate) Process(result models.DetectionResult) Transition {
	j := Evaluate(g.validation, result)

	g.mu.Lock()
	defer g.mu.Unlock()

	t := Transition{From: stateOf(g.state.IsValid), Judgement: j}

	switch {
	case j.Verdict.Accepted() && !g.state.IsValid:
		g.state.IsValid = true
		g.state.LastAcceptedFace = cloneFace(*j.Face)
		g.controls.SetCaptureEnabled(true)
		g.controls.SetStatus(j.Verdict.Message(), models.IndicatorActive)
		g.log.Success("Valid face detected", "Expression and position OK")

	case j.Verdict.Accepted():
		g.controls.SetStatus(j.Verdict.Message(), models.IndicatorActive)

	case g.state.IsValid:
		g.state.IsValid = false
		g.controls.SetCaptureEnabled(false)
		g.controls.SetStatus(j.Verdict.Message(), indicatorFor(j.Verdict))

	default:
		g.controls.SetStatus(j.Verdict.Message(), indicatorFor(j.Verdict))
	}

	t.To = stateOf(g.state.IsValid)
	return t
}

// Reset returns the gate to its initial state, dropping the last face.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = ValidityState{}
	g.controls.SetCaptureEnabled(false)
}

func stateOf(valid bool) State {
	if valid {
		return StateValid
	}
	return StateInvalid
}

func indicatorFor(v Verdict) models.Indicator {
	if v == VerdictMultipleFaces {
		return models.IndicatorError
	}
	return models.IndicatorIdle
}

func cloneFace(f models.FaceObservation) *models.FaceObservation {
	out := f
	if f.Landmarks != nil {
		out.Landmarks = make([]models.Point, len(f.Landmarks))
		copy(out.Landmarks, f.Landmarks)
	}
	if f.Expressions != nil {
		out.Expressions = make(models.Expressions, len(f.Expressions))
		for k, v := range f.Expressions {
			out.Expressions[k] = v
		}
	}
	return &out
}
