package gate

import (
	"math"

	"selfie-capture-kiosk/models"
)

// ============================================================
// VERDICTS
// ============================================================

type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictNoFace
	VerdictMultipleFaces
	VerdictTooSmall
	VerdictOffCenter
	VerdictExpression
)

var verdictMessages = map[Verdict]string{
	VerdictAccepted:      "valid face",
	VerdictNoFace:        "no face",
	VerdictMultipleFaces: "multiple faces",
	VerdictTooSmall:      "face too small/far",
	VerdictOffCenter:     "face not centered",
	VerdictExpression:    "expression not allowed",
}

func (v Verdict) Message() string {
	if msg, ok := verdictMessages[v]; ok {
		return msg
	}
	return "unknown"
}

func (v Verdict) String() string {
	return v.Message()
}

func (v Verdict) Accepted() bool {
	return v == VerdictAccepted
}

// ============================================================
// ACCEPTANCE PREDICATE
// ============================================================

// Judgement is the outcome of evaluating one frame.
type Judgement struct {
	Verdict   Verdict
	Face      *models.FaceObservation
	FaceRatio float64
}

// Evaluate applies the acceptance predicate to one detection result. It is
// pure: no state, no side effects.
func Evaluate(cfg models.ValidationConfig, result models.DetectionResult) Judgement {
	switch len(result.Faces) {
	case 0:
		return Judgement{Verdict: VerdictNoFace}
	case 1:
	default:
		return Judgement{Verdict: VerdictMultipleFaces}
	}

	face := result.Faces[0]
	j := Judgement{Face: &face}

	frameArea := float64(result.FrameWidth) * float64(result.FrameHeight)
	if frameArea > 0 {
		j.FaceRatio = face.Box.Area() / frameArea
	}
	if j.FaceRatio <= cfg.MinCoverage {
		j.Verdict = VerdictTooSmall
		return j
	}

	if cfg.Strictness != models.StrictnessStrict {
		j.Verdict = VerdictAccepted
		return j
	}

	if !isCentered(face.Box, result.FrameWidth, result.FrameHeight, cfg.CenterTolerance) {
		j.Verdict = VerdictOffCenter
		return j
	}

	if dominant, ok := face.Expressions.Dominant(); ok {
		if isDisallowed(cfg.DisallowedExpressions, dominant.Expression) && dominant.Probability > cfg.ExpressionCeiling {
			j.Verdict = VerdictExpression
			return j
		}
	}

	j.Verdict = VerdictAccepted
	return j
}

// isCentered requires the box center to sit strictly inside a band of
// tolerance*dimension around the frame center on both axes.
func isCentered(box models.BoundingBox, frameW, frameH int, tolerance float64) bool {
	c := box.Center()
	w, h := float64(frameW), float64(frameH)
	return math.Abs(c.X-w/2) < w*tolerance &&
		math.Abs(c.Y-h/2) < h*tolerance
}

func isDisallowed(set []models.Expression, e models.Expression) bool {
	for _, d := range set {
		if d == e {
			return true
		}
	}
	return false
}
