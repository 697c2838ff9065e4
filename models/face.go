package models

import (
	"math"
	"sort"
)

// ============================================================
// FACE GEOMETRY
// ============================================================

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// BoundingBox is expressed in pixels of the frame it was detected in.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FaceBox is a BoundingBox rounded to whole pixels.
type FaceBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Rounded rounds every field half away from zero.
func (b BoundingBox) Rounded() FaceBox {
	return FaceBox{
		X:      int(math.Round(b.X)),
		Y:      int(math.Round(b.Y)),
		Width:  int(math.Round(b.Width)),
		Height: int(math.Round(b.Height)),
	}
}

// ============================================================
// EXPRESSIONS
// ============================================================

type Expression string

const (
	ExpressionNeutral   Expression = "neutral"
	ExpressionHappy     Expression = "happy"
	ExpressionSad       Expression = "sad"
	ExpressionAngry     Expression = "angry"
	ExpressionDisgusted Expression = "disgusted"
	ExpressionFearful   Expression = "fearful"
	ExpressionSurprised Expression = "surprised"
	ExpressionContempt  Expression = "contempt"
)

// ExpressionPriority breaks probability ties when picking the dominant
// expression: earlier labels win.
var ExpressionPriority = []Expression{
	ExpressionNeutral,
	ExpressionHappy,
	ExpressionSurprised,
	ExpressionSad,
	ExpressionContempt,
	ExpressionFearful,
	ExpressionDisgusted,
	ExpressionAngry,
}

func expressionRank(e Expression) int {
	for i, p := range ExpressionPriority {
		if p == e {
			return i
		}
	}
	return len(ExpressionPriority)
}

// Expressions maps an expression label to its probability.
type Expressions map[Expression]float64

// ExpressionScore is one entry of a sorted Expressions map.
type ExpressionScore struct {
	Expression  Expression `json:"expression"`
	Probability float64    `json:"probability"`
}

// Sorted returns the scores by descending probability, ties broken by
// ExpressionPriority and then by label.
func (e Expressions) Sorted() []ExpressionScore {
	out := make([]ExpressionScore, 0, len(e))
	for label, p := range e {
		out = append(out, ExpressionScore{Expression: label, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		ri, rj := expressionRank(out[i].Expression), expressionRank(out[j].Expression)
		if ri != rj {
			return ri < rj
		}
		return out[i].Expression < out[j].Expression
	})
	return out
}

// Dominant returns the highest-probability expression. ok is false for an
// empty map.
func (e Expressions) Dominant() (ExpressionScore, bool) {
	sorted := e.Sorted()
	if len(sorted) == 0 {
		return ExpressionScore{}, false
	}
	return sorted[0], true
}

// ============================================================
// DETECTION
// ============================================================

// FaceObservation is one detected face in a single frame.
type FaceObservation struct {
	Box         BoundingBox `json:"box"`
	Landmarks   []Point     `json:"landmarks"`
	Expressions Expressions `json:"expressions"`
	Score       float64     `json:"score"`
}

// DetectionResult holds every face found in one frame. Lifetime is one tick.
type DetectionResult struct {
	FrameWidth  int               `json:"frameWidth"`
	FrameHeight int               `json:"frameHeight"`
	Faces       []FaceObservation `json:"faces"`
}
