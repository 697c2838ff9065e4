package detector

import (
	"fmt"
	"image"
	"math"

	"selfie-capture-kiosk/models"

	"gocv.io/x/gocv"
)

// ============================================================
// EXPRESSION NET (FER+)
// ============================================================

const ferInputSize = 64

// ferLabels is the output order of the FER+ ONNX model.
var ferLabels = []models.Expression{
	models.ExpressionNeutral,   // neutral
	models.ExpressionHappy,     // happiness
	models.ExpressionSurprised, // surprise
	models.ExpressionSad,       // sadness
	models.ExpressionAngry,     // anger
	models.ExpressionDisgusted, // disgust
	models.ExpressionFearful,   // fear
	models.ExpressionContempt,  // contempt
}

type expressionNet struct {
	net gocv.Net
}

func loadExpressionNet(path string) (*expressionNet, error) {
	net := gocv.ReadNet(path, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load expression model %s", path)
	}
	return &expressionNet{net: net}, nil
}

// classify scores the face inside box on a BGR frame.
func (e *expressionNet) classify(frame gocv.Mat, box image.Rectangle) (models.Expressions, error) {
	box = box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if box.Empty() {
		return neutralOnly(), nil
	}

	crop := frame.Region(box)
	defer crop.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(crop, &gray, gocv.ColorBGRToGray)

	blob := gocv.BlobFromImage(gray, 1.0, image.Pt(ferInputSize, ferInputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Total() < len(ferLabels) {
		return nil, fmt.Errorf("unexpected expression output size %d", out.Total())
	}
	logits := make([]float64, len(ferLabels))
	flat := out.Reshape(1, 1)
	defer flat.Close()
	for i := range logits {
		logits[i] = float64(flat.GetFloatAt(0, i))
	}
	return expressionsFromLogits(logits), nil
}

func (e *expressionNet) Close() {
	e.net.Close()
}

func expressionsFromLogits(logits []float64) models.Expressions {
	probs := softmax(logits)
	out := make(models.Expressions, len(probs))
	for i, p := range probs {
		if i < len(ferLabels) {
			out[ferLabels[i]] = p
		}
	}
	return out
}

func softmax(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	hi := v[0]
	for _, x := range v[1:] {
		if x > hi {
			hi = x
		}
	}
	out := make([]float64, len(v))
	var sum float64
	for i, x := range v {
		out[i] = math.Exp(x - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// neutralOnly stands in when no expression model is configured.
func neutralOnly() models.Expressions {
	return models.Expressions{models.ExpressionNeutral: 1}
}
