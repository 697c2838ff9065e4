package vision

import (
	"image"
	"testing"

	"selfie-capture-kiosk/models"

	"github.com/stretchr/testify/assert"
)

func TestRectOfRoundsBox(t *testing.T) {
	r := rectOf(models.BoundingBox{X: 10.4, Y: 19.6, Width: 99.5, Height: 120.2})
	assert.Equal(t, image.Rect(10, 20, 110, 140), r)
}

func TestBoxColorFor(t *testing.T) {
	assert.Equal(t, colorSingle, boxColorFor(0))
	assert.Equal(t, colorSingle, boxColorFor(1))
	assert.Equal(t, colorMultiple, boxColorFor(2))
}

func TestScoreLabel(t *testing.T) {
	face := models.FaceObservation{
		Score:       0.934,
		Expressions: models.Expressions{models.ExpressionHappy: 0.8, models.ExpressionNeutral: 0.2},
	}
	assert.Equal(t, "93% happy", scoreLabel(face))
	assert.Equal(t, "50%", scoreLabel(models.FaceObservation{Score: 0.5}))
}

func TestLabelOrigin(t *testing.T) {
	assert.Equal(t, image.Pt(40, 94), labelOrigin(image.Rect(40, 100, 140, 200)))
	assert.Equal(t, image.Pt(40, 21), labelOrigin(image.Rect(40, 5, 140, 200)))
}
