package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"selfie-capture-kiosk/models"

	"gocv.io/x/gocv"
)

// ============================================================
// OVERLAY CANVAS
// ============================================================

var (
	colorSingle   = color.RGBA{G: 255, A: 255}
	colorMultiple = color.RGBA{R: 255, G: 80, A: 255}
	colorLandmark = color.RGBA{R: 0, G: 200, B: 255, A: 255}
)

// Canvas is a transparent BGRA drawing surface sized to the native video
// resolution. Boxes and landmarks are redrawn every tick.
type Canvas struct {
	mu  sync.Mutex
	mat gocv.Mat
}

func NewCanvas() *Canvas {
	return &Canvas{mat: gocv.NewMat()}
}

func (c *Canvas) Resize(size image.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	c.mat.Close()
	c.mat = gocv.NewMatWithSize(size.Y, size.X, gocv.MatTypeCV8UC4)
	c.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

func (c *Canvas) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return image.Pt(c.mat.Cols(), c.mat.Rows())
}

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mat.Empty() {
		return
	}
	c.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

func (c *Canvas) Draw(result models.DetectionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mat.Empty() {
		return
	}

	boxColor := boxColorFor(len(result.Faces))
	for _, face := range result.Faces {
		r := rectOf(face.Box)
		gocv.Rectangle(&c.mat, r, boxColor, 2)
		for _, p := range face.Landmarks {
			gocv.Circle(&c.mat, image.Pt(int(math.Round(p.X)), int(math.Round(p.Y))), 2, colorLandmark, -1)
		}
		gocv.PutText(&c.mat, scoreLabel(face), labelOrigin(r), gocv.FontHersheySimplex, 0.5, boxColor, 1)
	}
}

// PNG encodes the current overlay, alpha included.
func (c *Canvas) PNG() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mat.Empty() {
		return nil, fmt.Errorf("overlay not sized yet")
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, c.mat)
	if err != nil {
		return nil, fmt.Errorf("IMEncode failed: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func (c *Canvas) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mat.Close()
}

// ============================================================
// HELPERS
// ============================================================

func rectOf(b models.BoundingBox) image.Rectangle {
	fb := b.Rounded()
	return image.Rect(fb.X, fb.Y, fb.X+fb.Width, fb.Y+fb.Height)
}

func boxColorFor(faces int) color.RGBA {
	if faces > 1 {
		return colorMultiple
	}
	return colorSingle
}

func scoreLabel(face models.FaceObservation) string {
	label := fmt.Sprintf("%.0f%%", face.Score*100)
	if d, ok := face.Expressions.Dominant(); ok {
		label = fmt.Sprintf("%s %s", label, d.Expression)
	}
	return label
}

// labelOrigin puts the label above the box, or inside it at the top edge.
func labelOrigin(r image.Rectangle) image.Point {
	y := r.Min.Y - 6
	if y < 12 {
		y = r.Min.Y + 16
	}
	return image.Pt(r.Min.X, y)
}
