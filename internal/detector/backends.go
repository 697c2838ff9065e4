package detector

import (
	"fmt"
	"image"

	"selfie-capture-kiosk/models"

	"gocv.io/x/gocv"
)

// ============================================================
// YUNET
// ============================================================

// yunetCols is the row width of FaceDetectorYN output: box (4), five
// landmarks (10) and the score.
const yunetCols = 15

type yunetBackend struct {
	det  gocv.FaceDetectorYN
	size image.Point
}

func newYuNetBackend(path string, threshold float32) *yunetBackend {
	size := image.Pt(320, 320)
	det := gocv.NewFaceDetectorYN(path, "", size)
	if threshold > 0 {
		det.SetScoreThreshold(threshold)
	}
	return &yunetBackend{det: det, size: size}
}

func (b *yunetBackend) name() string { return models.DetectorBackendYuNet }

func (b *yunetBackend) detect(img gocv.Mat) []models.FaceObservation {
	sz := image.Pt(img.Cols(), img.Rows())
	if sz != b.size {
		b.det.SetInputSize(sz)
		b.size = sz
	}

	faces := gocv.NewMat()
	defer faces.Close()
	b.det.Detect(img, &faces)

	if faces.Empty() || faces.Cols() < yunetCols {
		return nil
	}
	out := make([]models.FaceObservation, 0, faces.Rows())
	row := make([]float32, yunetCols)
	for r := 0; r < faces.Rows(); r++ {
		for c := range row {
			row[c] = faces.GetFloatAt(r, c)
		}
		out = append(out, faceFromYuNetRow(row))
	}
	return out
}

func (b *yunetBackend) Close() {
	b.det.Close()
}

func faceFromYuNetRow(row []float32) models.FaceObservation {
	face := models.FaceObservation{
		Box: models.BoundingBox{
			X:      float64(row[0]),
			Y:      float64(row[1]),
			Width:  float64(row[2]),
			Height: float64(row[3]),
		},
		Score: clamp01(float64(row[14])),
	}
	face.Landmarks = make([]models.Point, 0, 5)
	for i := 4; i < 14; i += 2 {
		face.Landmarks = append(face.Landmarks, models.Point{X: float64(row[i]), Y: float64(row[i+1])})
	}
	return face
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ============================================================
// HAAR CASCADE
// ============================================================

// haarBackend has no landmarks and no score; every hit scores 1.
type haarBackend struct {
	classifier gocv.CascadeClassifier
	minSize    int
}

func newHaarBackend(path string, minSize int) (*haarBackend, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade classifier %s", path)
	}
	return &haarBackend{classifier: classifier, minSize: minSize}, nil
}

func (b *haarBackend) name() string { return models.DetectorBackendHaar }

func (b *haarBackend) detect(img gocv.Mat) []models.FaceObservation {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	rects := filterMinSize(b.classifier.DetectMultiScale(gray), b.minSize)
	out := make([]models.FaceObservation, 0, len(rects))
	for _, r := range rects {
		out = append(out, models.FaceObservation{
			Box: models.BoundingBox{
				X:      float64(r.Min.X),
				Y:      float64(r.Min.Y),
				Width:  float64(r.Dx()),
				Height: float64(r.Dy()),
			},
			Score: 1,
		})
	}
	return out
}

func (b *haarBackend) Close() {
	b.classifier.Close()
}

func filterMinSize(rects []image.Rectangle, minSize int) []image.Rectangle {
	out := rects[:0:0]
	for _, r := range rects {
		if r.Dx() >= minSize && r.Dy() >= minSize {
			out = append(out, r)
		}
	}
	return out
}
