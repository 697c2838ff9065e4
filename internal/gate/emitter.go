package gate

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"selfie-capture-kiosk/models"

	xdraw "golang.org/x/image/draw"
)

// Snapshotter returns the current video frame at native resolution.
type Snapshotter func() (image.Image, error)

// Capture freezes the current frame together with the last accepted face.
// It fails with ErrNoValidFace unless the gate is valid right now.
func (g *Gate) Capture(snapshot Snapshotter) (*models.CaptureRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.IsValid || g.state.LastAcceptedFace == nil {
		g.log.Error("Capture attempt failed", "No valid face detected")
		return nil, models.ErrNoValidFace
	}

	frame, err := snapshot()
	if err == nil && frame == nil {
		err = fmt.Errorf("no frame available")
	}
	if err != nil {
		g.log.Error("Capture failed", err.Error())
		return nil, models.NewError(models.KindSnapshot, "capture", err)
	}

	raster := copyRaster(frame)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, raster, &jpeg.Options{Quality: g.capture.JPEGQuality}); err != nil {
		g.log.Error("Capture failed", err.Error())
		return nil, models.NewError(models.KindSnapshot, "encode", err)
	}

	record := g.buildRecord(buf.Bytes(), raster.Bounds(), g.state.LastAcceptedFace)
	dataURL := record.DataURL()

	g.log.Success("Image captured and biometric data extracted", captureDetail(record, dataURL, g.capture.PreviewLength))
	g.controls.SetThumbnail(dataURL)
	g.controls.SetProceedEnabled(true)

	if g.handoff != nil {
		g.handoff.Deliver(record)
	}
	return record, nil
}

// copyRaster draws the frame into a freshly allocated buffer of the same
// size, anchored at the origin.
func copyRaster(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Point{}, src, b, xdraw.Src, nil)
	return dst
}

func (g *Gate) buildRecord(encoded []byte, bounds image.Rectangle, face *models.FaceObservation) *models.CaptureRecord {
	f := cloneFace(*face)
	record := &models.CaptureRecord{
		ID:            g.newID(),
		Timestamp:     g.now(),
		Image:         encoded,
		ImageWidth:    bounds.Dx(),
		ImageHeight:   bounds.Dy(),
		FaceBox:       f.Box.Rounded(),
		Landmarks:     f.Landmarks,
		LandmarkCount: len(f.Landmarks),
		Expressions:   f.Expressions,
		Confidence:    f.Score,
	}
	if dominant, ok := f.Expressions.Dominant(); ok {
		record.Expression = dominant.Expression
		record.ExpressionProbability = dominant.Probability
	}
	return record
}

// captureDetail renders the human-readable log detail. The payload preview
// is truncated for display only.
func captureDetail(r *models.CaptureRecord, dataURL string, previewLen int) string {
	preview := dataURL
	if previewLen > 0 && len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}

	lines := []string{
		fmt.Sprintf("Size: %dx%d", r.ImageWidth, r.ImageHeight),
		fmt.Sprintf("Face: %dx%d", r.FaceBox.Width, r.FaceBox.Height),
		fmt.Sprintf("Landmarks: %d", r.LandmarkCount),
		fmt.Sprintf("Expression: %s (%.1f%%)", r.Expression, r.ExpressionProbability*100),
		fmt.Sprintf("Confidence: %.1f%%", r.Confidence*100),
		fmt.Sprintf("Base64: %s", preview),
	}
	return strings.Join(lines, "\n")
}
