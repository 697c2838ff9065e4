package gate

import (
	"log"

	"selfie-capture-kiosk/models"
)

// DebugHandoff stands in for the registration backend: it only prints the
// biometric summary on the debug channel.
type DebugHandoff struct {
	Verbose bool
}

func (h DebugHandoff) Deliver(record *models.CaptureRecord) {
	if !h.Verbose || record == nil {
		return
	}
	log.Printf("🐛 Biometric data: id=%s box=%+v landmarks=%d expression=%s(%.2f) confidence=%.3f bytes=%d",
		record.ID, record.FaceBox, record.LandmarkCount, record.Expression,
		record.ExpressionProbability, record.Confidence, len(record.Image))
}
