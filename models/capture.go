package models

import (
	"encoding/base64"
	"time"
)

// ============================================================
// CAPTURE RECORD
// ============================================================

const JPEGMimeType = "image/jpeg"

// CaptureRecord is produced once per successful capture and never mutated
// afterwards.
type CaptureRecord struct {
	ID                    string      `json:"id"`
	Timestamp             time.Time   `json:"timestamp"`
	Image                 []byte      `json:"-"`
	ImageWidth            int         `json:"imageWidth"`
	ImageHeight           int         `json:"imageHeight"`
	FaceBox               FaceBox     `json:"faceBox"`
	Landmarks             []Point     `json:"faceLandmarks"`
	LandmarkCount         int         `json:"landmarkCount"`
	Expression            Expression  `json:"expression"`
	ExpressionProbability float64     `json:"expressionProbability"`
	Expressions           Expressions `json:"expressions"`
	Confidence            float64     `json:"confidence"`
}

// DataURL renders the encoded snapshot as a data URL.
func (r *CaptureRecord) DataURL() string {
	if r == nil {
		return ""
	}
	return "data:" + JPEGMimeType + ";base64," + base64.StdEncoding.EncodeToString(r.Image)
}
