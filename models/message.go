package models

// ============================================================
// WEBSOCKET MESSAGE TYPES
// ============================================================

// Signalling between the server and a browser camera.
const (
	MsgCameraRequest = "camera_request"
	MsgOffer         = "offer"
	MsgAnswer        = "answer"
	MsgCandidate     = "candidate"
	MsgCameraError   = "camera_error"
	MsgQuit          = "quit"
)

// Commands sent by a UI client.
const (
	MsgStart    = "start"
	MsgCapture  = "capture"
	MsgClearLog = "clear_log"
	MsgProceed  = "proceed"
	MsgBack     = "back"
	MsgStop     = "stop"
)

// Events pushed to UI clients.
const (
	MsgUIState     = "ui_state"
	MsgLogSnapshot = "log_snapshot"
	MsgLogAppend   = "log_append"
	MsgLogClear    = "log_clear"
	MsgCaptured    = "captured"
	MsgError       = "error"
)

// InboundMessage is what clients send. Data carries signalling payloads
// verbatim (SDP JSON, possibly gzip+base64, or an error text).
type InboundMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// OutboundMessage is what the server pushes.
type OutboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
	Time int64       `json:"ts"`
}

// CameraRequest asks a browser to share its camera.
type CameraRequest struct {
	FacingMode  string `json:"facingMode"`
	IdealWidth  int    `json:"idealWidth"`
	IdealHeight int    `json:"idealHeight"`
}
