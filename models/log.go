package models

import "time"

// ============================================================
// LOG PANEL
// ============================================================

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

type LogEntry struct {
	Seq      uint64    `json:"seq"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	Time     time.Time `json:"time"`
}

// Clock formats the entry time the way the log panel shows it.
func (e LogEntry) Clock() string {
	return e.Time.Format("15:04:05")
}
