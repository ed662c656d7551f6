package models

import (
	"encoding/json"
	"time"
)

// AlertJob is one queued alert: the encoded event plus pipeline metadata.
type AlertJob struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Source     string          `json:"source"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Event      json.RawMessage `json:"event"`
	Metadata   Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID string `json:"trace_id,omitempty"`
	// DeadLetter is set only on jobs parked in the DLQ.
	DeadLetter *DeadLetterInfo `json:"dead_letter,omitempty"`
}

type DeadLetterInfo struct {
	Reason      string    `json:"reason"`
	SourceQueue string    `json:"source_queue"`
	ParkedAt    time.Time `json:"parked_at"`
}
