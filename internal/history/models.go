package history

import "time"

// Entry is one handled event with its outcome.
type Entry struct {
	ID          string                 `bson:"_id" json:"id"`
	EventType   string                 `bson:"event_type" json:"event_type"`
	Category    string                 `bson:"category" json:"category"`
	Severity    string                 `bson:"severity" json:"severity"`
	Fingerprint string                 `bson:"fingerprint" json:"fingerprint"`
	Title       string                 `bson:"title" json:"title"`
	Status      string                 `bson:"status" json:"status"`
	Reason      string                 `bson:"reason,omitempty" json:"reason,omitempty"`
	Error       string                 `bson:"error,omitempty" json:"error,omitempty"`
	Attempts    int                    `bson:"attempts" json:"attempts"`
	Recipients  int                    `bson:"recipients" json:"recipients"`
	Delivered   int                    `bson:"delivered" json:"delivered"`
	Context     map[string]interface{} `bson:"context" json:"context"`
	OccurredAt  time.Time              `bson:"occurred_at" json:"occurred_at"`
	HandledAt   time.Time              `bson:"handled_at" json:"handled_at"`
}

type Filter struct {
	Status    string
	Category  string
	Severity  string
	EventType string
	Limit     int
}

type ListResponse struct {
	Items []Entry `json:"items"`
	Count int     `json:"count"`
}
