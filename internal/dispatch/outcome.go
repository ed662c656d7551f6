package dispatch

type Status string

const (
	StatusDelivered  Status = "delivered"
	StatusSuppressed Status = "suppressed"
	StatusFailed     Status = "failed"
)

// Outcome reasons.
const (
	ReasonMuted              = "muted"
	ReasonRateLimited        = "rate_limited"
	ReasonDuplicate          = "duplicate"
	ReasonNoRecipients       = "no_recipients"
	ReasonStoreUnavailable   = "store_unavailable"
	ReasonRecipientsFailed   = "recipients_unavailable"
	ReasonRetriesExhausted   = "retries_exhausted"
	ReasonDeadlineExceeded   = "deadline_exceeded"
	ReasonInterrupted        = "interrupted"
	ReasonPartiallyDelivered = "partially_delivered"
)

// Outcome is the result of handling one event. Suppression is a normal
// result, not an error.
type Outcome struct {
	Status     Status
	Reason     string
	Err        error
	Attempts   int
	Recipients int
	Delivered  int
}

// Admitted reports whether the event got past the rate-limit check and
// claimed its window.
func (o Outcome) Admitted() bool {
	return o.Attempts > 0
}

// Retryable reports failures worth redelivering: those that happened before
// the event was admitted, and interrupted deliveries, whose window is
// released before the listener returns.
func (o Outcome) Retryable() bool {
	if o.Status != StatusFailed {
		return false
	}
	if o.Reason == ReasonInterrupted {
		return true
	}
	return !o.Admitted() &&
		(o.Reason == ReasonStoreUnavailable || o.Reason == ReasonRecipientsFailed)
}
