package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bizpulse/internal/alert"
	"bizpulse/internal/dispatch"
)

// Recorder stores every listener outcome.
type Recorder struct {
	repo Repository
	now  func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, e alert.Event, out dispatch.Outcome) error {
	entry := Entry{
		ID:          uuid.NewString(),
		EventType:   e.Type(),
		Category:    string(e.Category()),
		Severity:    string(e.Severity()),
		Fingerprint: e.Fingerprint(),
		Title:       e.Title(),
		Status:      string(out.Status),
		Reason:      out.Reason,
		Attempts:    out.Attempts,
		Recipients:  out.Recipients,
		Delivered:   out.Delivered,
		Context:     alert.SanitizeContext(e.Context()),
		OccurredAt:  e.OccurredAt(),
		HandledAt:   r.now().UTC(),
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	return r.repo.Insert(ctx, entry)
}
