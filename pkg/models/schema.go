package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateAlertJob(job *AlertJob) error {
	if job == nil {
		return &ValidationError{Field: "job", Message: "alert job cannot be nil"}
	}

	if job.ID == "" {
		return &ValidationError{Field: "id", Message: "job ID is required"}
	}

	if job.Queue == "" {
		return &ValidationError{Field: "queue", Message: "job queue is required"}
	}

	if job.EnqueuedAt.IsZero() {
		return &ValidationError{Field: "enqueued_at", Message: "enqueue timestamp is required"}
	}

	if len(job.Event) == 0 {
		return &ValidationError{Field: "event", Message: "encoded event is required"}
	}

	return nil
}
