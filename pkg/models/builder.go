package models

import (
	"encoding/json"
	"time"
)

type AlertJobBuilder struct {
	job *AlertJob
}

func NewAlertJobBuilder() *AlertJobBuilder {
	return &AlertJobBuilder{job: &AlertJob{}}
}

func (b *AlertJobBuilder) WithID(id string) *AlertJobBuilder {
	b.job.ID = id
	return b
}

func (b *AlertJobBuilder) WithQueue(queue string) *AlertJobBuilder {
	b.job.Queue = queue
	return b
}

func (b *AlertJobBuilder) WithSource(source string) *AlertJobBuilder {
	b.job.Source = source
	return b
}

func (b *AlertJobBuilder) WithEnqueuedAt(t time.Time) *AlertJobBuilder {
	b.job.EnqueuedAt = t
	return b
}

func (b *AlertJobBuilder) WithEvent(event []byte) *AlertJobBuilder {
	b.job.Event = json.RawMessage(event)
	return b
}

func (b *AlertJobBuilder) WithTraceID(traceID string) *AlertJobBuilder {
	b.job.Metadata.TraceID = traceID
	return b
}

func (b *AlertJobBuilder) Build() *AlertJob {
	if b.job.EnqueuedAt.IsZero() {
		b.job.EnqueuedAt = time.Now()
	}
	return b.job
}
