package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bizpulse/internal/alert"
	"bizpulse/internal/broker"
	"bizpulse/internal/logger"
	"bizpulse/pkg/logging"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/models"
)

// Dispatcher enqueues events on their {category}-{severity}-alerts queue.
// Observers call it in-process; delivery happens in the worker.
type Dispatcher struct {
	producer broker.Producer
	source   string
	now      func() time.Time
	logger   logger.Logger
}

func NewDispatcher(producer broker.Producer, source string, log logger.Logger) *Dispatcher {
	return &Dispatcher{producer: producer, source: source, now: time.Now, logger: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, e alert.Event) error {
	queue := alert.QueueFor(e)

	body, err := alert.Encode(e)
	if err != nil {
		metrics.AlertsDispatchedTotal.WithLabelValues(queue, "error").Inc()
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	job := models.NewAlertJobBuilder().
		WithID(uuid.NewString()).
		WithQueue(queue).
		WithSource(d.source).
		WithEnqueuedAt(d.now()).
		WithEvent(body).
		WithTraceID(logging.GetTraceID(ctx)).
		Build()

	if err := d.producer.Publish(ctx, queue, *job); err != nil {
		metrics.AlertsDispatchedTotal.WithLabelValues(queue, "error").Inc()
		d.logger.ErrorwCtx(ctx, "Failed to enqueue alert",
			"event_type", e.Type(),
			"queue", queue,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue alert on %s: %w", queue, err)
	}

	metrics.AlertsDispatchedTotal.WithLabelValues(queue, "success").Inc()
	d.logger.DebugwCtx(ctx, "Alert enqueued",
		"event_type", e.Type(),
		"severity", string(e.Severity()),
		"queue", queue,
		"job_id", job.ID,
	)
	return nil
}
