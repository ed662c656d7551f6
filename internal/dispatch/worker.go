package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bizpulse/internal/alert"
	"bizpulse/internal/broker"
	"bizpulse/internal/config"
	"bizpulse/internal/logger"
	"bizpulse/pkg/logging"
	"bizpulse/pkg/models"
	"bizpulse/pkg/retry"
)

// Worker consumes every alert queue and hands decoded events to the
// listener. Queue pools are sized by severity tier.
type Worker struct {
	consumer broker.Consumer
	listener *Listener
	workers  config.WorkersConfig
	logger   logger.Logger
}

func NewWorker(consumer broker.Consumer, listener *Listener, workers config.WorkersConfig, log logger.Logger) *Worker {
	return &Worker{consumer: consumer, listener: listener, workers: workers, logger: log}
}

func (w *Worker) poolSize(tier string) int {
	var n int
	switch tier {
	case "critical":
		n = w.workers.Critical
	case "high":
		n = w.workers.High
	case "default":
		n = w.workers.Default
	case "low":
		n = w.workers.Low
	}
	if n <= 0 {
		n = 1
	}
	return n
}

// Run blocks until ctx is done or a queue consumer fails.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range alert.AllQueues() {
		workers := w.poolSize(q.Tier)
		g.Go(func() error {
			w.logger.Infow("Consuming alert queue", "queue", q.Name, "workers", workers)
			if err := w.consumer.Consume(ctx, q.Name, workers, w.HandleJob); err != nil {
				return fmt.Errorf("consumer for %s stopped: %w", q.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// HandleJob decodes and delivers one job. Undecodable jobs are fatal so the
// broker parks them without retrying. Failures that happened before the
// event claimed its rate-limit window, and deliveries cut short by
// cancellation, are returned for redelivery.
func (w *Worker) HandleJob(ctx context.Context, job models.AlertJob) error {
	ctx = logging.WithJobID(ctx, job.ID)
	if job.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, job.Metadata.TraceID)
	}

	if err := models.ValidateAlertJob(&job); err != nil {
		return retry.NewFatalError(err)
	}
	event, err := alert.Decode(job.Event)
	if err != nil {
		w.logger.ErrorwCtx(ctx, "Failed to decode alert job", "queue", job.Queue, "error", err)
		return retry.NewFatalError(err)
	}

	out := w.listener.Handle(ctx, event, job.EnqueuedAt)
	if out.Retryable() {
		return out.Err
	}
	return nil
}
