package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bizpulse/internal/config"
	"bizpulse/internal/logger"
	"bizpulse/pkg/logging"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/models"
)

const memoryQueueBuffer = 1024

var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker is an in-process Producer and Consumer backed by buffered
// channels, one per queue.
type MemoryBroker struct {
	mu          sync.Mutex
	queues      map[string]chan models.AlertJob
	closed      bool
	retry       config.RetryConfig
	logger      logger.Logger
	serviceName string

	deadMu sync.Mutex
	dead   []models.AlertJob
}

func NewMemoryBroker(retryCfg config.RetryConfig, log logger.Logger) *MemoryBroker {
	return &MemoryBroker{
		queues:      make(map[string]chan models.AlertJob),
		retry:       retryCfg,
		logger:      log,
		serviceName: "unknown",
	}
}

func (b *MemoryBroker) SetServiceName(name string) {
	b.serviceName = name
}

func (b *MemoryBroker) queue(name string) (chan models.AlertJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan models.AlertJob, memoryQueueBuffer)
		b.queues[name] = ch
	}
	return ch, nil
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, job models.AlertJob) error {
	ch, err := b.queue(queue)
	if err != nil {
		return err
	}

	select {
	case ch <- job:
		metrics.SetMessageQueueSize(queue, len(ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, queue string, workers int, handler HandlerFunc) error {
	ch, err := b.queue(queue)
	if err != nil {
		return err
	}
	if workers < 1 {
		workers = 1
	}

	policy := retryPolicy(b.retry)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-ch:
					metrics.SetMessageQueueSize(queue, len(ch))
					metrics.ObserveMessageQueueWaitDuration(queue, time.Since(job.EnqueuedAt))

					jobCtx := logging.WithJobID(logging.WithServiceName(gctx, b.serviceName), job.ID)
					if job.Metadata.TraceID != "" {
						jobCtx = logging.WithTraceID(jobCtx, job.Metadata.TraceID)
					}
					if err := handleWithRetry(jobCtx, b.logger, policy, b.serviceName, job, handler); err != nil {
						b.park(jobCtx, job, err, queue)
					}
				}
			}
		})
	}

	_ = g.Wait()
	return ctx.Err()
}

func (b *MemoryBroker) park(ctx context.Context, job models.AlertJob, err error, queue string) {
	job.Metadata.DeadLetter = &models.DeadLetterInfo{
		Reason:      err.Error(),
		SourceQueue: queue,
		ParkedAt:    time.Now(),
	}

	b.deadMu.Lock()
	b.dead = append(b.dead, job)
	b.deadMu.Unlock()

	metrics.DLQMessagesTotal.WithLabelValues(b.serviceName, queue, "max_retries_exceeded").Inc()
	b.logger.ErrorwCtx(ctx, "Failed to handle job after retries, parked in memory DLQ",
		"error", err,
		"queue", queue,
	)
}

// DeadLetters returns a copy of the parked jobs.
func (b *MemoryBroker) DeadLetters() []models.AlertJob {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	return append([]models.AlertJob(nil), b.dead...)
}

// Close rejects further publishes. Jobs still buffered are dropped.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
