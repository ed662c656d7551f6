package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/logging"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/models"
	"bizpulse/pkg/retry"
	"bizpulse/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: "unknown"}
}

func (p *KafkaProducer) SetServiceName(name string) {
	p.serviceName = name
}

// Publish writes job to the topic named after its queue. Jobs are keyed by ID.
func (p *KafkaProducer) Publish(ctx context.Context, queue string, job models.AlertJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	headers := tracing.InjectTraceContext(ctx, nil)

	start := time.Now()
	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   queue,
			Key:     []byte(job.ID),
			Value:   body,
			Headers: headers,
			Time:    time.Now(),
		},
	)
	metrics.ObserveKafkaWriteDuration(p.serviceName, queue, time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, queue)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	mu          sync.Mutex
	readers     []*kafka.Reader
	logger      logger.Logger
	dlqProducer *KafkaProducer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
	if c.dlqProducer != nil {
		c.dlqProducer.SetServiceName(name)
	}
}

// Consume starts one group reader per worker; the group balances the
// queue's partitions across them.
func (c *KafkaConsumer) Consume(ctx context.Context, queue string, workers int, handler HandlerFunc) error {
	if workers < 1 {
		workers = 1
	}

	c.logger.Infow("Creating Kafka readers",
		"queue", queue,
		"workers", workers,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    queue,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
		c.mu.Lock()
		c.readers = append(c.readers, reader)
		c.mu.Unlock()

		g.Go(func() error {
			c.readLoop(gctx, reader, queue, handler)
			return nil
		})
	}

	_ = g.Wait()
	return ctx.Err()
}

func (c *KafkaConsumer) readLoop(ctx context.Context, reader *kafka.Reader, queue string, handler HandlerFunc) {
	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming", "queue", queue)

	policy := retryPolicy(c.cfg.Retry)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"queue", queue,
					"reason", "context canceled",
				)
				return
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"queue", queue,
			)
			time.Sleep(time.Second)
			continue
		}
		metrics.IncKafkaMessagesRead(c.serviceName, queue)

		var job models.AlertJob
		if err := json.Unmarshal(m.Value, &job); err != nil {
			c.logger.ErrorwCtx(consumeCtx, "Failed to unmarshal job",
				"error", err,
				"queue", queue,
			)
			_ = reader.CommitMessages(ctx, m)
			continue
		}

		c.handleMessage(ctx, reader, m, job, queue, policy, handler)
	}
}

func (c *KafkaConsumer) handleMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message, job models.AlertJob, queue string, policy retry.Policy, handler HandlerFunc) {
	msgCtx, span := tracing.StartConsumeSpan(ctx, m)
	defer span.End()

	if job.Metadata.TraceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, job.Metadata.TraceID)
	}
	msgCtx = logging.WithJobID(msgCtx, job.ID)
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	if err := handleWithRetry(msgCtx, c.logger, policy, c.serviceName, job, handler); err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-job: leave the offset uncommitted so the job is redelivered.
			return
		}
		c.logger.ErrorwCtx(msgCtx, "Failed to handle job after retries",
			"error", err,
			"queue", queue,
		)
		if c.dlqProducer != nil {
			if dlqErr := c.sendToDLQ(msgCtx, job, err, queue); dlqErr != nil {
				c.logger.ErrorwCtx(msgCtx, "Failed to send job to DLQ",
					"error", dlqErr,
					"queue", queue,
				)
			}
		} else {
			c.logger.WarnwCtx(msgCtx, "No DLQ configured, committing job to avoid blocking",
				"queue", queue,
			)
		}
	}

	if err := reader.CommitMessages(ctx, m); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
			"error", err,
			"queue", queue,
		)
	}
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	readers := c.readers
	c.readers = nil
	c.mu.Unlock()

	var err error
	for _, r := range readers {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, job models.AlertJob, originalErr error, sourceQueue string) error {
	job.Metadata.DeadLetter = &models.DeadLetterInfo{
		Reason:      originalErr.Error(),
		SourceQueue: sourceQueue,
		ParkedAt:    time.Now(),
	}

	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, job); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceQueue, "max_retries_exceeded").Inc()
	c.logger.InfowCtx(ctx, "Job sent to DLQ",
		"source_queue", sourceQueue,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", originalErr.Error(),
	)
	return nil
}
