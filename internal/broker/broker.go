// Package broker moves dispatch jobs from the Dispatcher to the Listener
// workers, either through Kafka or through an in-process queue.
package broker

import (
	"context"
	"fmt"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/models"
)

// Producer enqueues a dispatch job. Publish returns once the job is durable
// for Kafka, or buffered for the memory broker.
type Producer interface {
	Publish(ctx context.Context, queue string, job models.AlertJob) error
	Close() error
}

// Consumer runs handler for every job of a queue on a pool of workers.
// Consume blocks until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, queue string, workers int, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc delivers one job. Errors marked fatal with retry.NewFatalError
// skip redelivery.
type HandlerFunc func(ctx context.Context, job models.AlertJob) error

// NewBroker returns a producer and consumer pair. For the memory broker both
// sides are the same instance.
func NewBroker(cfg config.BrokerConfig, log logger.Logger) (Producer, Consumer, error) {
	switch cfg.Type {
	case constants.BrokerTypeMemory:
		mem := NewMemoryBroker(cfg.Kafka.Retry, log)
		return mem, mem, nil
	case constants.BrokerTypeKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, fmt.Errorf("broker.kafka.brokers is required for the kafka broker")
		}
		return NewKafkaProducer(cfg.Kafka, log), NewKafkaConsumer(cfg.Kafka, log), nil
	}
	return nil, nil, fmt.Errorf("unknown broker type: %q", cfg.Type)
}
