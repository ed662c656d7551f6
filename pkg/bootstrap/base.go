// Package bootstrap holds the startup and shutdown sequence shared by
// alert-worker and notification-service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"bizpulse/internal/broker"
	"bizpulse/internal/config"
	"bizpulse/internal/logger"
	"bizpulse/pkg/tracing"
)

// Base is what every binary needs before it adds its own components:
// configuration, logging, stores, the dispatch job broker and tracing.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Stores   *Stores
	Producer broker.Producer
	Consumer broker.Consumer

	serviceName string
	tracer      *tracing.TracerProvider
}

func NewBase(cfg *config.Config, log logger.Logger, serviceName string) *Base {
	if sl, ok := log.(*logger.SugaredLogger); ok {
		sl.SetServiceName(serviceName)
	}
	return &Base{Config: cfg, Logger: log, serviceName: serviceName}
}

func (b *Base) ServiceName() string {
	return b.serviceName
}

// Init opens stores, then the broker, then tracing. A failure leaves
// whatever was opened for Shutdown to release.
func (b *Base) Init(ctx context.Context) error {
	stores, err := OpenStores(ctx, b.Config.Database, b.Logger)
	if err != nil {
		return err
	}
	b.Stores = stores

	producer, consumer, err := broker.NewBroker(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	consumer.SetServiceName(b.serviceName)
	b.Producer, b.Consumer = producer, consumer

	if b.tracer, err = tracing.Init(b.Config.Tracing, b.serviceName); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return nil
}

// EmbeddedBroker reports whether producer and consumer are one in-process
// queue, in which case delivery has to run in the producing binary.
func (b *Base) EmbeddedBroker() bool {
	pc, ok := b.Producer.(broker.Consumer)
	return ok && pc == b.Consumer
}

// Shutdown runs stop first, so components that still enqueue finish before
// the broker closes. Stores close last.
func (b *Base) Shutdown(ctx context.Context, stop ...func(ctx context.Context) error) error {
	b.Logger.InfowCtx(ctx, "Shutting down", "service", b.serviceName)

	var errs []error
	for _, fn := range stop {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close: %w", err))
		}
	}
	if b.Consumer != nil && !b.EmbeddedBroker() {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close: %w", err))
		}
	}
	if err := b.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if b.Stores != nil {
		errs = append(errs, b.Stores.Close(ctx)...)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}
	b.Logger.InfowCtx(ctx, "Shutdown complete")
	return nil
}
