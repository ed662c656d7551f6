package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/dispatch"
	"bizpulse/internal/logger"
	"bizpulse/internal/observer"
	"bizpulse/internal/pipeline"
	"bizpulse/pkg/bootstrap"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/middleware"
)

type App struct {
	*bootstrap.Base
	pipeline *pipeline.Pipeline
	sweeper  *observer.GoalSweeper
	server   *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log, serviceName)}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	metrics.RegisterWorkerMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	p, err := pipeline.Build(ctx, a.Config, pipeline.Deps{
		Redis:    a.Stores.Redis,
		Postgres: a.Stores.Postgres,
		History:  a.Stores.History,
		Consumer: a.Consumer,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to build alert pipeline: %w", err)
	}
	a.pipeline = p

	a.initSweeper()
	a.initHTTPServer()
	return nil
}

// initSweeper schedules the overdue goal sweep. It runs here rather than in
// the HTTP service so exactly one process owns the schedule.
func (a *App) initSweeper() {
	dispatcher := dispatch.NewDispatcher(a.Producer, serviceName, a.Logger)
	store := observer.NewPostgresStore(a.Stores.Postgres)
	observers := observer.New(
		dispatcher,
		observer.NewRedisAttemptCounter(a.Stores.Redis, a.Config.Observers.FailedLoginWindow),
		store,
		a.Config.Observers,
		a.Logger,
	)
	a.sweeper = observer.NewGoalSweeper(store, observers, a.Config.Observers.GoalSweepCron, a.Logger)
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	router.GET("/health", a.Stores.HealthRegistry().Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: a.Config.Server.ReadTimeoutSeconds,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.pipeline.Run(gCtx)
	})

	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx)
}
