package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/directory"
	"bizpulse/internal/dispatch"
	"bizpulse/internal/geoip"
	"bizpulse/internal/history"
	"bizpulse/internal/logger"
	"bizpulse/internal/notification"
	"bizpulse/internal/observer"
	"bizpulse/internal/pipeline"
	"bizpulse/internal/realtime"
	"bizpulse/pkg/bootstrap"
	"bizpulse/pkg/metrics"
	"bizpulse/pkg/middleware"
	"bizpulse/pkg/ratelimit"
	"bizpulse/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	hub      *realtime.Hub
	gateway  *realtime.Gateway
	embedded *pipeline.Pipeline
	server   *http.Server
	// runCtx bounds background helpers started while building the router.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	runCtx, cancel := context.WithCancel(context.Background())
	return &App{
		Base:      bootstrap.NewBase(cfg, log, serviceName),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	metrics.RegisterNotificationServiceMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	// The memory broker never leaves the process, so delivery has to run here.
	if a.EmbeddedBroker() {
		metrics.RegisterWorkerMetrics()
		p, err := pipeline.Build(ctx, a.Config, pipeline.Deps{
			Redis:    a.Stores.Redis,
			Postgres: a.Stores.Postgres,
			History:  a.Stores.History,
			Consumer: a.Consumer,
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to build embedded alert pipeline: %w", err)
		}
		a.embedded = p
		a.Logger.InfowCtx(ctx, "Running embedded alert worker on the memory broker")
	}

	a.hub = realtime.NewHub(a.Logger)
	a.gateway = realtime.NewGateway(a.Stores.Redis, a.hub, a.Logger)

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.initRouter(),
		ReadHeaderTimeout: a.Config.Server.ReadTimeoutSeconds,
	}
	return nil
}

func (a *App) initRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(a.Logger),
		middleware.RecoveryMiddleware(a.Logger),
	)

	if rl := a.Config.API.RateLimit; rl.Enabled {
		opts := ratelimit.OptionsFrom(rl)
		router.Use(ratelimit.Middleware(a.runCtx, opts))
		a.Logger.Infow("Rate limiting enabled", "rps", opts.RPS, "burst", opts.Burst)
	}

	dir := directory.NewPostgresDirectory(a.Stores.Postgres)

	notifications := notification.NewService(
		notification.NewRepository(a.Stores.Postgres),
		notification.NewPreferenceRepository(a.Stores.Postgres),
		a.Logger,
	)
	notification.NewHandler(notifications, a.Logger).RegisterRoutes(router)

	if a.Stores.History != nil {
		history.NewHandler(history.NewRepository(a.Stores.History), dir, a.Logger).RegisterRoutes(router)
	}

	realtime.NewHandler(a.hub, a.Logger).RegisterRoutes(router)

	store := observer.NewPostgresStore(a.Stores.Postgres)
	observers := observer.New(
		dispatch.NewDispatcher(a.Producer, serviceName, a.Logger),
		observer.NewRedisAttemptCounter(a.Stores.Redis, a.Config.Observers.FailedLoginWindow),
		store,
		a.Config.Observers,
		a.Logger,
	).WithLocator(geoip.FromConfig(a.Config.GeoIP, a.Config.CircuitBreaker, a.Stores.Redis))
	observer.NewHandler(observers, a.Config.API.HookToken, a.Logger).RegisterRoutes(router)

	router.GET("/health", a.Stores.HealthRegistry().Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
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
		a.hub.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		return a.gateway.Run(gCtx)
	})

	if a.embedded != nil {
		g.Go(func() error {
			return a.embedded.Run(gCtx)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.cancelRun()
	return a.Base.Shutdown(ctx)
}
