package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jengzang/tracking-backend-go/internal/api"
	"github.com/jengzang/tracking-backend-go/internal/auth"
	"github.com/jengzang/tracking-backend-go/internal/config"
	"github.com/jengzang/tracking-backend-go/internal/database"
	"github.com/jengzang/tracking-backend-go/internal/geofence"
	"github.com/jengzang/tracking-backend-go/internal/handler"
	"github.com/jengzang/tracking-backend-go/internal/logging"
	"github.com/jengzang/tracking-backend-go/internal/metrics"
	"github.com/jengzang/tracking-backend-go/internal/middleware"
	"github.com/jengzang/tracking-backend-go/internal/realtime"
	"github.com/jengzang/tracking-backend-go/internal/repository"
	"github.com/jengzang/tracking-backend-go/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	db, err := database.OpenAndMigrate(database.Config{Path: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := realtime.NewHub(64, logger)

	geofences := service.NewGeofenceService(repository.NewGeofenceRepository(db), logger, cfg.Timezone)
	alerts := service.NewAlertService(repository.NewAlertRepository(db), m, logger, service.LogNotifier{Logger: logger}, hub)
	engine := geofence.NewEngine(geofences, alerts, geofence.NewTracker(),
		geofence.WithLogger(logger),
		geofence.WithMetrics(m),
		geofence.WithLocation(cfg.Timezone),
	)
	locations := service.NewLocationService(repository.NewLocationRepository(db), engine, alerts, hub, m, logger, service.LocationConfig{
		BatteryLowThreshold: cfg.BatteryLowThreshold,
		MaxBatchLocations:   cfg.MaxBatchLocations,
		EvaluationTimeout:   cfg.EvaluationTimeout,
	})

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	stop := make(chan struct{})
	defer close(stop)
	go limiter.Run(time.Minute, stop)

	// 初始化路由
	router := api.SetupRouter(api.Handlers{
		Geofences: handler.NewGeofenceHandler(geofences, engine),
		Locations: handler.NewLocationHandler(locations),
		Alerts:    handler.NewAlertHandler(alerts),
		Stream:    handler.NewStreamHandler(hub, 25*time.Second),
	}, api.Options{
		Logger:   logger,
		Tokens:   issuer,
		Limiter:  limiter,
		Gatherer: reg,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := newHTTPServer(ctx, cfg.Port, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Port, "timezone", cfg.Timezone.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// newHTTPServer builds the server. Request contexts derive from ctx, so
// long-lived streams end when ctx is cancelled instead of holding Shutdown.
func newHTTPServer(ctx context.Context, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}
