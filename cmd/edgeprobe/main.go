package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"edgeprobe/internal/config"
	"edgeprobe/internal/database"
	"edgeprobe/internal/health"
	"edgeprobe/internal/logging"
	"edgeprobe/internal/metrics"
	"edgeprobe/internal/monitor"
	"edgeprobe/internal/probe"
	"edgeprobe/internal/web"
)

func main() {
	flags := config.ParseFlags()
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Global.LogDir, cfg.Global.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("edgeprobe exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Initialize database
	db, err := database.New(cfg.Global.DatabasePath, database.WithMetrics(m))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}

	tracker := health.NewTracker(health.Thresholds{
		OK:      cfg.Global.HealthOKMultiplier,
		Warning: cfg.Global.HealthWarningMultiplier,
	})

	mon := monitor.New(cfg, monitor.Deps{
		Store:   db,
		Prober:  probe.NewRPCChecker(),
		Tracker: tracker,
		Metrics: m,
		Logger:  logger,
	})
	server := web.New(cfg, web.Deps{
		Store:   db,
		Tracker: tracker,
		Sampler: health.HostSampler{DiskPath: filepath.Dir(cfg.Global.DatabasePath)},
		Metrics: m,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(gctx)
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("edgeprobe started",
		zap.Int("providers", len(cfg.Providers)),
		zap.String("addr", cfg.Global.Addr()),
		zap.String("database", cfg.Global.DatabasePath))

	return g.Wait()
}
