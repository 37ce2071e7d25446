package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"edgeprobe/internal/config"
	"edgeprobe/internal/database"
	"edgeprobe/internal/logging"
	"edgeprobe/internal/report"
)

func main() {
	outputDir := flag.String("out", "reports", "Directory to write the report into")
	days := flag.Int("days", 30, "Number of elapsed days to cover")
	flags := config.ParseFlags()

	if *days < 1 {
		log.Fatalf("-days must be at least 1")
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Global.LogDir, cfg.Global.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := database.New(cfg.Global.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		logger.Fatal("failed to initialize database schema", zap.Error(err))
	}

	dir, err := report.NewGenerator(db, logger).GenerateReport(ctx, *outputDir, *days)
	if err != nil {
		logger.Warn("report generated with errors", zap.String("dir", dir), zap.Error(err))
		return
	}
	logger.Info("report written", zap.String("dir", dir))
}
