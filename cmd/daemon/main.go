// daemon runs the ingestion and publish schedules without the HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"tariff-sync/internal/app"
	"tariff-sync/internal/config"
	"tariff-sync/internal/logging"
	"tariff-sync/internal/scheduler"
)

var (
	once        = flag.Bool("once", false, "run one fetch and one publish, then exit")
	stopTimeout = flag.Duration("stop-timeout", time.Minute, "how long to wait for running jobs on shutdown")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	if *once {
		runOnce(ctx, a)
		return
	}

	sched, err := scheduler.New(a.Tariffs, a.Sheets, cfg.FetchCron, cfg.SyncCron)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	sched.Start()
	log.Info().Int("pid", os.Getpid()).Msg("Daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal, waiting for running jobs")

	select {
	case <-sched.Stop().Done():
	case <-time.After(*stopTimeout):
		log.Warn().Dur("timeout", *stopTimeout).Msg("Jobs still running, exiting anyway")
	}
}

func runOnce(ctx context.Context, a *app.App) {
	if _, err := a.Tariffs.FetchAndStore(ctx, time.Time{}); err != nil {
		// publish whatever the latest stored snapshot is
		log.Error().Err(err).Msg("Fetch failed")
	}
	report := a.Sheets.PublishLatest(ctx)
	log.Info().
		Str("day", report.Day).
		Int("rows", report.Rows).
		Int("targets", len(report.Targets)).
		Msg("Single run finished")
}
