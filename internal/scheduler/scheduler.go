// Package scheduler runs ingestion and publishing on independent cron cadences.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"tariff-sync/internal/logging"
	"tariff-sync/internal/models"
	"tariff-sync/internal/services/sheets"
)

type Ingester interface {
	FetchAndStore(ctx context.Context, forDate time.Time) ([]models.TariffRecord, error)
}

type Publisher interface {
	PublishLatest(ctx context.Context) sheets.Report
}

// Parser accepts standard five-field expressions and six-field ones with a
// leading seconds field.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Scheduler struct {
	cron      *cron.Cron
	ingester  Ingester
	publisher Publisher
	fetchSpec string
	syncSpec  string

	fetchJob cron.Job
	syncJob  cron.Job
}

func New(ingester Ingester, publisher Publisher, fetchSpec, syncSpec string) (*Scheduler, error) {
	logger := logging.CronLogger{Logger: log.With().Str("component", "scheduler").Logger()}
	s := &Scheduler{
		cron:      cron.New(cron.WithParser(Parser), cron.WithLocation(time.UTC), cron.WithLogger(logger)),
		ingester:  ingester,
		publisher: publisher,
		fetchSpec: fetchSpec,
		syncSpec:  syncSpec,
	}

	// ingestion may overlap itself; the day upsert keeps that safe
	s.fetchJob = cron.NewChain(cron.Recover(logger)).Then(cron.FuncJob(s.runFetch))
	if _, err := s.cron.AddJob(fetchSpec, s.fetchJob); err != nil {
		return nil, fmt.Errorf("invalid fetch schedule %q: %w", fetchSpec, err)
	}
	s.syncJob = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(s.runSync))
	if _, err := s.cron.AddJob(syncSpec, s.syncJob); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", syncSpec, err)
	}
	return s, nil
}

func (s *Scheduler) runFetch() {
	log.Info().Str("component", "scheduler").Msg("Running WB tariffs fetch")
	if _, err := s.ingester.FetchAndStore(context.Background(), time.Time{}); err != nil {
		log.Error().Str("component", "scheduler").Err(err).Msg("Fetch failed")
	}
}

func (s *Scheduler) runSync() {
	log.Info().Str("component", "scheduler").Msg("Running sheets sync")
	s.publisher.PublishLatest(context.Background())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().
		Str("fetch", s.fetchSpec).
		Str("sync", s.syncSpec).
		Msg("Scheduler started")
}

// Stop prevents future runs. The returned context is done once in-flight
// runs have finished.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	log.Info().Msg("Scheduler stopped")
	return ctx
}
