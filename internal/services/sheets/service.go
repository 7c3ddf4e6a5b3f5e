package sheets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tariff-sync/internal/models"
	"tariff-sync/internal/tariff"
)

type SnapshotSource interface {
	LatestSnapshot(ctx context.Context) (*models.TariffSnapshot, error)
}

type TargetRegistry interface {
	ListTargets(ctx context.Context) ([]string, error)
	ReplaceTarget(ctx context.Context, oldID, newID string) error
}

// Notifier receives every per-target result as soon as it is known.
type Notifier interface {
	Notify(TargetResult)
}

type Outcome string

const (
	OutcomeWritten     Outcome = "written"
	OutcomeWriteFailed Outcome = "write_failed"
	OutcomeAbandoned   Outcome = "abandoned"
	OutcomePreview     Outcome = "preview"
)

// TargetResult is what happened to one target in one cycle. Current is the id
// the table went to, which differs from Target after a repair.
type TargetResult struct {
	Target    string    `json:"target"`
	Current   string    `json:"current"`
	Recreated bool      `json:"recreated"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Err       error     `json:"-"`
	At        time.Time `json:"at"`
}

// Report summarizes a publish cycle.
type Report struct {
	Day     string         `json:"day,omitempty"`
	Rows    int            `json:"rows"`
	Targets []TargetResult `json:"targets"`
	Skipped bool           `json:"skipped,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type Options struct {
	// Preview logs the first PreviewRows grid rows per target instead of writing.
	Preview     bool
	PreviewRows int
	// Concurrency bounds how many targets are reconciled at once.
	Concurrency int
	SheetName   string
}

type Service struct {
	snapshots SnapshotSource
	targets   TargetRegistry
	backend   Backend
	notifier  Notifier
	opts      Options
	now       func() time.Time

	// one publish cycle at a time
	mu sync.Mutex
}

// NewService builds the publisher. backend may be nil in preview mode.
func NewService(snapshots SnapshotSource, targets TargetRegistry, backend Backend, opts Options) *Service {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.SheetName == "" {
		opts.SheetName = SheetName
	}
	return &Service{
		snapshots: snapshots,
		targets:   targets,
		backend:   backend,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// PublishLatest writes the latest snapshot table to every registered target.
// Failures are contained per target and reported, never returned.
func (s *Service) PublishLatest(ctx context.Context) Report {
	logger := log.With().Str("component", "publish").Logger()

	if !s.mu.TryLock() {
		logger.Warn().Msg("Publish cycle already running, skipping")
		return Report{Skipped: true}
	}
	defer s.mu.Unlock()

	snap, err := s.snapshots.LatestSnapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load latest tariff snapshot")
		return Report{Error: err.Error()}
	}
	if snap == nil {
		logger.Info().Msg("No tariff snapshot available to sync")
		return Report{}
	}

	grid := tariff.Grid(tariff.BuildRows(snap.Data))
	report := Report{Day: snap.Day, Rows: len(grid) - 1}

	ids, err := s.targets.ListTargets(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load spreadsheets")
		report.Error = err.Error()
		return report
	}
	if len(ids) == 0 {
		logger.Info().Msg("No spreadsheets configured in DB to sync")
		return report
	}

	report.Targets = make([]TargetResult, len(ids))

	if s.opts.Preview {
		n := s.opts.PreviewRows
		if n > len(grid) {
			n = len(grid)
		}
		for i, id := range ids {
			logger.Info().Str("spreadsheet_id", id).Interface("rows", grid[:n]).Msg("[TEST_FAST] Would sync to spreadsheet")
			report.Targets[i] = s.finish(TargetResult{Target: id, Current: id, Outcome: OutcomePreview})
		}
		return report
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			report.Targets[i] = s.finish(s.reconcile(ctx, id, grid))
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().Str("day", snap.Day).Int("targets", len(ids)).Msg("Sheets sync finished")
	return report
}

// reconcile clears or recreates one target and writes grid to it.
func (s *Service) reconcile(ctx context.Context, id string, grid [][]interface{}) TargetResult {
	res := TargetResult{Target: id, Current: id}
	logger := log.With().Str("component", "publish").Str("spreadsheet_id", id).Logger()
	sheet := s.opts.SheetName

	err := s.backend.ClearRange(ctx, id, sheet)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		logger.Warn().Err(err).Msg("Spreadsheet not found. Creating a new spreadsheet and replacing DB entry")
		newID, err := s.recreate(ctx, id, logger)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create a replacement spreadsheet; check service account permissions and quota")
			return abandon(res, StageRecreate, err)
		}
		res.Current, res.Recreated = newID, true
	default:
		logger.Warn().Err(err).Msg("Failed to clear sheet, ensuring it exists")
		if err := s.backend.AddSheet(ctx, id, sheet); err != nil {
			logger.Error().Err(err).Str("sheet", sheet).Msg("Failed to ensure sheet")
			if errors.Is(err, ErrNotFound) {
				logger.Error().Msg("Spreadsheet not found or access denied; verify the id and share it with the service account")
			}
			return abandon(res, StageEnsureSheet, err)
		}
	}

	if err := s.backend.WriteRange(ctx, res.Current, sheet+"!A1", grid); err != nil {
		logger.Error().Err(err).Str("target", res.Current).Msg("Failed to update spreadsheet")
		res.Outcome = OutcomeWriteFailed
		res.Err = &TargetError{Target: res.Current, Stage: StageWrite, Err: err}
		return res
	}

	logger.Info().Str("target", res.Current).Msg("Synced tariffs to spreadsheet")
	res.Outcome = OutcomeWritten
	return res
}

// recreate creates a replacement spreadsheet and swaps it into the registry.
// A failed swap is logged only; this cycle still writes to the new id.
func (s *Service) recreate(ctx context.Context, id string, logger zerolog.Logger) (string, error) {
	title := "tariffs_" + s.now().UTC().Format(time.RFC3339)
	newID, err := s.backend.CreateSpreadsheet(ctx, title, s.opts.SheetName)
	if err != nil {
		return "", err
	}
	if newID == "" {
		return "", errors.New("no spreadsheet id returned")
	}

	if err := s.targets.ReplaceTarget(ctx, id, newID); err != nil {
		logger.Error().Err(err).Str("new_id", newID).Msg("Failed to replace spreadsheet id in DB")
		return newID, nil
	}
	logger.Info().Str("new_id", newID).Msg("Replaced spreadsheet id in DB")
	return newID, nil
}

func abandon(res TargetResult, stage Stage, err error) TargetResult {
	res.Outcome = OutcomeAbandoned
	res.Err = &TargetError{Target: res.Target, Stage: stage, Err: err}
	return res
}

func (s *Service) finish(res TargetResult) TargetResult {
	res.At = s.now()
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	if s.notifier != nil {
		s.notifier.Notify(res)
	}
	return res
}
