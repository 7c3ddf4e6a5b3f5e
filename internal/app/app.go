// Package app wires the configured store, ingester and publisher together.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"tariff-sync/internal/config"
	"tariff-sync/internal/database"
	"tariff-sync/internal/services/sheets"
	"tariff-sync/internal/services/sheets/google"
	"tariff-sync/internal/services/sheets/xlsx"
	"tariff-sync/internal/services/tariffs"
	"tariff-sync/internal/store"
)

type App struct {
	DB      *gorm.DB
	Store   *store.Store
	Tariffs *tariffs.Service
	Sheets  *sheets.Service
}

// New opens the database, seeds SPREADSHEET_IDS into the registry and builds
// both pipeline halves. With FastMode the publisher only previews.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.LogLevel == "debug")
	if err != nil {
		return nil, err
	}

	st := store.New(db)
	if err := st.SeedTargets(ctx, cfg.SpreadsheetIDs); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	if len(cfg.SpreadsheetIDs) > 0 {
		log.Info().Int("count", len(cfg.SpreadsheetIDs)).Msg("Seeded spreadsheet targets")
	}

	var backend sheets.Backend
	if !cfg.FastMode {
		backend, err = NewBackend(cfg)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	return &App{
		DB:    db,
		Store: st,
		Tariffs: tariffs.NewService(tariffs.Options{
			URL:          cfg.TariffsURL,
			APIKey:       cfg.APIKey,
			APIKeyHeader: cfg.APIKeyHeader,
			Timeout:      cfg.HTTPTimeout,
		}, st),
		Sheets: sheets.NewService(st, st, backend, sheets.Options{
			Preview:     cfg.FastMode,
			Concurrency: cfg.PublishConcurrency,
		}),
	}, nil
}

// NewBackend selects the spreadsheet backend named by SHEETS_BACKEND.
func NewBackend(cfg *config.Config) (sheets.Backend, error) {
	switch cfg.SheetsBackend {
	case "google", "":
		return google.New(cfg.GoogleCredentialsPath), nil
	case "xlsx":
		wb, err := xlsx.New(cfg.XLSXDir)
		if err != nil {
			return nil, err
		}
		return wb, nil
	default:
		return nil, fmt.Errorf("unknown sheets backend %q", cfg.SheetsBackend)
	}
}

func (a *App) Close() error {
	return database.Close(a.DB)
}
