// Package store persists daily tariff snapshots and the publish-target registry.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tariff-sync/internal/models"
)

// ErrNotFound is returned by lookups by key that match no row.
var ErrNotFound = errors.New("store: not found")

// PersistenceError wraps a failed database operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// Store is the gorm-backed snapshot store and target registry.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// UpsertSnapshot inserts the day's snapshot or overwrites its data and
// updated_at in a single statement.
func (s *Store) UpsertSnapshot(ctx context.Context, day string, data models.TariffRecords, at time.Time) error {
	snap := models.TariffSnapshot{Day: day, Data: data, CreatedAt: at, UpdatedAt: at}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&snap).Error
	return fail("upsert snapshot "+day, err)
}

// LatestSnapshot returns the snapshot with the greatest day, or nil when
// nothing has been ingested yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*models.TariffSnapshot, error) {
	var snap models.TariffSnapshot
	err := s.db.WithContext(ctx).Order("day DESC").Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("latest snapshot", err)
	}
	return &snap, nil
}

func (s *Store) SnapshotByDay(ctx context.Context, day string) (*models.TariffSnapshot, error) {
	var snap models.TariffSnapshot
	err := s.db.WithContext(ctx).Where("day = ?", day).Take(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fail("snapshot "+day, err)
	}
	return &snap, nil
}

// ListSnapshots returns snapshot days newest first, without payloads.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]models.SnapshotInfo, error) {
	var infos []models.SnapshotInfo
	q := s.db.WithContext(ctx).Model(&models.TariffSnapshot{}).
		Select("day", "updated_at").
		Order("day DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(&infos).Error; err != nil {
		return nil, fail("list snapshots", err)
	}
	return infos, nil
}

// ListTargets returns every registered spreadsheet id.
func (s *Store) ListTargets(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.PublishTarget{}).
		Order("spreadsheet_id").
		Pluck("spreadsheet_id", &ids).Error
	if err != nil {
		return nil, fail("list targets", err)
	}
	return ids, nil
}

// ReplaceTarget swaps oldID for newID in one transaction.
func (s *Store) ReplaceTarget(ctx context.Context, oldID, newID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.PublishTarget{}, "spreadsheet_id = ?", oldID).Error; err != nil {
			return err
		}
		return tx.Create(&models.PublishTarget{SpreadsheetID: newID}).Error
	})
	return fail(fmt.Sprintf("replace target %s -> %s", oldID, newID), err)
}

// AddTarget registers id. It reports false when id was already registered.
func (s *Store) AddTarget(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PublishTarget{SpreadsheetID: id})
	if res.Error != nil {
		return false, fail("add target "+id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RemoveTarget(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.PublishTarget{}, "spreadsheet_id = ?", id)
	if res.Error != nil {
		return fail("remove target "+id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedTargets registers ids that are not registered yet.
func (s *Store) SeedTargets(ctx context.Context, ids []string) error {
	targets := make([]models.PublishTarget, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			targets = append(targets, models.PublishTarget{SpreadsheetID: id})
		}
	}
	if len(targets) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&targets).Error
	return fail("seed targets", err)
}
