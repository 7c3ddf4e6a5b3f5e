package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DayLayout is the calendar-day key format used for snapshots and the upstream query.
const DayLayout = "2006-01-02"

// TariffSnapshot stores the full tariff dataset captured for one calendar day.
type TariffSnapshot struct {
	ID        string        `json:"id" gorm:"type:varchar(36);primaryKey"`
	Day       string        `json:"day" gorm:"type:varchar(10);uniqueIndex;not null"`
	Data      TariffRecords `json:"data" gorm:"not null"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (TariffSnapshot) TableName() string { return "tariff_snapshots" }

func (s *TariffSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SnapshotInfo is a snapshot without its payload, for listings.
type SnapshotInfo struct {
	Day       string    `json:"day"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublishTarget is an external spreadsheet registered to receive the published table.
type PublishTarget struct {
	SpreadsheetID string `json:"spreadsheet_id" gorm:"column:spreadsheet_id;type:varchar(191);primaryKey"`
}

func (PublishTarget) TableName() string { return "spreadsheets" }
