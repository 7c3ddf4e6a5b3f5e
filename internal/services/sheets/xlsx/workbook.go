// Package xlsx implements the spreadsheet backend on local .xlsx workbooks.
// Each spreadsheet id names a file <dir>/<id>.xlsx.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"tariff-sync/internal/services/sheets"
)

type Store struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workbook dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the workbook file for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".xlsx")
}

func (s *Store) open(id string) (*excelize.File, error) {
	f, err := excelize.OpenFile(s.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: workbook %s", sheets.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", id, err)
	}
	return f, nil
}

// splitRange splits "Sheet!A1" into sheet and cell. A bare sheet name
// starts at A1.
func splitRange(rangeName string) (string, string) {
	sheet, cell, ok := strings.Cut(rangeName, "!")
	if !ok || cell == "" {
		return rangeName, "A1"
	}
	return strings.Trim(sheet, "'"), cell
}

func (s *Store) ClearRange(_ context.Context, spreadsheetID, rangeName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(spreadsheetID)
	if err != nil {
		return err
	}
	defer f.Close()

	sheet, _ := splitRange(rangeName)
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return fmt.Errorf("unable to parse range: %s", rangeName)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	for r, row := range rows {
		for c := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, nil); err != nil {
				return err
			}
		}
	}
	return f.Save()
}

func (s *Store) CreateSpreadsheet(_ context.Context, title, sheetTitle string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetTitle); err != nil {
		return "", err
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: title}); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := f.SaveAs(s.Path(id)); err != nil {
		return "", fmt.Errorf("save workbook %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) AddSheet(_ context.Context, spreadsheetID, sheetTitle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(spreadsheetID)
	if err != nil {
		return err
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheetTitle); err == nil && idx >= 0 {
		return nil
	}
	if _, err := f.NewSheet(sheetTitle); err != nil {
		return err
	}
	return f.Save()
}

func (s *Store) WriteRange(_ context.Context, spreadsheetID, rangeName string, grid [][]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(spreadsheetID)
	if err != nil {
		return err
	}
	defer f.Close()

	sheet, start := splitRange(rangeName)
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return fmt.Errorf("sheet %s not found in %s", sheet, spreadsheetID)
	}
	col, row, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return err
	}
	for i := range grid {
		cell, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return err
		}
		values := grid[i]
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.Save()
}

// ReadRows returns the values of sheet, for previews and tests.
func (s *Store) ReadRows(spreadsheetID, sheet string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open(spreadsheetID)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetRows(sheet)
}
