// Package sheets republishes the latest tariff snapshot into registered spreadsheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
)

// SheetName is the sheet that receives the published table.
const SheetName = "stocks_coefs"

// ErrNotFound marks a spreadsheet that no longer exists or is not accessible.
// Backends wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("spreadsheet not found")

// Backend is the spreadsheet capability the publisher needs. Implementations
// must classify missing spreadsheets as ErrNotFound.
type Backend interface {
	// ClearRange empties rangeName (a sheet name or A1 range).
	ClearRange(ctx context.Context, spreadsheetID, rangeName string) error
	// CreateSpreadsheet creates a spreadsheet with one sheet and returns its id.
	CreateSpreadsheet(ctx context.Context, title, sheetTitle string) (string, error)
	// AddSheet adds sheetTitle unless it already exists.
	AddSheet(ctx context.Context, spreadsheetID, sheetTitle string) error
	// WriteRange writes grid starting at the first cell of rangeName.
	WriteRange(ctx context.Context, spreadsheetID, rangeName string, grid [][]interface{}) error
}

// Stage names the reconciliation step a target failed in.
type Stage string

const (
	StageRecreate    Stage = "recreate"
	StageEnsureSheet Stage = "ensure_sheet"
	StageWrite       Stage = "write"
)

// TargetError is a failure confined to one target in one publish cycle.
type TargetError struct {
	Target string
	Stage  Stage
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("spreadsheet %s: %s: %v", e.Target, e.Stage, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }
