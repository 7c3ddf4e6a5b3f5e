// Package google implements the spreadsheet backend on the Google Sheets API.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"tariff-sync/internal/services/sheets"
)

var scopes = []string{gsheets.SpreadsheetsScope, gsheets.DriveScope}

// Client is a sheets.Backend. The API service is built on first use so a
// missing credentials file only fails publishing, not process start.
type Client struct {
	credentialsPath string

	mu  sync.Mutex
	svc *gsheets.Service
}

func New(credentialsPath string) *Client {
	return &Client{credentialsPath: credentialsPath}
}

// NewWithService wraps an already configured API service.
func NewWithService(svc *gsheets.Service) *Client {
	return &Client{svc: svc}
}

func (c *Client) service(ctx context.Context) (*gsheets.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}

	path, err := credentialsFile(c.credentialsPath)
	if err != nil {
		return nil, err
	}
	svc, err := gsheets.NewService(context.WithoutCancel(ctx),
		option.WithCredentialsFile(path),
		option.WithScopes(scopes...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	log.Debug().Strs("scopes", scopes).Msg("Google Sheets client ready")
	c.svc = svc
	return svc, nil
}

func credentialsFile(p string) (string, error) {
	if p == "" {
		return "", errors.New("google credentials not provided, set GOOGLE_CREDENTIALS_PATH")
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", p, err)
		}
		p = home + p[1:]
	}
	resolved, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("google credentials file not found at GOOGLE_CREDENTIALS_PATH=%s: %w", p, err)
	}
	return resolved, nil
}

func (c *Client) ClearRange(ctx context.Context, spreadsheetID, rangeName string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Spreadsheets.Values.Clear(spreadsheetID, rangeName, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return classify(err)
}

func (c *Client) CreateSpreadsheet(ctx context.Context, title, sheetTitle string) (string, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}
	created, err := svc.Spreadsheets.Create(&gsheets.Spreadsheet{
		Properties: &gsheets.SpreadsheetProperties{Title: title},
		Sheets: []*gsheets.Sheet{
			{Properties: &gsheets.SheetProperties{Title: sheetTitle}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify(err)
	}
	return created.SpreadsheetId, nil
}

func (c *Client) AddSheet(ctx context.Context, spreadsheetID, sheetTitle string) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	meta, err := svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == sheetTitle {
			return nil
		}
	}

	_, err = svc.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{
			{AddSheet: &gsheets.AddSheetRequest{Properties: &gsheets.SheetProperties{Title: sheetTitle}}},
		},
	}).Context(ctx).Do()
	return classify(err)
}

func (c *Client) WriteRange(ctx context.Context, spreadsheetID, rangeName string, grid [][]interface{}) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	_, err = svc.Spreadsheets.Values.Update(spreadsheetID, rangeName, &gsheets.ValueRange{Values: grid}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return classify(err)
}

// classify maps API not-found responses to sheets.ErrNotFound.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", sheets.ErrNotFound, err)
	}
	if strings.Contains(err.Error(), "Requested entity was not found") {
		return fmt.Errorf("%w: %v", sheets.ErrNotFound, err)
	}
	return err
}
