// Package tariffs fetches the daily WB box-tariff dataset and stores it as a snapshot.
package tariffs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"tariff-sync/internal/models"
)

// UpstreamError reports a non-2xx or malformed response from the tariff API.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("tariff API error [%d]: %s", e.Status, e.Detail)
}

// SnapshotWriter stores a day's dataset, replacing any earlier one for that day.
type SnapshotWriter interface {
	UpsertSnapshot(ctx context.Context, day string, data models.TariffRecords, at time.Time) error
}

type Options struct {
	URL          string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

type Service struct {
	url       string
	apiKey    string
	keyHeader string
	client    *resty.Client
	store     SnapshotWriter
	now       func() time.Time
}

func NewService(opts Options, store SnapshotWriter) *Service {
	client := resty.New()
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	header := opts.APIKeyHeader
	if header == "" {
		header = "Authorization"
	}

	return &Service{
		url:       opts.URL,
		apiKey:    opts.APIKey,
		keyHeader: header,
		client:    client,
		store:     store,
		now:       time.Now,
	}
}

// FetchAndStore downloads the dataset for forDate (today in UTC when zero),
// upserts it as that day's snapshot and returns it.
func (s *Service) FetchAndStore(ctx context.Context, forDate time.Time) ([]models.TariffRecord, error) {
	day := forDate.Format(models.DayLayout)
	if forDate.IsZero() {
		day = s.now().UTC().Format(models.DayLayout)
	}
	logger := log.With().Str("component", "ingest").Str("day", day).Logger()

	items, err := s.fetch(ctx, day)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch WB tariffs")
		return nil, err
	}

	if err := s.store.UpsertSnapshot(ctx, day, items, s.now().UTC()); err != nil {
		logger.Error().Err(err).Msg("Failed to store WB tariffs")
		return nil, err
	}

	logger.Info().Int("records", len(items)).Msg("WB tariffs fetched and stored")
	return items, nil
}

func (s *Service) fetch(ctx context.Context, day string) (models.TariffRecords, error) {
	req := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("date", day)
	if s.apiKey != "" {
		req.SetHeader(s.keyHeader, "Bearer "+s.apiKey)
	}

	resp, err := req.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("tariff request failed: %w", err)
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		detail := "response is not valid JSON"
		if !resp.IsSuccess() {
			detail = resp.Status()
		}
		return nil, &UpstreamError{Status: resp.StatusCode(), Detail: detail}
	}
	if !resp.IsSuccess() {
		return nil, &UpstreamError{
			Status: resp.StatusCode(),
			Detail: gjson.GetBytes(body, "detail").String(),
		}
	}

	return extractWarehouses(body), nil
}

// extractWarehouses reads response.data.warehouseList. A missing or
// non-array list is an empty dataset.
func extractWarehouses(body []byte) models.TariffRecords {
	list := gjson.GetBytes(body, "response.data.warehouseList")
	if !list.IsArray() {
		return models.TariffRecords{}
	}
	items := make(models.TariffRecords, 0, len(list.Array()))
	list.ForEach(func(_, v gjson.Result) bool {
		items = append(items, models.TariffRecord(v.Raw))
		return true
	})
	return items
}
