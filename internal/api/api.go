package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tariff-sync/internal/models"
	"tariff-sync/internal/services/sheets"
	"tariff-sync/internal/services/tariffs"
	"tariff-sync/internal/store"
	"tariff-sync/internal/tariff"
)

type Store interface {
	LatestSnapshot(ctx context.Context) (*models.TariffSnapshot, error)
	SnapshotByDay(ctx context.Context, day string) (*models.TariffSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]models.SnapshotInfo, error)
	ListTargets(ctx context.Context) ([]string, error)
	AddTarget(ctx context.Context, id string) (bool, error)
	RemoveTarget(ctx context.Context, id string) error
}

type Ingester interface {
	FetchAndStore(ctx context.Context, forDate time.Time) ([]models.TariffRecord, error)
}

type Publisher interface {
	PublishLatest(ctx context.Context) sheets.Report
}

type APIHandler struct {
	store     Store
	ingester  Ingester
	publisher Publisher
}

func SetupRoutes(r *gin.RouterGroup, st Store, ingester Ingester, publisher Publisher) *APIHandler {
	handler := &APIHandler{
		store:     st,
		ingester:  ingester,
		publisher: publisher,
	}

	snapshots := r.Group("/snapshots")
	{
		snapshots.GET("", handler.ListSnapshots)
		snapshots.GET("/latest", handler.GetLatestSnapshot)
		snapshots.GET("/:day", handler.GetSnapshot)
	}

	// Published table preview for the latest snapshot
	r.GET("/table", handler.GetTable)

	targets := r.Group("/targets")
	{
		targets.GET("", handler.ListTargets)
		targets.POST("", handler.AddTarget)
		targets.DELETE("/:id", handler.DeleteTarget)
	}

	// Manual triggers, same code paths as the scheduler
	r.POST("/ingest", handler.RunIngest)
	r.POST("/publish", handler.RunPublish)

	return handler
}

func (h *APIHandler) ListSnapshots(c *gin.Context) {
	limit := 30
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	infos, err := h.store.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if infos == nil {
		infos = []models.SnapshotInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": infos})
}

func (h *APIHandler) GetLatestSnapshot(c *gin.Context) {
	snap, err := h.store.LatestSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tariff snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *APIHandler) GetSnapshot(c *gin.Context) {
	day := c.Param("day")
	if _, err := time.Parse(models.DayLayout, day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "day must be YYYY-MM-DD"})
		return
	}
	snap, err := h.store.SnapshotByDay(c.Request.Context(), day)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for " + day})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type tableRow struct {
	Warehouse   string          `json:"warehouse"`
	Geo         string          `json:"geo"`
	Coefficient *float64        `json:"coefficient"`
	Raw         json.RawMessage `json:"raw"`
}

func (h *APIHandler) GetTable(c *gin.Context) {
	snap, err := h.store.LatestSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tariff snapshot yet"})
		return
	}

	rows := tariff.BuildRows(snap.Data)
	out := make([]tableRow, 0, len(rows))
	for _, r := range rows {
		row := tableRow{Warehouse: r.Warehouse, Geo: r.Geo, Raw: json.RawMessage(r.Raw.Compact())}
		if r.Coefficient.Valid {
			f := r.Coefficient.Decimal.InexactFloat64()
			row.Coefficient = &f
		}
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"day": snap.Day, "header": tariff.Header, "rows": out})
}

func (h *APIHandler) ListTargets(c *gin.Context) {
	ids, err := h.store.ListTargets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"targets": ids})
}

func (h *APIHandler) AddTarget(c *gin.Context) {
	var req struct {
		SpreadsheetID string `json:"spreadsheet_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spreadsheet_id is required"})
		return
	}
	id := strings.TrimSpace(req.SpreadsheetID)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spreadsheet_id is required"})
		return
	}

	created, err := h.store.AddTarget(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"spreadsheet_id": id, "created": created})
}

func (h *APIHandler) DeleteTarget(c *gin.Context) {
	id := c.Param("id")
	err := h.store.RemoveTarget(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown spreadsheet " + id})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// RunIngest fetches and stores a day's tariffs (?date=YYYY-MM-DD, default today).
// The run is detached from the request so a dropped client does not cancel it.
func (h *APIHandler) RunIngest(c *gin.Context) {
	var forDate time.Time
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse(models.DayLayout, d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		forDate = parsed
	}

	items, err := h.ingester.FetchAndStore(context.WithoutCancel(c.Request.Context()), forDate)
	if err != nil {
		var upstream *tariffs.UpstreamError
		if errors.As(err, &upstream) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": upstream.Status, "detail": upstream.Detail})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	day := forDate.Format(models.DayLayout)
	if forDate.IsZero() {
		day = time.Now().UTC().Format(models.DayLayout)
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "records": len(items)})
}

func (h *APIHandler) RunPublish(c *gin.Context) {
	report := h.publisher.PublishLatest(context.WithoutCancel(c.Request.Context()))
	if report.Skipped {
		c.JSON(http.StatusConflict, gin.H{"error": "publish cycle already running"})
		return
	}
	if report.Targets == nil {
		report.Targets = []sheets.TargetResult{}
	}
	c.JSON(http.StatusOK, report)
}
