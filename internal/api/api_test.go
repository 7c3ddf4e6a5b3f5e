package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tariff-sync/internal/database"
	"tariff-sync/internal/models"
	"tariff-sync/internal/services/sheets"
	"tariff-sync/internal/services/tariffs"
	"tariff-sync/internal/store"
)

type fakeIngester struct {
	day   time.Time
	items []models.TariffRecord
	err   error
}

func (f *fakeIngester) FetchAndStore(_ context.Context, forDate time.Time) ([]models.TariffRecord, error) {
	f.day = forDate
	return f.items, f.err
}

type fakePublisher struct {
	report sheets.Report
	calls  int
}

func (f *fakePublisher) PublishLatest(context.Context) sheets.Report {
	f.calls++
	return f.report
}

func newTestRouter(t *testing.T, ing Ingester, pub Publisher) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Initialize("sqlite", dsn, false)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	st := store.New(db)

	r := gin.New()
	SetupRoutes(r.Group("/api/v1"), st, ing, pub)
	return r, st
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSnapshotsEndpoints(t *testing.T) {
	r, st := newTestRouter(t, &fakeIngester{}, &fakePublisher{})
	ctx := context.Background()

	if w := do(r, http.MethodGet, "/api/v1/snapshots/latest", ""); w.Code != http.StatusNotFound {
		t.Fatalf("latest on empty store = %d", w.Code)
	}

	at := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	_ = st.UpsertSnapshot(ctx, "2025-01-01", models.TariffRecords{models.TariffRecord(`{"warehouseName":"A"}`)}, at)
	_ = st.UpsertSnapshot(ctx, "2025-01-02", models.TariffRecords{models.TariffRecord(`{"warehouseName":"B"}`)}, at)

	w := do(r, http.MethodGet, "/api/v1/snapshots?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d %s", w.Code, w.Body)
	}
	var list struct {
		Snapshots []models.SnapshotInfo `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Snapshots) != 1 || list.Snapshots[0].Day != "2025-01-02" {
		t.Fatalf("list = %+v", list.Snapshots)
	}

	w = do(r, http.MethodGet, "/api/v1/snapshots/latest", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"warehouseName":"B"`) {
		t.Fatalf("latest = %d %s", w.Code, w.Body)
	}

	if w := do(r, http.MethodGet, "/api/v1/snapshots/2025-01-01", ""); w.Code != http.StatusOK {
		t.Fatalf("by day = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/snapshots/2024-12-31", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing day = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/snapshots/yesterday", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad day = %d", w.Code)
	}
}

func TestTableEndpointSortsAbsentLast(t *testing.T) {
	r, st := newTestRouter(t, &fakeIngester{}, &fakePublisher{})
	_ = st.UpsertSnapshot(context.Background(), "2025-01-01", models.TariffRecords{
		models.TariffRecord(`{"warehouseName":"A","boxDeliveryCoefExpr":"3,5"}`),
		models.TariffRecord(`{"warehouseName":"B","boxDeliveryCoefExpr":"1.2"}`),
		models.TariffRecord(`{"warehouseName":"C"}`),
	}, time.Now())

	w := do(r, http.MethodGet, "/api/v1/table", "")
	if w.Code != http.StatusOK {
		t.Fatalf("table = %d %s", w.Code, w.Body)
	}
	var got struct {
		Day  string     `json:"day"`
		Rows []tableRow `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Day != "2025-01-01" || len(got.Rows) != 3 {
		t.Fatalf("table = %+v", got)
	}
	order := got.Rows[0].Warehouse + got.Rows[1].Warehouse + got.Rows[2].Warehouse
	if order != "BAC" {
		t.Fatalf("order = %s, want BAC", order)
	}
	if got.Rows[0].Coefficient == nil || *got.Rows[0].Coefficient != 1.2 {
		t.Fatalf("first coefficient = %v", got.Rows[0].Coefficient)
	}
	if got.Rows[2].Coefficient != nil {
		t.Fatal("absent coefficient must be null")
	}
}

func TestTargetsCRUD(t *testing.T) {
	r, _ := newTestRouter(t, &fakeIngester{}, &fakePublisher{})

	if w := do(r, http.MethodPost, "/api/v1/targets", `{"spreadsheet_id":"sheet-1"}`); w.Code != http.StatusCreated {
		t.Fatalf("add = %d %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodPost, "/api/v1/targets", `{"spreadsheet_id":"sheet-1"}`); w.Code != http.StatusOK {
		t.Fatalf("duplicate add = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/v1/targets", `{"spreadsheet_id":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank add = %d", w.Code)
	}

	w := do(r, http.MethodGet, "/api/v1/targets", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sheet-1"`) {
		t.Fatalf("list = %d %s", w.Code, w.Body)
	}

	if w := do(r, http.MethodDelete, "/api/v1/targets/sheet-1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/targets/sheet-1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", w.Code)
	}
}

func TestRunIngest(t *testing.T) {
	ing := &fakeIngester{items: []models.TariffRecord{models.TariffRecord(`{}`)}}
	r, _ := newTestRouter(t, ing, &fakePublisher{})

	w := do(r, http.MethodPost, "/api/v1/ingest?date=2025-02-03", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"day":"2025-02-03"`) {
		t.Fatalf("ingest = %d %s", w.Code, w.Body)
	}
	if ing.day.Format(models.DayLayout) != "2025-02-03" {
		t.Fatalf("ingester got %v", ing.day)
	}

	if w := do(r, http.MethodPost, "/api/v1/ingest?date=02.03.2025", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad date = %d", w.Code)
	}

	ing.err = &tariffs.UpstreamError{Status: http.StatusUnauthorized, Detail: "token expired"}
	w = do(r, http.MethodPost, "/api/v1/ingest", "")
	if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), "token expired") {
		t.Fatalf("upstream failure = %d %s", w.Code, w.Body)
	}
	if !ing.day.IsZero() {
		t.Fatal("no date must mean today")
	}
}

func TestRunPublish(t *testing.T) {
	pub := &fakePublisher{report: sheets.Report{Day: "2025-01-01", Rows: 3, Targets: []sheets.TargetResult{
		{Target: "a", Current: "a", Outcome: sheets.OutcomeWritten},
	}}}
	r, _ := newTestRouter(t, &fakeIngester{}, pub)

	w := do(r, http.MethodPost, "/api/v1/publish", "")
	if w.Code != http.StatusOK {
		t.Fatalf("publish = %d", w.Code)
	}
	var report sheets.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Rows != 3 || len(report.Targets) != 1 || report.Targets[0].Outcome != sheets.OutcomeWritten {
		t.Fatalf("report = %+v", report)
	}

	pub.report = sheets.Report{Skipped: true}
	if w := do(r, http.MethodPost, "/api/v1/publish", ""); w.Code != http.StatusConflict {
		t.Fatalf("overlapping publish = %d", w.Code)
	}
}

func TestEventHubStreamsResults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewEventHub()
	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Notify(sheets.TargetResult{Target: "a", Current: "b", Recreated: true, Outcome: sheets.OutcomeWritten})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got sheets.TargetResult
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Target != "a" || got.Current != "b" || !got.Recreated {
		t.Fatalf("event = %+v", got)
	}
}

func TestEventHubDropsSlowSubscriber(t *testing.T) {
	hub := NewEventHub()
	ch := hub.subscribe()
	for i := 0; i < cap(ch)+1; i++ {
		hub.Notify(sheets.TargetResult{Target: "x"})
	}
	if hub.Subscribers() != 0 {
		t.Fatal("full subscriber must be dropped")
	}
	hub.unsubscribe(ch) // no double close
}
