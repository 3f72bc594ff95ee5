package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/NikhilTanwar48/backend-global-sales/internal/cache"
	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

type fakeStore struct {
	meta       sales.Metadata
	summary    sales.Summary
	emptyTrend bool
	err        error

	calls int
	lastQ sales.Query
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		meta: sales.Metadata{
			Categories: []string{"Furniture", "Technology"},
			Regions:    []string{"East", "West"},
			Years:      []int{2022, 2023},
		},
		summary: sales.Summary{TotalSales: 1000, TotalProfit: 120, AvgOrderValue: 50, Orders: 20},
	}
}

func (f *fakeStore) Metadata(ctx context.Context) (sales.Metadata, error) {
	if f.err != nil {
		return sales.Metadata{}, f.err
	}
	return f.meta, nil
}

func (f *fakeStore) Summary(ctx context.Context, q sales.Query) (sales.Summary, error) {
	f.calls++
	f.lastQ = q
	if f.err != nil {
		return sales.Summary{}, f.err
	}
	return f.summary, nil
}

func (f *fakeStore) SalesByCategory(ctx context.Context, q sales.Query) ([]sales.CategorySales, error) {
	f.calls++
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return []sales.CategorySales{{Category: "Furniture", Sales: 500, Profit: 60}}, nil
}

func (f *fakeStore) SalesByRegion(ctx context.Context, q sales.Query) ([]sales.RegionSales, error) {
	f.calls++
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return []sales.RegionSales{{Region: "East", Sales: 700}}, nil
}

func (f *fakeStore) MonthlyTrend(ctx context.Context, q sales.Query) (map[string][]sales.MonthlySales, error) {
	f.calls++
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	if f.emptyTrend {
		return nil, nil
	}
	return map[string][]sales.MonthlySales{
		"2023": {{Month: "January", Sales: 100}, {Month: "February", Sales: 150}},
	}, nil
}

func newTestServer(store sales.Store, opts Options) *Server {
	if opts.CacheSize == 0 {
		opts.CacheSize = 16
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Minute
	}
	return NewServer(":0", store, opts)
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleMetadata(t *testing.T) {
	s := newTestServer(newFakeStore(), Options{})

	rec := get(t, s, "/api/metadata")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/metadata status = %d, want 200", rec.Code)
	}

	var meta sales.Metadata
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if len(meta.Categories) != 2 || meta.Categories[0] != "Furniture" {
		t.Errorf("metadata categories = %v, want [Furniture Technology]", meta.Categories)
	}
	if len(meta.Years) != 2 || meta.Years[1] != 2023 {
		t.Errorf("metadata years = %v, want [2022 2023]", meta.Years)
	}
}

func TestHandleMetadata_MethodNotAllowed(t *testing.T) {
	s := newTestServer(newFakeStore(), Options{})

	rec := postJSON(t, s, "/api/metadata", "{}")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /api/metadata status = %d, want 405", rec.Code)
	}
}

func TestHandleSummary(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, Options{})

	rec := postJSON(t, s, "/api/summary", `{"categories":["Furniture"],"regions":null,"years":[2023]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/summary status = %d, want 200", rec.Code)
	}

	var got sales.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if got.TotalSales != 1000 || got.Orders != 20 {
		t.Errorf("summary = %+v, want TotalSales=1000 Orders=20", got)
	}

	if len(store.lastQ.Categories) != 1 || store.lastQ.Categories[0] != "Furniture" {
		t.Errorf("store saw categories %v, want [Furniture]", store.lastQ.Categories)
	}
	if store.lastQ.Regions != nil {
		t.Errorf("store saw regions %v, want nil", store.lastQ.Regions)
	}
	if len(store.lastQ.Years) != 1 || store.lastQ.Years[0] != 2023 {
		t.Errorf("store saw years %v, want [2023]", store.lastQ.Years)
	}
}

func TestHandleSummary_EmptyBodyIsUnrestricted(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, Options{})

	rec := postJSON(t, s, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/summary status = %d, want 200", rec.Code)
	}
	if !store.lastQ.Unrestricted() {
		t.Errorf("store saw query %+v, want unrestricted", store.lastQ)
	}
}

func TestHandleSummary_CachesByPredicate(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(store, Options{})

	body := `{"categories":["Furniture"]}`
	postJSON(t, s, "/api/summary", body)
	postJSON(t, s, "/api/summary", body)

	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1 (second request should hit cache)", store.calls)
	}

	postJSON(t, s, "/api/summary", `{"categories":["Technology"]}`)
	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2 (different predicate misses cache)", store.calls)
	}
}

func TestCachePurgeForcesRequery(t *testing.T) {
	store := newFakeStore()
	manager := cache.NewManager()
	s := newTestServer(store, Options{Caches: manager})

	postJSON(t, s, "/api/summary", "{}")
	manager.PurgeAll()
	postJSON(t, s, "/api/summary", "{}")

	if store.calls != 2 {
		t.Errorf("store calls = %d, want 2 after purge", store.calls)
	}
}

func TestHandleSalesByCategory_WrapsData(t *testing.T) {
	s := newTestServer(newFakeStore(), Options{})

	rec := postJSON(t, s, "/api/sales_by_category", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/sales_by_category status = %d, want 200", rec.Code)
	}

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if len(envelope.Data) != 1 {
		t.Fatalf("data rows = %d, want 1", len(envelope.Data))
	}
	row := envelope.Data[0]
	if row["Category"] != "Furniture" {
		t.Errorf(`row["Category"] = %v, want "Furniture"`, row["Category"])
	}
	if row["Sales"] != 500.0 {
		t.Errorf(`row["Sales"] = %v, want 500`, row["Sales"])
	}
}

func TestHandleMonthlyTrend_EmptyResultIsObject(t *testing.T) {
	store := newFakeStore()
	store.emptyTrend = true
	s := newTestServer(store, Options{})

	rec := postJSON(t, s, "/api/monthly_trend", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/monthly_trend status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"data":{}}` {
		t.Errorf("body = %s, want {\"data\":{}}", body)
	}
}

func TestStoreErrorsMapToDetail(t *testing.T) {
	store := newFakeStore()
	store.err = sales.ErrNoDataset
	s := newTestServer(store, Options{})

	rec := postJSON(t, s, "/api/summary", "{}")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var errBody struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if errBody.Detail != "Dataset not loaded." {
		t.Errorf("detail = %q, want %q", errBody.Detail, "Dataset not loaded.")
	}
}

func TestHandleDownload(t *testing.T) {
	t.Run("missing file returns 404", func(t *testing.T) {
		s := newTestServer(newFakeStore(), Options{DatasetCSVPath: "/nonexistent/sales.csv"})

		rec := get(t, s, "/api/download")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("serves CSV attachment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sales.csv")
		if err := os.WriteFile(path, []byte("Order ID,Sales\n1,10\n"), 0644); err != nil {
			t.Fatal(err)
		}
		s := newTestServer(newFakeStore(), Options{DatasetCSVPath: path})

		rec := get(t, s, "/api/download")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Content-Type = %q, want text/csv", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "global_sales_cleaned.csv") {
			t.Errorf("Content-Disposition = %q, want attachment filename", cd)
		}
	})
}

func TestHandlePredict(t *testing.T) {
	s := newTestServer(newFakeStore(), Options{})

	rec := postJSON(t, s, "/api/predict", `{"horizon": 3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Prediction any    `json:"prediction"`
		Note       string `json:"note"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal predict body: %v", err)
	}
	if body.Prediction != nil {
		t.Errorf("prediction = %v, want null", body.Prediction)
	}
	if body.Note == "" {
		t.Error("note should explain the missing model")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(newFakeStore(), Options{FrontendOrigin: "http://localhost:5173"})

	req := httptest.NewRequest(http.MethodOptions, "/api/summary", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q, want frontend origin", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Allow-Methods = %q, want POST included", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("1.2.3.4") {
		t.Error("request 61 within a minute should be rejected")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("different client should not share the limit")
	}
}
