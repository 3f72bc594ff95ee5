package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// dataEnvelope wraps list and trend payloads the way the dashboard
// frontend expects them.
type dataEnvelope struct {
	Data any `json:"data"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	meta, err := s.store.Metadata(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	key := q.Key()
	if summary, found := s.summaryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Summary cache hit", "predicate", key)
		writeJSON(w, http.StatusOK, summary)
		return
	}

	summary, err := s.store.Summary(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	s.summaryCache.Set(key, summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSalesByCategory(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	key := q.Key()
	if rows, found := s.categoryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Category cache hit", "predicate", key)
		writeJSON(w, http.StatusOK, dataEnvelope{Data: rows})
		return
	}

	rows, err := s.store.SalesByCategory(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []sales.CategorySales{}
	}

	s.categoryCache.Set(key, rows)
	writeJSON(w, http.StatusOK, dataEnvelope{Data: rows})
}

func (s *Server) handleSalesByRegion(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	key := q.Key()
	if rows, found := s.regionCache.Get(key); found {
		slog.DebugContext(r.Context(), "Region cache hit", "predicate", key)
		writeJSON(w, http.StatusOK, dataEnvelope{Data: rows})
		return
	}

	rows, err := s.store.SalesByRegion(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []sales.RegionSales{}
	}

	s.regionCache.Set(key, rows)
	writeJSON(w, http.StatusOK, dataEnvelope{Data: rows})
}

func (s *Server) handleMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}

	key := q.Key()
	if trend, found := s.trendCache.Get(key); found {
		slog.DebugContext(r.Context(), "Trend cache hit", "predicate", key)
		writeJSON(w, http.StatusOK, dataEnvelope{Data: trend})
		return
	}

	trend, err := s.store.MonthlyTrend(r.Context(), q)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if trend == nil {
		trend = map[string][]sales.MonthlySales{}
	}

	s.trendCache.Set(key, trend)
	writeJSON(w, http.StatusOK, dataEnvelope{Data: trend})
}

// handleDownload serves the cleaned dataset as a CSV attachment. The
// export is the whole dataset, not the filtered view.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if _, err := os.Stat(s.datasetPath); err != nil {
		writeError(w, http.StatusNotFound, "Data file not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="global_sales_cleaned.csv"`)
	http.ServeFile(w, r, s.datasetPath)
}

// handlePredict is a placeholder until a forecasting model ships.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)

	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": nil,
		"note":       "No model deployed yet",
	})
}

// decodeQuery parses the filter predicate from a POST body. A missing or
// empty body means an unrestricted query.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (sales.Query, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return sales.Query{}, false
	}

	var q sales.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil && err != io.EOF {
		slog.WarnContext(r.Context(), "Invalid filter payload", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid filter payload")
		return sales.Query{}, false
	}
	return q, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sales.ErrNoDataset) {
		slog.WarnContext(r.Context(), "Query before dataset import", "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Dataset not loaded.")
		return
	}
	slog.ErrorContext(r.Context(), "Store query failed", "error", err, "url", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
