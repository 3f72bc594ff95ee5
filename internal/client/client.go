// Package client implements the HTTP consumer of the aggregation API. It is
// the transport behind the dashboard orchestrator: one method per endpoint,
// no retries, no cancellation beyond the caller's context.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// Client talks to a running aggregation server.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ sales.Store = (*Client)(nil)

// New returns a client for the API rooted at baseURL (e.g.
// "http://localhost:8080"). A nil httpClient gets a 15 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/api/health", &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", out.Status)
	}
	return nil
}

// Metadata fetches the selectable filter values.
func (c *Client) Metadata(ctx context.Context) (sales.Metadata, error) {
	var meta sales.Metadata
	if err := c.get(ctx, "/api/metadata", &meta); err != nil {
		return sales.Metadata{}, err
	}
	return meta, nil
}

// Summary fetches the KPI figures for a predicate.
func (c *Client) Summary(ctx context.Context, q sales.Query) (sales.Summary, error) {
	var out sales.Summary
	if err := c.post(ctx, "/api/summary", q, &out); err != nil {
		return sales.Summary{}, err
	}
	return out, nil
}

// SalesByCategory fetches the per-category breakdown. A missing data array
// decodes as an empty result, never an error.
func (c *Client) SalesByCategory(ctx context.Context, q sales.Query) ([]sales.CategorySales, error) {
	var out struct {
		Data []sales.CategorySales `json:"data"`
	}
	if err := c.post(ctx, "/api/sales_by_category", q, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []sales.CategorySales{}, nil
	}
	return out.Data, nil
}

// SalesByRegion fetches the per-region breakdown.
func (c *Client) SalesByRegion(ctx context.Context, q sales.Query) ([]sales.RegionSales, error) {
	var out struct {
		Data []sales.RegionSales `json:"data"`
	}
	if err := c.post(ctx, "/api/sales_by_region", q, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []sales.RegionSales{}, nil
	}
	return out.Data, nil
}

// MonthlyTrend fetches the per-year month series.
func (c *Client) MonthlyTrend(ctx context.Context, q sales.Query) (map[string][]sales.MonthlySales, error) {
	var out struct {
		Data map[string][]sales.MonthlySales `json:"data"`
	}
	if err := c.post(ctx, "/api/monthly_trend", q, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return map[string][]sales.MonthlySales{}, nil
	}
	return out.Data, nil
}

// DownloadURL returns the CSV export address. The export serves the
// service-default dataset and deliberately carries no filter state.
func (c *Client) DownloadURL() string {
	return c.baseURL + "/api/download"
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, q sales.Query, out any) error {
	body, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal predicate: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for a useful error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
