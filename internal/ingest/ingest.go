// Package ingest cleans the raw Superstore CSV export into sales.Order
// records: trims headers, parses order dates, drops rows without a date or
// a sales figure, and derives the year and month columns the aggregation
// queries group on.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// The export uses US-style dates; older files occasionally carry ISO dates.
var dateLayouts = []string{"1/2/2006", "01/02/2006", "2006-01-02"}

// LoadAndClean reads and cleans the dataset file at path. The Superstore
// export is latin-1 encoded.
func LoadAndClean(path string) ([]sales.Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	orders, err := Clean(charmap.ISO8859_1.NewDecoder().Reader(f))
	if err != nil {
		return nil, fmt.Errorf("clean dataset %s: %w", path, err)
	}
	return orders, nil
}

// Clean parses CSV rows from r into cleaned orders. Rows missing an order
// date or a sales value are dropped rather than failing the import. When
// the file has no Order ID column, the row index stands in for it.
func Clean(r io.Reader) ([]sales.Order, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	dateIdx, hasDate := col["Order Date"]
	salesIdx, hasSales := col["Sales"]
	if !hasDate || !hasSales {
		return nil, fmt.Errorf("dataset missing required columns (Order Date, Sales), got %v", header)
	}
	orderIDIdx, hasOrderID := col["Order ID"]
	categoryIdx, hasCategory := col["Category"]
	regionIdx, hasRegion := col["Region"]
	profitIdx, hasProfit := col["Profit"]

	var orders []sales.Order
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		date, ok := parseDate(field(rec, dateIdx))
		if !ok {
			continue
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(field(rec, salesIdx)), 64)
		if err != nil {
			continue
		}

		o := sales.Order{
			OrderID:   strconv.Itoa(row),
			OrderDate: date,
			Year:      date.Year(),
			MonthNum:  int(date.Month()),
			MonthName: date.Month().String(),
			Sales:     amount,
		}
		if hasOrderID {
			if id := strings.TrimSpace(field(rec, orderIDIdx)); id != "" {
				o.OrderID = id
			}
		}
		if hasCategory {
			o.Category = strings.TrimSpace(field(rec, categoryIdx))
		}
		if hasRegion {
			o.Region = strings.TrimSpace(field(rec, regionIdx))
		}
		if hasProfit {
			if p, err := strconv.ParseFloat(strings.TrimSpace(field(rec, profitIdx)), 64); err == nil {
				o.Profit = p
			}
		}
		orders = append(orders, o)
	}

	return orders, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
