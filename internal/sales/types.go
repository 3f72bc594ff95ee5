package sales

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNoDataset is returned by stores when no dataset has been imported yet.
var ErrNoDataset = errors.New("dataset not loaded")

type (
	// Metadata lists the selectable values for each filter dimension.
	// It is replaced wholesale whenever the dataset changes.
	Metadata struct {
		Categories []string `json:"categories"`
		Regions    []string `json:"regions"`
		Years      []int    `json:"years"`
	}

	// Query is the filter predicate accepted by every aggregation endpoint.
	// A nil slice means "no restriction" on that dimension; a non-empty
	// slice restricts results to the listed values.
	Query struct {
		Categories []string `json:"categories"`
		Regions    []string `json:"regions"`
		Years      []int    `json:"years"`
	}

	// Summary holds the dashboard KPI figures for a filtered dataset.
	Summary struct {
		TotalSales    float64 `json:"total_sales"`
		TotalProfit   float64 `json:"total_profit"`
		AvgOrderValue float64 `json:"avg_order_value"`
		Orders        int64   `json:"orders"`
	}

	// CategorySales is one row of the per-category breakdown.
	CategorySales struct {
		Category string
		Sales    float64
		Profit   float64
	}

	// RegionSales is one row of the per-region breakdown.
	RegionSales struct {
		Region string
		Sales  float64
	}

	// MonthlySales is one point of the monthly trend, chronological
	// within its year.
	MonthlySales struct {
		Month string
		Sales float64
	}

	// Order is a single cleaned sales record as stored after import.
	Order struct {
		OrderID   string
		OrderDate time.Time
		Year      int
		MonthNum  int
		MonthName string
		Category  string
		Region    string
		Sales     float64
		Profit    float64
	}
)

// IsEmpty reports whether no filter values are available at all.
func (m Metadata) IsEmpty() bool {
	return len(m.Categories) == 0 && len(m.Regions) == 0 && len(m.Years) == 0
}

// Unrestricted reports whether the query restricts nothing.
func (q Query) Unrestricted() bool {
	return q.Categories == nil && q.Regions == nil && q.Years == nil
}

// Key returns a canonical string form of the query, usable as a cache key.
// Equal queries always produce equal keys.
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString("c=")
	b.WriteString(strings.Join(q.Categories, ","))
	b.WriteString("|r=")
	b.WriteString(strings.Join(q.Regions, ","))
	b.WriteString("|y=")
	for i, y := range q.Years {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(y))
	}
	return b.String()
}
