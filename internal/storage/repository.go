package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the imported sales dataset and computes the
// dashboard aggregations with SQL.
type SQLiteRepository struct {
	db *sql.DB
}

var _ sales.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ReplaceOrders swaps the full dataset in one transaction.
func (r *SQLiteRepository) ReplaceOrders(ctx context.Context, orders []sales.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders`); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders (order_id, order_date, year, month_num, month_name, category, region, sales, profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx,
			o.OrderID, o.OrderDate, o.Year, o.MonthNum, o.MonthName,
			o.Category, o.Region, o.Sales, o.Profit); err != nil {
			return fmt.Errorf("insert order %s: %w", o.OrderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}

	slog.InfoContext(ctx, "Dataset replaced", "rows", len(orders))
	return nil
}

// CountOrders returns the number of stored records.
func (r *SQLiteRepository) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// Metadata implements sales.MetadataReader. An empty dataset yields empty
// lists, never an error.
func (r *SQLiteRepository) Metadata(ctx context.Context) (sales.Metadata, error) {
	meta := sales.Metadata{
		Categories: []string{},
		Regions:    []string{},
		Years:      []int{},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT category FROM orders ORDER BY category`)
	if err != nil {
		return meta, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return meta, fmt.Errorf("scan category: %w", err)
		}
		meta.Categories = append(meta.Categories, c)
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("iterate categories: %w", err)
	}

	regionRows, err := r.db.QueryContext(ctx, `SELECT DISTINCT region FROM orders ORDER BY region`)
	if err != nil {
		return meta, fmt.Errorf("query regions: %w", err)
	}
	defer regionRows.Close()
	for regionRows.Next() {
		var reg string
		if err := regionRows.Scan(&reg); err != nil {
			return meta, fmt.Errorf("scan region: %w", err)
		}
		meta.Regions = append(meta.Regions, reg)
	}
	if err := regionRows.Err(); err != nil {
		return meta, fmt.Errorf("iterate regions: %w", err)
	}

	yearRows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM orders ORDER BY year`)
	if err != nil {
		return meta, fmt.Errorf("query years: %w", err)
	}
	defer yearRows.Close()
	for yearRows.Next() {
		var y int
		if err := yearRows.Scan(&y); err != nil {
			return meta, fmt.Errorf("scan year: %w", err)
		}
		meta.Years = append(meta.Years, y)
	}
	if err := yearRows.Err(); err != nil {
		return meta, fmt.Errorf("iterate years: %w", err)
	}

	return meta, nil
}

// Summary implements sales.Aggregator.
func (r *SQLiteRepository) Summary(ctx context.Context, q sales.Query) (sales.Summary, error) {
	if err := r.requireDataset(ctx); err != nil {
		return sales.Summary{}, err
	}

	where, args := buildWhere(q)
	query := `
		SELECT COALESCE(SUM(sales), 0),
		       COALESCE(SUM(profit), 0),
		       COALESCE(AVG(sales), 0),
		       COUNT(DISTINCT order_id)
		FROM orders` + where

	var s sales.Summary
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&s.TotalSales, &s.TotalProfit, &s.AvgOrderValue, &s.Orders)
	if err != nil {
		return sales.Summary{}, fmt.Errorf("query summary: %w", err)
	}
	return s, nil
}

// SalesByCategory implements sales.Aggregator.
func (r *SQLiteRepository) SalesByCategory(ctx context.Context, q sales.Query) ([]sales.CategorySales, error) {
	if err := r.requireDataset(ctx); err != nil {
		return nil, err
	}

	where, args := buildWhere(q)
	query := `
		SELECT category, SUM(sales), SUM(profit)
		FROM orders` + where + `
		GROUP BY category
		ORDER BY category`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales by category: %w", err)
	}
	defer rows.Close()

	out := []sales.CategorySales{}
	for rows.Next() {
		var row sales.CategorySales
		if err := rows.Scan(&row.Category, &row.Sales, &row.Profit); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return out, nil
}

// SalesByRegion implements sales.Aggregator.
func (r *SQLiteRepository) SalesByRegion(ctx context.Context, q sales.Query) ([]sales.RegionSales, error) {
	if err := r.requireDataset(ctx); err != nil {
		return nil, err
	}

	where, args := buildWhere(q)
	query := `
		SELECT region, SUM(sales)
		FROM orders` + where + `
		GROUP BY region
		ORDER BY region`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales by region: %w", err)
	}
	defer rows.Close()

	out := []sales.RegionSales{}
	for rows.Next() {
		var row sales.RegionSales
		if err := rows.Scan(&row.Region, &row.Sales); err != nil {
			return nil, fmt.Errorf("scan region row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate region rows: %w", err)
	}
	return out, nil
}

// MonthlyTrend implements sales.Aggregator. Series are chronological within
// each year because rows are ordered by (year, month_num).
func (r *SQLiteRepository) MonthlyTrend(ctx context.Context, q sales.Query) (map[string][]sales.MonthlySales, error) {
	if err := r.requireDataset(ctx); err != nil {
		return nil, err
	}

	where, args := buildWhere(q)
	query := `
		SELECT year, month_name, SUM(sales)
		FROM orders` + where + `
		GROUP BY year, month_num, month_name
		ORDER BY year, month_num`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query monthly trend: %w", err)
	}
	defer rows.Close()

	out := map[string][]sales.MonthlySales{}
	for rows.Next() {
		var year int
		var point sales.MonthlySales
		if err := rows.Scan(&year, &point.Month, &point.Sales); err != nil {
			return nil, fmt.Errorf("scan trend row: %w", err)
		}
		label := strconv.Itoa(year)
		out[label] = append(out[label], point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend rows: %w", err)
	}
	return out, nil
}

// requireDataset mirrors the service contract: aggregations against an
// unloaded dataset fail, while metadata degrades to empty lists.
func (r *SQLiteRepository) requireDataset(ctx context.Context) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders)`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check dataset presence: %w", err)
	}
	if exists == 0 {
		return sales.ErrNoDataset
	}
	return nil
}

// buildWhere turns a predicate into a WHERE clause. Nil slices restrict
// nothing; non-empty slices become IN filters.
func buildWhere(q sales.Query) (string, []any) {
	var conds []string
	var args []any

	if len(q.Categories) > 0 {
		conds = append(conds, "category IN ("+placeholders(len(q.Categories))+")")
		for _, c := range q.Categories {
			args = append(args, c)
		}
	}
	if len(q.Regions) > 0 {
		conds = append(conds, "region IN ("+placeholders(len(q.Regions))+")")
		for _, reg := range q.Regions {
			args = append(args, reg)
		}
	}
	if len(q.Years) > 0 {
		conds = append(conds, "year IN ("+placeholders(len(q.Years))+")")
		for _, y := range q.Years {
			args = append(args, y)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
