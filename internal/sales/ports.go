package sales

import "context"

// Ports for the aggregation service's data backend.
type (
	// MetadataReader returns the distinct filter values present in the
	// dataset. An empty dataset yields empty metadata, not an error.
	MetadataReader interface {
		Metadata(ctx context.Context) (Metadata, error)
	}

	// Aggregator computes the four dashboard views for a filter predicate.
	Aggregator interface {
		Summary(ctx context.Context, q Query) (Summary, error)
		SalesByCategory(ctx context.Context, q Query) ([]CategorySales, error)
		SalesByRegion(ctx context.Context, q Query) ([]RegionSales, error)
		// MonthlyTrend maps a year label ("2022") to its chronological
		// month series.
		MonthlyTrend(ctx context.Context, q Query) (map[string][]MonthlySales, error)
	}

	// Store is the full backend consumed by the HTTP layer.
	Store interface {
		MetadataReader
		Aggregator
	}
)
