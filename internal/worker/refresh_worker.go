package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NikhilTanwar48/backend-global-sales/internal/amqp"
	"github.com/NikhilTanwar48/backend-global-sales/internal/cache"
	"github.com/NikhilTanwar48/backend-global-sales/internal/storage"
)

// RefreshWorker reacts to dataset refresh messages. Imports replace the
// orders table wholesale, so any cached aggregation is stale the moment a
// refresh lands and the worker purges them all.
type RefreshWorker struct {
	storage *storage.SQLiteRepository
	caches  *cache.Manager
}

func NewRefreshWorker(storage *storage.SQLiteRepository, caches *cache.Manager) *RefreshWorker {
	return &RefreshWorker{
		storage: storage,
		caches:  caches,
	}
}

// HandleRefreshMessage processes a single dataset refresh message.
func (w *RefreshWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.DatasetRefreshMessage) error {
	slog.InfoContext(ctx, "Processing dataset refresh",
		"rows", msg.Rows,
		"source", msg.Source,
		"published_at", msg.Timestamp)

	count, err := w.storage.CountOrders(ctx)
	if err != nil {
		return fmt.Errorf("count orders after refresh: %w", err)
	}
	if count != msg.Rows {
		// Another import may have landed between publish and consume.
		slog.WarnContext(ctx, "Stored row count differs from refresh message",
			"stored", count,
			"announced", msg.Rows)
	}

	w.caches.PurgeAll()
	slog.InfoContext(ctx, "Purged aggregation caches", "rows", count)

	return nil
}
