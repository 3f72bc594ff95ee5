package dashboard

import (
	"context"
	"sync"

	applog "github.com/NikhilTanwar48/backend-global-sales/internal/log"
	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// slot identifies one of the four independently updated result holders.
type slot int

const (
	slotSummary slot = iota
	slotCategories
	slotRegions
	slotTrend
	slotCount
)

func (s slot) String() string {
	switch s {
	case slotSummary:
		return "summary"
	case slotCategories:
		return "categories"
	case slotRegions:
		return "regions"
	case slotTrend:
		return "trend"
	}
	return "unknown"
}

// View is the reconciled dashboard state consumed by rendering. Each result
// holder is nil until its first response arrives and keeps its last good
// value across failed refreshes.
type View struct {
	Summary    *sales.Summary
	Categories []sales.CategorySales
	Regions    []sales.RegionSales
	Trend      map[string][]sales.MonthlySales

	// Loading is true from the moment a request group is dispatched until
	// every request of the latest group has settled, success or failure.
	Loading bool
}

// Orchestrator owns the filter model and drives the aggregation queries.
//
// Every filter change derives a new predicate under a fresh generation and
// fires the four aggregation requests concurrently. In-flight requests of
// older generations are never cancelled; their responses are discarded on
// arrival instead. All state is serialized behind a single mutex, so the
// orchestrator is safe to use from multiple goroutines.
type Orchestrator struct {
	mu      sync.Mutex
	querier sales.Store
	model   *Model
	logger  *applog.Logger

	view       View
	slotGen    [slotCount]uint64
	dispatched uint64
	group      uint64
	remaining  int
	groupDone  chan struct{}
}

// New creates an orchestrator over the given querier. A nil logger falls
// back to the default configuration.
func New(querier sales.Store, logger *applog.Logger) *Orchestrator {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Orchestrator{
		querier: querier,
		model:   NewModel(),
		logger:  logger.WithComponent(applog.ComponentDashboard),
	}
}

// Bootstrap fetches the filter metadata once, seeds the all-selected
// initial state and dispatches the first request group. On failure the
// dashboard stays empty and alive; no retry is scheduled.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	meta, err := o.querier.Metadata(ctx)
	if err != nil {
		o.logger.ErrorContext(ctx, "Metadata bootstrap failed", applog.FieldError, err)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.model.SetMetadata(meta)
	o.logger.InfoContext(ctx, "Metadata loaded",
		"categories", len(meta.Categories),
		"regions", len(meta.Regions),
		"years", len(meta.Years))
	o.dispatchLocked(ctx)
	return nil
}

// SetMetadata replaces the metadata wholesale, reselects everything and
// refreshes. The model tolerates this at any time even though no automatic
// refetch is scheduled after bootstrap.
func (o *Orchestrator) SetMetadata(ctx context.Context, meta sales.Metadata) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.model.SetMetadata(meta)
	o.dispatchLocked(ctx)
}

// Toggle flips one filter value and, if the selection changed, dispatches a
// new request group. Unknown values are ignored.
func (o *Orchestrator) Toggle(ctx context.Context, dim Dimension, value string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.model.Toggle(dim, value) {
		return false
	}
	o.dispatchLocked(ctx)
	return true
}

// ToggleAll selects or clears a whole dimension and dispatches on change.
func (o *Orchestrator) ToggleAll(ctx context.Context, dim Dimension) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.model.ToggleAll(dim) {
		return false
	}
	o.dispatchLocked(ctx)
	return true
}

// Refresh re-issues the current predicate without changing the selection.
func (o *Orchestrator) Refresh(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatchLocked(ctx)
}

// View returns a snapshot of the reconciled state. Slices and maps are
// copied so callers cannot race with later reconciliation.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view.clone()
}

// Generation returns the current filter generation.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model.Generation()
}

// Metadata returns the currently loaded filter metadata.
func (o *Orchestrator) Metadata() sales.Metadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model.Metadata()
}

// Selected returns the current selection membership for a dimension.
func (o *Orchestrator) Selected(dim Dimension) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model.Selected(dim)
}

// Query returns the predicate derived from the current selection.
func (o *Orchestrator) Query() sales.Query {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model.Query()
}

// WaitIdle blocks until the latest dispatched request group has fully
// settled, or the context is done. It returns immediately when nothing is
// in flight.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	for {
		o.mu.Lock()
		if o.remaining == 0 {
			o.mu.Unlock()
			return nil
		}
		done := o.groupDone
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			// A newer group may have started meanwhile; re-check.
		}
	}
}

// dispatchLocked fires the four aggregation requests for the current
// predicate. Callers must hold o.mu. Dispatch is skipped while no metadata
// is loaded: without metadata there is no meaningful predicate to query.
func (o *Orchestrator) dispatchLocked(ctx context.Context) {
	if o.model.Metadata().IsEmpty() {
		return
	}

	gen := o.model.Generation()
	q := o.model.Query()

	// Wake WaitIdle callers parked on the superseded group; they re-check
	// and re-arm on the new channel.
	if o.remaining > 0 && o.groupDone != nil {
		close(o.groupDone)
	}

	// Each dispatch gets its own group id: a Refresh reuses the filter
	// generation, so the generation alone cannot account for the group.
	o.dispatched = gen
	o.group++
	o.remaining = int(slotCount)
	o.groupDone = make(chan struct{})
	o.view.Loading = true

	o.logger.DebugContext(ctx, "Dispatching request group",
		applog.FieldGeneration, gen,
		applog.FieldPredicate, q.Key())

	gid := o.group
	go func() {
		s, err := o.querier.Summary(ctx, q)
		o.apply(ctx, slotSummary, gen, gid, err, func(v *View) { v.Summary = &s })
	}()
	go func() {
		rows, err := o.querier.SalesByCategory(ctx, q)
		o.apply(ctx, slotCategories, gen, gid, err, func(v *View) { v.Categories = rows })
	}()
	go func() {
		rows, err := o.querier.SalesByRegion(ctx, q)
		o.apply(ctx, slotRegions, gen, gid, err, func(v *View) { v.Regions = rows })
	}()
	go func() {
		trend, err := o.querier.MonthlyTrend(ctx, q)
		o.apply(ctx, slotTrend, gen, gid, err, func(v *View) { v.Trend = trend })
	}()
}

// apply reconciles one response into the view. Cross-generation ordering is
// strictly enforced per slot; arrival order within a generation is
// irrelevant. Failed responses settle their group but leave the slot's last
// good value untouched.
func (o *Orchestrator) apply(ctx context.Context, s slot, gen, gid uint64, err error, update func(*View)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Only responses of the latest dispatched group settle the counter; a
	// superseded group sharing the same generation must not.
	if gid == o.group && o.remaining > 0 {
		o.remaining--
		if o.remaining == 0 {
			o.view.Loading = false
			close(o.groupDone)
		}
	}

	// A response is stale when a newer predicate has been dispatched since,
	// even if that newer response has not arrived yet. The per-slot check is
	// kept as well so the invariant survives any future cancellation rework.
	if gen < o.dispatched || gen < o.slotGen[s] {
		o.logger.DebugContext(ctx, "Discarding stale response",
			applog.FieldSlot, s.String(),
			applog.FieldGeneration, gen,
			"dispatched", o.dispatched)
		return
	}

	if err != nil {
		o.logger.ErrorContext(ctx, "Aggregation request failed",
			applog.FieldSlot, s.String(),
			applog.FieldGeneration, gen,
			applog.FieldError, err)
		return
	}

	update(&o.view)
	o.slotGen[s] = gen
}

func (v View) clone() View {
	out := View{Loading: v.Loading}
	if v.Summary != nil {
		s := *v.Summary
		out.Summary = &s
	}
	if v.Categories != nil {
		out.Categories = make([]sales.CategorySales, len(v.Categories))
		copy(out.Categories, v.Categories)
	}
	if v.Regions != nil {
		out.Regions = make([]sales.RegionSales, len(v.Regions))
		copy(out.Regions, v.Regions)
	}
	if v.Trend != nil {
		out.Trend = make(map[string][]sales.MonthlySales, len(v.Trend))
		for year, points := range v.Trend {
			series := make([]sales.MonthlySales, len(points))
			copy(series, points)
			out.Trend[year] = series
		}
	}
	return out
}
