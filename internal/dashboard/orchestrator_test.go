package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// fakeQuerier answers aggregation requests with values derived from the
// predicate, so tests can tell which generation produced a view. Individual
// endpoints can be gated on a channel or forced to fail.
type fakeQuerier struct {
	mu      sync.Mutex
	meta    sales.Metadata
	metaErr error
	fail    map[string]error
	gates   map[string]chan struct{}
	hold    bool
	blocked map[string][]chan struct{}
	calls   map[string]int
}

func newFakeQuerier(meta sales.Metadata) *fakeQuerier {
	return &fakeQuerier{
		meta:    meta,
		fail:    map[string]error{},
		gates:   map[string]chan struct{}{},
		blocked: map[string][]chan struct{}{},
		calls:   map[string]int{},
	}
}

func (f *fakeQuerier) enter(endpoint string) error {
	f.mu.Lock()
	f.calls[endpoint]++
	gate := f.gates[endpoint]
	err := f.fail[endpoint]
	var own chan struct{}
	if f.hold {
		own = make(chan struct{})
		f.blocked[endpoint] = append(f.blocked[endpoint], own)
	}
	f.mu.Unlock()
	if own != nil {
		<-own
	}
	if gate != nil {
		<-gate
	}
	return err
}

// holdCalls blocks every subsequent request on its own channel so tests can
// release individual calls by arrival order.
func (f *fakeQuerier) holdCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = true
}

func (f *fakeQuerier) releaseCall(endpoint string, idx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.blocked[endpoint][idx])
}

func (f *fakeQuerier) blockedCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blocked[endpoint])
}

func (f *fakeQuerier) failWith(endpoint string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[endpoint] = err
}

func (f *fakeQuerier) gate(endpoint string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[endpoint] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeQuerier) callCount(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[endpoint]
}

// marker encodes the predicate into result values: unrestricted queries
// yield 100, restricted ones 200.
func marker(q sales.Query) float64 {
	if q.Unrestricted() {
		return 100
	}
	return 200
}

func (f *fakeQuerier) Metadata(ctx context.Context) (sales.Metadata, error) {
	if f.metaErr != nil {
		return sales.Metadata{}, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeQuerier) Summary(ctx context.Context, q sales.Query) (sales.Summary, error) {
	if err := f.enter("summary"); err != nil {
		return sales.Summary{}, err
	}
	return sales.Summary{TotalSales: marker(q)}, nil
}

func (f *fakeQuerier) SalesByCategory(ctx context.Context, q sales.Query) ([]sales.CategorySales, error) {
	if err := f.enter("category"); err != nil {
		return nil, err
	}
	return []sales.CategorySales{{Category: "A", Sales: marker(q)}}, nil
}

func (f *fakeQuerier) SalesByRegion(ctx context.Context, q sales.Query) ([]sales.RegionSales, error) {
	if err := f.enter("region"); err != nil {
		return nil, err
	}
	return []sales.RegionSales{{Region: "East", Sales: marker(q)}}, nil
}

func (f *fakeQuerier) MonthlyTrend(ctx context.Context, q sales.Query) (map[string][]sales.MonthlySales, error) {
	if err := f.enter("trend"); err != nil {
		return nil, err
	}
	return map[string][]sales.MonthlySales{
		"2022": {{Month: "January", Sales: marker(q)}},
	}, nil
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.WaitIdle(ctx); err != nil {
		t.Fatalf("orchestrator never went idle: %v", err)
	}
}

func TestOrchestrator_BootstrapPopulatesView(t *testing.T) {
	f := newFakeQuerier(testMeta())
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	waitIdle(t, o)

	v := o.View()
	if v.Loading {
		t.Fatal("loading should be false once all four responses settled")
	}
	if v.Summary == nil || v.Summary.TotalSales != 100 {
		t.Fatalf("summary not populated from unrestricted query: %+v", v.Summary)
	}
	if len(v.Categories) != 1 || len(v.Regions) != 1 || len(v.Trend) != 1 {
		t.Fatalf("expected all slots populated, got %+v", v)
	}
}

func TestOrchestrator_BootstrapFailureLeavesQuietDashboard(t *testing.T) {
	f := newFakeQuerier(testMeta())
	f.metaErr = errors.New("metadata unavailable")
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err == nil {
		t.Fatal("expected bootstrap error")
	}

	// No metadata means no predicate: toggles are no-ops and nothing is
	// ever dispatched.
	if o.Toggle(context.Background(), DimCategory, "A") {
		t.Fatal("toggle should be a no-op without metadata")
	}
	if o.ToggleAll(context.Background(), DimRegion) {
		t.Fatal("toggleAll should be a no-op without metadata")
	}
	if n := f.callCount("summary"); n != 0 {
		t.Fatalf("expected zero dispatches, summary was called %d times", n)
	}
	if v := o.View(); v.Loading || v.Summary != nil {
		t.Fatalf("view should stay empty and idle, got %+v", v)
	}
}

func TestOrchestrator_StaleResponseDiscarded(t *testing.T) {
	f := newFakeQuerier(testMeta())
	o := New(f, nil)

	// Block every endpoint so the bootstrap group stays in flight.
	gates := []chan struct{}{
		f.gate("summary"), f.gate("category"), f.gate("region"), f.gate("trend"),
	}

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Supersede the outstanding generation before any response lands.
	if !o.Toggle(context.Background(), DimCategory, "A") {
		t.Fatal("toggle should change the selection")
	}

	// Release everything: both generations now race to the reconciler.
	for _, g := range gates {
		close(g)
	}
	waitIdle(t, o)

	v := o.View()
	if v.Summary == nil || v.Summary.TotalSales != 200 {
		t.Fatalf("stale unrestricted response overwrote newer data: %+v", v.Summary)
	}
	if v.Categories[0].Sales != 200 || v.Regions[0].Sales != 200 {
		t.Fatalf("stale rows leaked into view: %+v", v)
	}
	if v.Trend["2022"][0].Sales != 200 {
		t.Fatalf("stale trend leaked into view: %+v", v.Trend)
	}
}

func TestOrchestrator_PartialFailureIsolation(t *testing.T) {
	f := newFakeQuerier(testMeta())
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	waitIdle(t, o)

	// Second generation: region endpoint fails, the rest succeed.
	f.failWith("region", errors.New("region backend down"))
	o.Toggle(context.Background(), DimCategory, "A")
	waitIdle(t, o)

	v := o.View()
	if v.Summary.TotalSales != 200 || v.Categories[0].Sales != 200 {
		t.Fatalf("surviving slots should update: %+v", v)
	}
	if v.Trend["2022"][0].Sales != 200 {
		t.Fatalf("trend slot should update: %+v", v.Trend)
	}
	// The failed slot keeps the last good render instead of blanking.
	if len(v.Regions) != 1 || v.Regions[0].Sales != 100 {
		t.Fatalf("region slot should retain previous value, got %+v", v.Regions)
	}
	if v.Loading {
		t.Fatal("a failed endpoint still settles its group")
	}
}

func TestOrchestrator_LoadingClearsOnlyWhenGroupSettles(t *testing.T) {
	f := newFakeQuerier(testMeta())
	trendGate := f.gate("trend")
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Three of four responses are in; the group must still be loading.
	deadline := time.After(2 * time.Second)
	for o.View().Summary == nil {
		select {
		case <-deadline:
			t.Fatal("summary never arrived")
		case <-time.After(time.Millisecond):
		}
	}
	if v := o.View(); !v.Loading {
		t.Fatal("loading cleared before the full group settled")
	}

	close(trendGate)
	waitIdle(t, o)
	if v := o.View(); v.Loading {
		t.Fatal("loading should clear once the last response settles")
	}
}

func waitForBlocked(t *testing.T, f *fakeQuerier, endpoint string, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for f.blockedCount(endpoint) < n {
		select {
		case <-deadline:
			t.Fatalf("%s: only %d of %d requests arrived", endpoint, f.blockedCount(endpoint), n)
		case <-time.After(time.Millisecond):
		}
	}
}

var endpoints = []string{"summary", "category", "region", "trend"}

// A refresh reuses the filter generation, so the old and new request groups
// share it. Settling the superseded group must not clear the loading flag
// while the latest group is still in flight.
func TestOrchestrator_RefreshKeepsLoadingUntilLatestGroupSettles(t *testing.T) {
	f := newFakeQuerier(testMeta())
	f.holdCalls()
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, ep := range endpoints {
		waitForBlocked(t, f, ep, 1)
	}
	o.Refresh(context.Background())
	for _, ep := range endpoints {
		waitForBlocked(t, f, ep, 2)
	}

	// Settle only the first group's four requests.
	for _, ep := range endpoints {
		f.releaseCall(ep, 0)
	}

	// Their responses carry the current generation, so they reconcile into
	// the view; wait until all four have landed.
	deadline := time.After(2 * time.Second)
	for {
		v := o.View()
		if v.Summary != nil && len(v.Categories) == 1 && len(v.Regions) == 1 && len(v.Trend) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first group's responses never reconciled")
		case <-time.After(time.Millisecond):
		}
	}
	if v := o.View(); !v.Loading {
		t.Fatal("loading cleared while the latest group is still in flight")
	}

	for _, ep := range endpoints {
		f.releaseCall(ep, 1)
	}
	waitIdle(t, o)
	if v := o.View(); v.Loading {
		t.Fatal("loading should clear once the latest group settles")
	}
}

// A waiter parked before a filter change must wake once the newer group
// settles, even though the group it armed on never will.
func TestOrchestrator_WaitIdleFollowsSupersededGroup(t *testing.T) {
	f := newFakeQuerier(testMeta())
	f.holdCalls()
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		waitErr <- o.WaitIdle(ctx)
	}()

	for _, ep := range endpoints {
		waitForBlocked(t, f, ep, 1)
	}
	if !o.Toggle(context.Background(), DimCategory, "A") {
		t.Fatal("toggle should change the selection")
	}
	for _, ep := range endpoints {
		waitForBlocked(t, f, ep, 2)
	}

	// Settle only the second group; the bootstrap group stays in flight.
	for _, ep := range endpoints {
		f.releaseCall(ep, 1)
	}

	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("WaitIdle returned %v after the latest group settled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitIdle stayed parked on the superseded group")
	}
	if v := o.View(); v.Loading {
		t.Fatal("loading should be false once the latest group settled")
	}

	for _, ep := range endpoints {
		f.releaseCall(ep, 0)
	}
}

func TestOrchestrator_RefreshReissuesCurrentPredicate(t *testing.T) {
	f := newFakeQuerier(testMeta())
	o := New(f, nil)

	if err := o.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	waitIdle(t, o)

	before := f.callCount("summary")
	o.Refresh(context.Background())
	waitIdle(t, o)

	if got := f.callCount("summary"); got != before+1 {
		t.Fatalf("refresh should issue one more summary call, got %d -> %d", before, got)
	}
	if gen := o.Generation(); gen != 1 {
		t.Fatalf("refresh must not bump the generation, got %d", gen)
	}
}
