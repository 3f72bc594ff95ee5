package dashboard

import (
	"strconv"

	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// Dimension is one of the three axes a dashboard can filter on.
type Dimension string

const (
	DimCategory Dimension = "category"
	DimRegion   Dimension = "region"
	DimYear     Dimension = "year"
)

// Dimensions lists all filterable dimensions in display order.
var Dimensions = []Dimension{DimCategory, DimRegion, DimYear}

// Model owns the eligible values per dimension and the currently selected
// subset. Year values are handled as their decimal string form so the three
// dimensions share one toggle API; the predicate builder converts them back.
//
// Model is not safe for concurrent use; the Orchestrator serializes access.
type Model struct {
	meta     sales.Metadata
	selected map[Dimension]map[string]struct{}
	gen      uint64
}

// NewModel returns an empty model. No queries should be issued until
// SetMetadata has populated it.
func NewModel() *Model {
	return &Model{
		selected: map[Dimension]map[string]struct{}{
			DimCategory: {},
			DimRegion:   {},
			DimYear:     {},
		},
	}
}

// SetMetadata replaces the eligible values wholesale and resets the
// selection to "everything included". Values selected under previous
// metadata never survive the swap.
func (m *Model) SetMetadata(meta sales.Metadata) {
	m.meta = meta
	for _, dim := range Dimensions {
		m.selected[dim] = fullSet(m.values(dim))
	}
	m.gen++
}

// Metadata returns the current metadata.
func (m *Model) Metadata() sales.Metadata { return m.meta }

// Generation returns the monotonically increasing filter generation. It
// increments on every effective selection change and never repeats.
func (m *Model) Generation() uint64 { return m.gen }

// Values returns the eligible values for a dimension in metadata order.
func (m *Model) Values(dim Dimension) []string {
	vals := m.values(dim)
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Selected returns the actual selection membership for a dimension, in
// metadata order. It reflects real membership, never an "all" shorthand.
func (m *Model) Selected(dim Dimension) []string {
	set := m.selected[dim]
	var out []string
	for _, v := range m.values(dim) {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// AllSelected reports whether every eligible value of the dimension is
// currently selected.
func (m *Model) AllSelected(dim Dimension) bool {
	vals := m.values(dim)
	return len(vals) > 0 && len(m.selected[dim]) == len(vals)
}

// Toggle flips membership of a single value. Values outside the current
// metadata are ignored. Reports whether the selection changed.
func (m *Model) Toggle(dim Dimension, value string) bool {
	if !m.eligible(dim, value) {
		return false
	}
	set := m.selected[dim]
	if _, ok := set[value]; ok {
		delete(set, value)
	} else {
		set[value] = struct{}{}
	}
	m.gen++
	return true
}

// ToggleAll clears the selection when it already covers every eligible
// value, and otherwise replaces it with a snapshot of the full value set.
// Reports whether the selection changed.
func (m *Model) ToggleAll(dim Dimension) bool {
	vals := m.values(dim)
	if len(vals) == 0 {
		return false
	}
	if len(m.selected[dim]) == len(vals) {
		m.selected[dim] = map[string]struct{}{}
	} else {
		m.selected[dim] = fullSet(vals)
	}
	m.gen++
	return true
}

// Query derives the filter predicate from the current selection. An empty
// selection and a full selection both map to "no restriction": the service
// cannot tell them apart, and the dashboard deliberately preserves that.
func (m *Model) Query() sales.Query {
	var q sales.Query
	if vs := m.restricted(DimCategory); vs != nil {
		q.Categories = vs
	}
	if vs := m.restricted(DimRegion); vs != nil {
		q.Regions = vs
	}
	if vs := m.restricted(DimYear); vs != nil {
		q.Years = make([]int, 0, len(vs))
		for _, v := range vs {
			y, err := strconv.Atoi(v)
			if err != nil {
				continue // cannot happen: values come from metadata
			}
			q.Years = append(q.Years, y)
		}
	}
	return q
}

// restricted returns the explicit value list for a dimension, or nil when
// the selection is empty or covers the full value set.
func (m *Model) restricted(dim Dimension) []string {
	vals := m.values(dim)
	set := m.selected[dim]
	if len(set) == 0 || len(set) == len(vals) {
		return nil
	}
	out := make([]string, 0, len(set))
	for _, v := range vals {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (m *Model) values(dim Dimension) []string {
	switch dim {
	case DimCategory:
		return m.meta.Categories
	case DimRegion:
		return m.meta.Regions
	case DimYear:
		out := make([]string, len(m.meta.Years))
		for i, y := range m.meta.Years {
			out[i] = strconv.Itoa(y)
		}
		return out
	}
	return nil
}

func (m *Model) eligible(dim Dimension, value string) bool {
	for _, v := range m.values(dim) {
		if v == value {
			return true
		}
	}
	return false
}

func fullSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
