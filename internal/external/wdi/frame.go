package wdi

import (
	"math"
	"sort"
)

// Frame is a year-indexed table of indicator values.
// Rows are ordered most-recent-first, the order the WDI API returns.
// Missing observations are NaN.
type Frame struct {
	Years   []int
	columns map[string][]float64
}

// newFrame builds a Frame from per-indicator observations
func newFrame(series map[string][]Observation) *Frame {
	yearSet := make(map[int]struct{})
	for _, obs := range series {
		for _, o := range obs {
			yearSet[o.Year] = struct{}{}
		}
	}

	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	rowOf := make(map[int]int, len(years))
	for i, y := range years {
		rowOf[y] = i
	}

	f := &Frame{Years: years, columns: make(map[string][]float64, len(series))}
	for code, obs := range series {
		col := make([]float64, len(years))
		for i := range col {
			col[i] = math.NaN()
		}
		for _, o := range obs {
			if o.Value != nil {
				col[rowOf[o.Year]] = *o.Value
			}
		}
		f.columns[code] = col
	}

	return f
}

// NewFrame builds a Frame directly from columns aligned to years.
// years must already be most-recent-first.
func NewFrame(years []int, columns map[string][]float64) *Frame {
	f := &Frame{Years: years, columns: make(map[string][]float64, len(columns))}
	for name, col := range columns {
		f.columns[name] = col
	}
	return f
}

// Column returns the named column
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.columns[name]
	return col, ok
}

// Columns returns the column names in sorted order
func (f *Frame) Columns() []string {
	names := make([]string, 0, len(f.columns))
	for name := range f.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rename relabels columns using from -> to; unknown names are ignored
func (f *Frame) Rename(mapping map[string]string) {
	for from, to := range mapping {
		if col, ok := f.columns[from]; ok && from != to {
			delete(f.columns, from)
			f.columns[to] = col
		}
	}
}
