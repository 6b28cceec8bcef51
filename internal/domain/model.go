package domain

import "sort"

// GridPoint is one cell of the flattened coordinate grid.
type GridPoint struct {
	GridIdx int64
	Lat     float64
	Lon     float64
}

// MappingRow associates one grid point with at most one administrative
// region. RegionCode and RegionName are nil when no boundary strictly
// contains the point.
type MappingRow struct {
	GridIdx    int64   `parquet:"grid_idx"`
	Lat        float64 `parquet:"lat"`
	Lon        float64 `parquet:"lon"`
	RegionCode *string `parquet:"region_code,optional"`
	RegionName *string `parquet:"region_name,optional"`
}

// Mapping is the full grid-to-region correspondence, indexed for lookup.
// It is immutable after construction; rebuilds replace it wholesale.
type Mapping struct {
	rows   []MappingRow
	byIdx  map[int64]int
	byCode map[string]string // region_code -> region_name
}

// NewMapping indexes mapping rows for grid and region lookups.
func NewMapping(rows []MappingRow) *Mapping {
	m := &Mapping{
		rows:   rows,
		byIdx:  make(map[int64]int, len(rows)),
		byCode: make(map[string]string),
	}
	for i, r := range rows {
		m.byIdx[r.GridIdx] = i
		if r.RegionCode != nil && r.RegionName != nil {
			m.byCode[*r.RegionCode] = *r.RegionName
		}
	}
	return m
}

// Rows returns the underlying mapping rows in grid order.
func (m *Mapping) Rows() []MappingRow { return m.rows }

// Len returns the number of grid points in the mapping.
func (m *Mapping) Len() int { return len(m.rows) }

// RegionFor returns the region code containing the grid point, or ok=false
// when the point is unmapped or unknown.
func (m *Mapping) RegionFor(gridIdx int64) (code string, ok bool) {
	i, known := m.byIdx[gridIdx]
	if !known || m.rows[i].RegionCode == nil {
		return "", false
	}
	return *m.rows[i].RegionCode, true
}

// RegionName returns the name recorded for a region code, or ok=false for an
// unknown code.
func (m *Mapping) RegionName(code string) (string, bool) {
	name, ok := m.byCode[code]
	return name, ok
}

// MappedCount returns how many grid points have a region assignment.
func (m *Mapping) MappedCount() int {
	n := 0
	for _, r := range m.rows {
		if r.RegionCode != nil {
			n++
		}
	}
	return n
}

// UnmappedCount returns how many grid points have no region assignment.
func (m *Mapping) UnmappedCount() int { return len(m.rows) - m.MappedCount() }

// ObservationRow is one grid point's value at one observation time.
// Value is nil when the upstream grid reported a missing or sentinel value.
type ObservationRow struct {
	GridIdx int64    `parquet:"grid_idx"`
	Date    string   `parquet:"date"`
	Hour    int32    `parquet:"hour"`
	Value   *float64 `parquet:"value,optional"`
}

// ObservationFrame holds one acquisition unit: every grid point's values for
// one (date, variable). Immutable once persisted.
type ObservationFrame struct {
	Date     Date
	Variable string
	Rows     []ObservationRow
}

// RegionDailyAggregate is one aggregated statistic for one
// (date, variable, region).
type RegionDailyAggregate struct {
	Date       Date
	Variable   string
	RegionCode string
	Value      float64
	Points     int // grid points that contributed to Value
}

// DailyRow is one region's row in a daily output table. Values holds one
// entry per variable column; a nil value means the variable produced no
// aggregate for this region on this date.
type DailyRow struct {
	RegionCode string
	RegionName *string
	Values     map[string]*float64
}

// DailyTable is the wide per-date output: one row per region, one column per
// variable, identifier columns first. Rows are ordered by region code and
// Variables carries the canonical column order.
type DailyTable struct {
	Date      Date
	Variables []string
	Rows      []DailyRow
}

// Row returns the row for a region code, or nil if the region is absent.
func (t *DailyTable) Row(regionCode string) *DailyRow {
	i := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].RegionCode >= regionCode })
	if i < len(t.Rows) && t.Rows[i].RegionCode == regionCode {
		return &t.Rows[i]
	}
	return nil
}
