// Package aggregate turns per-grid observation frames into per-region daily
// statistics and assembles the wide daily output table.
package aggregate

import (
	"sort"

	"gridfusion/internal/domain"
)

// SpatialAggregator joins observation frames to the grid-region mapping and
// aggregates values per region.
type SpatialAggregator struct {
	mapping *domain.Mapping
}

// NewSpatialAggregator creates an aggregator over an immutable mapping.
func NewSpatialAggregator(mapping *domain.Mapping) *SpatialAggregator {
	return &SpatialAggregator{mapping: mapping}
}

// Aggregate reduces one observation frame to per-region daily statistics:
// reduce each grid point's hours to a daily value, join to the mapping,
// drop rows with no region, and aggregate per region with the variable's
// statistic. Unmapped points contribute to no region. A region with zero
// contributing points yields no row at all, never a zero.
func (a *SpatialAggregator) Aggregate(frame domain.ObservationFrame, v domain.Variable) []domain.RegionDailyAggregate {
	daily := reduceDaily(frame.Rows, v)

	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[string]*acc)
	for gridIdx, val := range daily {
		code, ok := a.mapping.RegionFor(gridIdx)
		if !ok {
			continue
		}
		if val == nil {
			// Continuous variables exclude missing inputs from the statistic
			// rather than zeroing them. Accumulation dailies are never nil.
			continue
		}
		g := groups[code]
		if g == nil {
			g = &acc{}
			groups[code] = g
		}
		g.sum += *val
		g.n++
	}

	out := make([]domain.RegionDailyAggregate, 0, len(groups))
	for code, g := range groups {
		value := g.sum
		if v.Statistic == domain.StatMean {
			value = g.sum / float64(g.n)
		}
		out = append(out, domain.RegionDailyAggregate{
			Date:       frame.Date,
			Variable:   v.Key,
			RegionCode: code,
			Value:      value,
			Points:     g.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionCode < out[j].RegionCode })
	return out
}

// reduceDaily collapses a grid point's observation hours into one daily
// value, applying the class's missing-value policy:
//
//	accumulation: missing hours count as zero occurrence, so every grid
//	  point with any row yields a value, possibly 0.
//	continuous: missing hours are excluded; a point with no present hour
//	  yields nil.
func reduceDaily(rows []domain.ObservationRow, v domain.Variable) map[int64]*float64 {
	type acc struct {
		sum float64
		n   int
	}
	byGrid := make(map[int64]*acc)
	for _, r := range rows {
		g := byGrid[r.GridIdx]
		if g == nil {
			g = &acc{}
			byGrid[r.GridIdx] = g
		}
		switch {
		case r.Value != nil:
			g.sum += *r.Value
			g.n++
		case v.Class == domain.ClassAccumulation:
			// No signal means no occurrence: zero contributes to the sum
			// without disturbing it, and the point still counts as observed.
			g.n++
		}
	}

	out := make(map[int64]*float64, len(byGrid))
	for gridIdx, g := range byGrid {
		if v.Class == domain.ClassContinuous && g.n == 0 {
			out[gridIdx] = nil
			continue
		}
		value := g.sum
		if v.Statistic == domain.StatMean && g.n > 0 {
			value = g.sum / float64(g.n)
		}
		out[gridIdx] = &value
	}
	return out
}
