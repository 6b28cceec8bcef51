package aggregate

import (
	"sort"

	"gridfusion/internal/domain"
)

// MergeVariables outer-unions all aggregates for one date into a wide table:
// one row per region code, one column per variable. Identifier columns come
// first, then variables in the registry's canonical order; rows are ordered
// by region code, so identical inputs always produce an identical table.
func MergeVariables(date domain.Date, aggs []domain.RegionDailyAggregate) *domain.DailyTable {
	varSet := make(map[string]bool)
	values := make(map[string]map[string]*float64) // region -> variable -> value
	for _, a := range aggs {
		varSet[a.Variable] = true
		if values[a.RegionCode] == nil {
			values[a.RegionCode] = make(map[string]*float64)
		}
		v := a.Value
		values[a.RegionCode][a.Variable] = &v
	}

	varKeys := make([]string, 0, len(varSet))
	for k := range varSet {
		varKeys = append(varKeys, k)
	}
	varKeys = domain.CanonicalOrder(varKeys)

	codes := make([]string, 0, len(values))
	for code := range values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	rows := make([]domain.DailyRow, len(codes))
	for i, code := range codes {
		rowValues := make(map[string]*float64, len(varKeys))
		for _, k := range varKeys {
			rowValues[k] = values[code][k] // nil when the variable has no aggregate here
		}
		rows[i] = domain.DailyRow{RegionCode: code, Values: rowValues}
	}

	return &domain.DailyTable{Date: date, Variables: varKeys, Rows: rows}
}

// AttachRegionNames enriches a table with region names from the mapping.
// Codes the mapping does not know keep a nil name rather than failing.
func AttachRegionNames(t *domain.DailyTable, mapping *domain.Mapping) {
	for i := range t.Rows {
		if name, ok := mapping.RegionName(t.Rows[i].RegionCode); ok {
			n := name
			t.Rows[i].RegionName = &n
		}
	}
}
