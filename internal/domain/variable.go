package domain

import "fmt"

// VariableClass determines the missing-value policy during aggregation.
type VariableClass string

const (
	// ClassAccumulation treats a missing value as zero occurrence.
	ClassAccumulation VariableClass = "accumulation"
	// ClassContinuous excludes missing values from the statistic.
	ClassContinuous VariableClass = "continuous"
)

// Statistic is the reduction applied within a day and across a region.
type Statistic string

const (
	StatSum  Statistic = "sum"
	StatMean Statistic = "mean"
)

// Variable describes one observed quantity and how it aggregates.
type Variable struct {
	Key         string
	Name        string
	Unit        string
	Class       VariableClass
	Statistic   Statistic
	HoursPerDay int  // 24 for hourly grids, 8 for 3-hourly
	Seasonal    bool // not produced June through September
	StartYear   int  // first year the upstream produces it, 0 = always
}

// IntervalHours returns the observation interval in hours.
func (v Variable) IntervalHours() int { return 24 / v.HoursPerDay }

// ObservationHours returns the hours of day at which the variable is
// observed, e.g. 0..23 for hourly or 0,3,..,21 for 3-hourly grids.
func (v Variable) ObservationHours() []int {
	step := v.IntervalHours()
	hours := make([]int, 0, v.HoursPerDay)
	for h := 0; h < 24; h += step {
		hours = append(hours, h)
	}
	return hours
}

// AvailableOn reports whether the upstream produces this variable on the
// given date. Seasonal variables are not produced June through September,
// and nothing exists before the variable's start year.
func (v Variable) AvailableOn(d Date) bool {
	if v.StartYear > 0 && d.Year() < v.StartYear {
		return false
	}
	if v.Seasonal {
		m := d.Month()
		if m >= 6 && m <= 9 {
			return false
		}
	}
	return true
}

// registry holds every known variable in canonical column order.
// The order fixes output table columns: temperature, then precipitation,
// then snow. A new entry also needs a column in store.DailyRecord; the
// store's schema coverage test catches a registry entry without one.
var registry = []Variable{
	{Key: "ta", Name: "air temperature", Unit: "degC", Class: ClassContinuous, Statistic: StatMean, HoursPerDay: 24},
	{Key: "rn_60m", Name: "60-minute precipitation", Unit: "mm", Class: ClassAccumulation, Statistic: StatSum, HoursPerDay: 24},
	{Key: "sd_3hr", Name: "3-hour fresh snow depth", Unit: "cm", Class: ClassAccumulation, Statistic: StatSum, HoursPerDay: 8, Seasonal: true, StartYear: 2020},
}

// VariableByKey resolves a variable key against the registry.
// Unknown keys are a configuration error, never a guess.
func VariableByKey(key string) (Variable, error) {
	for _, v := range registry {
		if v.Key == key {
			return v, nil
		}
	}
	return Variable{}, fmt.Errorf("unknown variable %q", key)
}

// AllVariables returns every registered variable in canonical order.
func AllVariables() []Variable {
	out := make([]Variable, len(registry))
	copy(out, registry)
	return out
}

// Variables resolves a list of keys, preserving request order.
func Variables(keys []string) ([]Variable, error) {
	out := make([]Variable, 0, len(keys))
	for _, k := range keys {
		v, err := VariableByKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CanonicalOrder returns the given variable keys sorted into registry order.
// Keys not in the registry keep their relative order after all known keys.
func CanonicalOrder(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	out := make([]string, 0, len(keys))
	for _, v := range registry {
		if seen[v.Key] {
			out = append(out, v.Key)
			seen[v.Key] = false
		}
	}
	for _, k := range keys {
		if seen[k] {
			out = append(out, k)
			seen[k] = false
		}
	}
	return out
}
