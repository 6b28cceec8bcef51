// Package domain models gridded surface observations and their aggregation
// into per-region daily statistics.
//
// # Grid indexing
//
// The observation grid is defined by a fixed 2D latitude/longitude array
// distributed alongside the data. Flattening that array in row-major order
// assigns every cell a stable integer index:
//
//	grid_idx = row*nx + col, for row 0..ny-1, col 0..nx-1
//
// grid_idx is a property of the coordinate array's shape and ordering, not of
// geography. Replacing the coordinate file invalidates every cached mapping
// and observation artifact keyed by grid_idx.
//
// # Region mapping
//
// Each grid point is assigned to at most one administrative region by strict
// interior point-in-polygon containment against the region boundary set.
// Points over open water, outside the boundary coverage, or lying exactly on
// a boundary line stay unassigned. That is documented behavior: the mapping
// stores an explicit null region rather than a sentinel, and every consumer
// must handle the unmapped case.
//
// # Variable classes
//
// Aggregation semantics differ by the physical nature of a variable:
//
//	accumulation (precipitation, fresh snow): a missing observation means the
//	  phenomenon did not occur, so missing values are zeroed before summing.
//	continuous (air temperature): a missing observation is an instrument or
//	  transmission gap, so missing values are excluded from the mean rather
//	  than zeroed, which would bias partial coverage toward zero.
//
// The variable registry in this package makes those choices explicit per
// variable instead of inferring them from naming conventions.
//
// # Two-phase pipeline
//
// Acquisition (phase A) fetches raw grids from the upstream API and persists
// one immutable artifact per (date, variable). Processing (phase B) reads
// only those artifacts, aggregates them per region, and writes one daily
// output table per date. The phases communicate solely through the published
// artifacts; phase B never triggers a fetch.
package domain
