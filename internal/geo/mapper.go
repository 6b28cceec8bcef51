package geo

import (
	"log/slog"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"

	"gridfusion/internal/domain"
	"gridfusion/internal/observability"
	"gridfusion/internal/store"
)

// gridProj is the reference system of the coordinate source. Boundaries are
// reprojected into it before containment testing.
const gridProj = "+proj=longlat +datum=WGS84 +no_defs"

// PointSource yields the flattened grid points.
type PointSource interface {
	Points() ([]domain.GridPoint, error)
}

// BoundarySource yields region polygons in the requested reference system.
type BoundarySource interface {
	Load(target *proj.SR) ([]RegionPolygon, error)
}

// Mapper builds and caches the grid-point to region correspondence.
type Mapper struct {
	points            PointSource
	boundaries        BoundarySource
	mappingFile       string
	coverageWarnRatio float64
	logger            *slog.Logger
	metrics           *observability.Metrics
}

// NewMapper creates a Mapper persisting to mappingFile.
func NewMapper(points PointSource, boundaries BoundarySource, mappingFile string, coverageWarnRatio float64, logger *slog.Logger, metrics *observability.Metrics) *Mapper {
	return &Mapper{
		points:            points,
		boundaries:        boundaries,
		mappingFile:       mappingFile,
		coverageWarnRatio: coverageWarnRatio,
		logger:            logger,
		metrics:           metrics,
	}
}

// BuildMapping returns the cached mapping when present and forceRebuild is
// false; otherwise it rebuilds from the coordinate and boundary sources and
// publishes the full result atomically. The build is single-threaded: its
// cost is amortized by the cache, not by parallelism.
func (m *Mapper) BuildMapping(forceRebuild bool) (*domain.Mapping, error) {
	if !forceRebuild && store.MappingExists(m.mappingFile) {
		rows, err := store.ReadMapping(m.mappingFile)
		if err != nil {
			return nil, err
		}
		mapping := domain.NewMapping(rows)
		m.logger.Info("loaded existing mapping",
			"path", m.mappingFile, "points", mapping.Len(), "mapped", mapping.MappedCount())
		m.observeCoverage(mapping)
		return mapping, nil
	}

	start := time.Now()

	points, err := m.points.Points()
	if err != nil {
		return nil, err
	}
	target, err := proj.Parse(gridProj)
	if err != nil {
		return nil, domain.ConfigErr("parse grid reference system", err)
	}
	polys, err := m.boundaries.Load(target)
	if err != nil {
		return nil, err
	}

	m.logger.Info("building grid-region mapping", "points", len(points), "regions", len(polys))

	rows := AssignRegions(points, polys)

	if err := store.WriteMapping(m.mappingFile, rows); err != nil {
		return nil, err
	}

	mapping := domain.NewMapping(rows)
	m.metrics.MappingBuildDuration.Observe(time.Since(start).Seconds())
	m.logger.Info("mapping build complete",
		"path", m.mappingFile,
		"mapped", mapping.MappedCount(),
		"unmapped", mapping.UnmappedCount(),
		"duration", time.Since(start),
	)
	m.observeCoverage(mapping)
	return mapping, nil
}

// observeCoverage exports mapped/unmapped counts and warns when the unmapped
// ratio exceeds the expected range. Unmapped points are normal (the grid
// covers open water); the warning is observability only, never a failure.
func (m *Mapper) observeCoverage(mapping *domain.Mapping) {
	mapped := mapping.MappedCount()
	unmapped := mapping.UnmappedCount()
	m.metrics.MappedPoints.Set(float64(mapped))
	m.metrics.UnmappedPoints.Set(float64(unmapped))

	if mapping.Len() == 0 {
		return
	}
	ratio := float64(unmapped) / float64(mapping.Len())
	if ratio > m.coverageWarnRatio {
		m.logger.Warn("unmapped-point ratio exceeds expected range",
			"unmapped_ratio", ratio, "threshold", m.coverageWarnRatio)
	}
}

// regionShape pairs a polygon with its region attributes for r-tree storage.
type regionShape struct {
	geom.Polygonal
	code string
	name string
}

// AssignRegions tests every grid point for strict interior containment
// against the polygon set. Boundaries are assumed non-overlapping, so the
// first containing polygon wins and a point never resolves to two regions.
// Points on a boundary line report OnEdge, not Inside, and stay unmapped;
// that is the documented behavior, not a defect.
func AssignRegions(points []domain.GridPoint, polys []RegionPolygon) []domain.MappingRow {
	tree := rtree.NewTree(25, 50)
	for i := range polys {
		tree.Insert(&regionShape{Polygonal: polys[i].Polygon, code: polys[i].Code, name: polys[i].Name})
	}

	rows := make([]domain.MappingRow, len(points))
	for i, pt := range points {
		p := geom.Point{X: pt.Lon, Y: pt.Lat}
		row := domain.MappingRow{GridIdx: pt.GridIdx, Lat: pt.Lat, Lon: pt.Lon}

		for _, candidate := range tree.SearchIntersect(p.Bounds()) {
			rs := candidate.(*regionShape)
			if p.Within(rs.Polygonal) == geom.Inside {
				code, name := rs.code, rs.name
				row.RegionCode = &code
				row.RegionName = &name
				break
			}
		}
		rows[i] = row
	}
	return rows
}
