package geo

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridfusion/internal/domain"
	"gridfusion/internal/observability"
	"gridfusion/internal/store"
)

// square returns a closed axis-aligned polygon.
func square(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}}
}

func testPolys() []RegionPolygon {
	return []RegionPolygon{
		{Code: "11", Name: "West", Polygon: square(126.0, 36.0, 127.0, 37.0)},
		{Code: "26", Name: "East", Polygon: square(128.0, 36.0, 129.0, 37.0)},
	}
}

func TestAssignRegions(t *testing.T) {
	points := []domain.GridPoint{
		{GridIdx: 0, Lon: 126.5, Lat: 36.5}, // inside West
		{GridIdx: 1, Lon: 126.9, Lat: 36.1}, // inside West
		{GridIdx: 2, Lon: 128.5, Lat: 36.5}, // inside East
		{GridIdx: 3, Lon: 130.0, Lat: 36.5}, // open water
	}

	rows := AssignRegions(points, testPolys())
	require.Len(t, rows, 4)

	require.NotNil(t, rows[0].RegionCode)
	assert.Equal(t, "11", *rows[0].RegionCode)
	assert.Equal(t, "West", *rows[0].RegionName)

	require.NotNil(t, rows[1].RegionCode)
	assert.Equal(t, "11", *rows[1].RegionCode)

	require.NotNil(t, rows[2].RegionCode)
	assert.Equal(t, "26", *rows[2].RegionCode)

	assert.Nil(t, rows[3].RegionCode)
	assert.Nil(t, rows[3].RegionName)

	// Coordinates carry through for every point, mapped or not.
	assert.Equal(t, 130.0, rows[3].Lon)
	assert.Equal(t, 36.5, rows[3].Lat)
}

func TestAssignRegionsBoundaryPointUnmapped(t *testing.T) {
	points := []domain.GridPoint{
		{GridIdx: 0, Lon: 126.0, Lat: 36.5}, // exactly on the west edge
		{GridIdx: 1, Lon: 127.0, Lat: 37.0}, // exactly on a corner
	}

	rows := AssignRegions(points, testPolys())
	assert.Nil(t, rows[0].RegionCode, "edge point requires strict containment")
	assert.Nil(t, rows[1].RegionCode, "corner point requires strict containment")
}

func TestAssignRegionsDeterministic(t *testing.T) {
	points := []domain.GridPoint{
		{GridIdx: 0, Lon: 126.5, Lat: 36.5},
		{GridIdx: 1, Lon: 128.5, Lat: 36.5},
		{GridIdx: 2, Lon: 125.0, Lat: 40.0},
	}
	first := AssignRegions(points, testPolys())
	second := AssignRegions(points, testPolys())
	assert.Equal(t, first, second)
}

// --- fakes ---

type fakePoints struct {
	points []domain.GridPoint
	calls  int
}

func (f *fakePoints) Points() ([]domain.GridPoint, error) {
	f.calls++
	return f.points, nil
}

type fakeBoundaries struct {
	polys []RegionPolygon
}

func (f *fakeBoundaries) Load(_ *proj.SR) ([]RegionPolygon, error) {
	return f.polys, nil
}

func newTestMapper(t *testing.T, mappingFile string, pts *fakePoints) *Mapper {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMapper(pts, &fakeBoundaries{polys: testPolys()}, mappingFile, 0.85, logger, observability.NewMetricsForTesting())
}

func TestBuildMappingCachesResult(t *testing.T) {
	mappingFile := filepath.Join(t.TempDir(), "mapping.parquet")
	pts := &fakePoints{points: []domain.GridPoint{
		{GridIdx: 0, Lon: 126.5, Lat: 36.5},
		{GridIdx: 1, Lon: 130.0, Lat: 36.5},
	}}
	m := newTestMapper(t, mappingFile, pts)

	built, err := m.BuildMapping(false)
	require.NoError(t, err)
	assert.Equal(t, 2, built.Len())
	assert.Equal(t, 1, built.MappedCount())
	assert.True(t, store.MappingExists(mappingFile))

	// Second call must come from the cache, not the sources.
	cached, err := m.BuildMapping(false)
	require.NoError(t, err)
	assert.Equal(t, 1, pts.calls)
	assert.Equal(t, built.Rows(), cached.Rows())

	code, ok := cached.RegionFor(0)
	require.True(t, ok)
	assert.Equal(t, "11", code)
	_, ok = cached.RegionFor(1)
	assert.False(t, ok)
}

func TestBuildMappingForceRebuild(t *testing.T) {
	mappingFile := filepath.Join(t.TempDir(), "mapping.parquet")
	pts := &fakePoints{points: []domain.GridPoint{{GridIdx: 0, Lon: 126.5, Lat: 36.5}}}
	m := newTestMapper(t, mappingFile, pts)

	_, err := m.BuildMapping(false)
	require.NoError(t, err)

	_, err = m.BuildMapping(true)
	require.NoError(t, err)
	assert.Equal(t, 2, pts.calls, "forced rebuild bypasses the cache")
}
