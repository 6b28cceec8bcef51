package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridfusion/internal/domain"
)

const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// Archetype structs for fixture shapefiles. Field names become the DBF
// column names verbatim, so each struct carries exactly one vintage's
// attribute columns.
type admBoundaryRow struct {
	geom.Polygon
	ADM_DR_CD string
	ADM_DR_NM string
}

type emdBoundaryRow struct {
	geom.Polygon
	EMD_CD string
	EMD_NM string
}

type unrelatedBoundaryRow struct {
	geom.Polygon
	GID    string
	REGION string
}

// writeBoundaryFixture writes rows to a shapefile plus the sidecar .prj
// declaring WGS84, returning the .shp path.
func writeBoundaryFixture(t *testing.T, dir string, rows ...any) string {
	t.Helper()

	path := filepath.Join(dir, "boundaries.shp")
	enc, err := shp.NewEncoder(path, rows[0])
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, enc.Encode(row))
	}
	enc.Close()

	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	require.NoError(t, os.WriteFile(prj, []byte(wgs84WKT), 0o644))
	return path
}

func wgs84Target(t *testing.T) *proj.SR {
	t.Helper()
	target, err := proj.Parse(gridProj)
	require.NoError(t, err)
	return target
}

func TestBoundaryStoreLoad(t *testing.T) {
	path := writeBoundaryFixture(t, t.TempDir(),
		admBoundaryRow{Polygon: square(126.0, 36.0, 127.0, 37.0), ADM_DR_CD: "11", ADM_DR_NM: "West"},
		admBoundaryRow{Polygon: square(128.0, 36.0, 129.0, 37.0), ADM_DR_CD: "26", ADM_DR_NM: "East"},
	)

	regions, err := NewBoundaryStore(path).Load(wgs84Target(t))
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "11", regions[0].Code)
	assert.Equal(t, "West", regions[0].Name)
	assert.Equal(t, "26", regions[1].Code)
	assert.Equal(t, "East", regions[1].Name)

	// The reprojected polygons still contain their interior points.
	in := geom.Point{X: 126.5, Y: 36.5}
	assert.Equal(t, geom.Inside, in.Within(regions[0].Polygon))
	out := geom.Point{X: 127.5, Y: 36.5}
	assert.NotEqual(t, geom.Inside, out.Within(regions[0].Polygon))
}

func TestBoundaryStoreLoadAlternateColumns(t *testing.T) {
	path := writeBoundaryFixture(t, t.TempDir(),
		emdBoundaryRow{Polygon: square(126.0, 36.0, 127.0, 37.0), EMD_CD: "1111051500", EMD_NM: "Downtown"},
	)

	regions, err := NewBoundaryStore(path).Load(wgs84Target(t))
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "1111051500", regions[0].Code)
	assert.Equal(t, "Downtown", regions[0].Name)
}

func TestBoundaryStoreLoadUnknownColumns(t *testing.T) {
	path := writeBoundaryFixture(t, t.TempDir(),
		unrelatedBoundaryRow{Polygon: square(126.0, 36.0, 127.0, 37.0), GID: "1", REGION: "Somewhere"},
	)

	_, err := NewBoundaryStore(path).Load(wgs84Target(t))
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "region code")
}

func TestBoundaryStoreLoadMissingProjection(t *testing.T) {
	dir := t.TempDir()
	path := writeBoundaryFixture(t, dir,
		admBoundaryRow{Polygon: square(126.0, 36.0, 127.0, 37.0), ADM_DR_CD: "11", ADM_DR_NM: "West"},
	)
	require.NoError(t, os.Remove(strings.TrimSuffix(path, ".shp")+".prj"))

	_, err := NewBoundaryStore(path).Load(wgs84Target(t))
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "reference system")
}

func TestBoundaryStoreLoadMissingFile(t *testing.T) {
	_, err := NewBoundaryStore(filepath.Join(t.TempDir(), "absent.shp")).Load(wgs84Target(t))
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
