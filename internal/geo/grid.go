// Package geo establishes the correspondence between the observation grid
// and administrative region boundaries: loading the fixed coordinate array,
// loading and reprojecting boundary polygons, and building the cached
// grid-region mapping by point-in-polygon containment.
package geo

import (
	"fmt"
	"os"
	"strings"

	"github.com/ctessum/cdf"

	"gridfusion/internal/domain"
)

// Variable name candidates, checked in order against the NetCDF header.
// Resolution happens once at load time; if none match the source is unusable.
var (
	latAliases = []string{"lat", "latitude"}
	lonAliases = []string{"lon", "longitude"}
)

// CoordinateRegistry loads the fixed 2D coordinate array and exposes the
// flattened, order-stable sequence of grid points. grid_idx follows row-major
// order of the source array starting at 0.
type CoordinateRegistry struct {
	path string
}

// NewCoordinateRegistry creates a registry reading from a NetCDF file.
func NewCoordinateRegistry(path string) *CoordinateRegistry {
	return &CoordinateRegistry{path: path}
}

// Points loads and flattens the coordinate arrays. Both 2D lat/lon grids and
// 1D coordinate vectors (expanded to a full grid) are accepted.
func (r *CoordinateRegistry) Points() ([]domain.GridPoint, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, domain.ConfigErr("open coordinate source", err)
	}
	defer f.Close()

	cf, err := cdf.Open(f)
	if err != nil {
		return nil, domain.ConfigErr("parse coordinate source", err)
	}

	latVar, err := findVariable(cf, latAliases)
	if err != nil {
		return nil, domain.ConfigErr("resolve latitude variable", err)
	}
	lonVar, err := findVariable(cf, lonAliases)
	if err != nil {
		return nil, domain.ConfigErr("resolve longitude variable", err)
	}

	lat, latDims, err := readFloats(cf, latVar)
	if err != nil {
		return nil, domain.ConfigErr("read latitude array", err)
	}
	lon, lonDims, err := readFloats(cf, lonVar)
	if err != nil {
		return nil, domain.ConfigErr("read longitude array", err)
	}

	switch {
	case len(latDims) == 2 && len(lonDims) == 2:
		if len(lat) != len(lon) {
			return nil, domain.ConfigErr("flatten coordinate arrays",
				fmt.Errorf("lat has %d values, lon has %d", len(lat), len(lon)))
		}
		points := make([]domain.GridPoint, len(lat))
		for i := range lat {
			points[i] = domain.GridPoint{GridIdx: int64(i), Lat: lat[i], Lon: lon[i]}
		}
		return points, nil

	case len(latDims) == 1 && len(lonDims) == 1:
		// 1D coordinate vectors: expand to the full grid, latitude-major so
		// the flattening order matches a 2D row-major array.
		points := make([]domain.GridPoint, 0, len(lat)*len(lon))
		for i := range lat {
			for j := range lon {
				points = append(points, domain.GridPoint{
					GridIdx: int64(i*len(lon) + j),
					Lat:     lat[i],
					Lon:     lon[j],
				})
			}
		}
		return points, nil

	default:
		return nil, domain.ConfigErr("flatten coordinate arrays",
			fmt.Errorf("unsupported dimensionality lat=%v lon=%v", latDims, lonDims))
	}
}

// Count returns the number of grid points without materializing them,
// reading only the NetCDF header. Acquisition uses it to validate fetched
// grid lengths without loading the full mapping.
func (r *CoordinateRegistry) Count() (int, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return 0, domain.ConfigErr("open coordinate source", err)
	}
	defer f.Close()

	cf, err := cdf.Open(f)
	if err != nil {
		return 0, domain.ConfigErr("parse coordinate source", err)
	}
	latVar, err := findVariable(cf, latAliases)
	if err != nil {
		return 0, domain.ConfigErr("resolve latitude variable", err)
	}
	lonVar, err := findVariable(cf, lonAliases)
	if err != nil {
		return 0, domain.ConfigErr("resolve longitude variable", err)
	}

	latDims := cf.Header.Lengths(latVar)
	if len(latDims) == 2 {
		return latDims[0] * latDims[1], nil
	}
	lonDims := cf.Header.Lengths(lonVar)
	if len(latDims) == 1 && len(lonDims) == 1 {
		return latDims[0] * lonDims[0], nil
	}
	return 0, domain.ConfigErr("resolve grid size",
		fmt.Errorf("unsupported dimensionality lat=%v lon=%v", latDims, lonDims))
}

// findVariable resolves candidate names against the file's variables,
// case-insensitively, in candidate order.
func findVariable(f *cdf.File, candidates []string) (string, error) {
	vars := f.Header.Variables()
	for _, c := range candidates {
		for _, v := range vars {
			if strings.EqualFold(v, c) {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("no variable named any of %v in %v", candidates, vars)
}

// readFloats reads a full variable as float64 regardless of whether the file
// stores it as float or double.
func readFloats(f *cdf.File, name string) ([]float64, []int, error) {
	dims := f.Header.Lengths(name)
	n := 1
	for _, d := range dims {
		n *= d
	}

	buf32 := make([]float32, n)
	if _, err := f.Reader(name, nil, nil).Read(buf32); err == nil {
		out := make([]float64, n)
		for i, v := range buf32 {
			out[i] = float64(v)
		}
		return out, dims, nil
	}

	buf64 := make([]float64, n)
	if _, err := f.Reader(name, nil, nil).Read(buf64); err != nil {
		return nil, nil, fmt.Errorf("read variable %s: %w", name, err)
	}
	return buf64, dims, nil
}
