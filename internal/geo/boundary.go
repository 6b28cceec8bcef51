package geo

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"gridfusion/internal/domain"
)

// Attribute column candidates for the region identifier and name, checked in
// order. Boundary files from different vintages of the national
// administrative-district publication name these differently.
var (
	regionCodeAliases = []string{"ADM_DR_CD", "ADM_CD", "EMD_CD", "BJDONG_CD", "LAW_ID"}
	regionNameAliases = []string{"ADM_DR_NM", "ADM_NM", "EMD_NM", "BJDONG_NM", "LAW_NM"}
)

// RegionPolygon is one administrative region boundary in the target
// reference system.
type RegionPolygon struct {
	Code    string
	Name    string
	Polygon geom.Polygonal
}

// BoundaryStore loads region polygons from a shapefile, resolving the code
// and name attribute columns once at load time and reprojecting geometries
// into the requested reference system.
type BoundaryStore struct {
	path string
}

// NewBoundaryStore creates a store reading from a shapefile. The sidecar
// .prj file supplies the source reference system.
func NewBoundaryStore(path string) *BoundaryStore {
	return &BoundaryStore{path: path}
}

// Load decodes every polygon, reprojected into target. Any unreadable file,
// unresolvable reference system, or missing attribute column is a
// ConfigurationError: the mapping build cannot proceed without boundaries.
func (s *BoundaryStore) Load(target *proj.SR) ([]RegionPolygon, error) {
	dec, err := shp.NewDecoder(s.path)
	if err != nil {
		return nil, domain.ConfigErr("open boundary source", err)
	}
	defer dec.Close()

	srcSR, err := dec.SR()
	if err != nil {
		return nil, domain.ConfigErr("resolve boundary reference system", err)
	}
	trans, err := srcSR.NewTransform(target)
	if err != nil {
		return nil, domain.ConfigErr("build boundary reprojection", err)
	}

	// The decoder errors on any requested field absent from the DBF, so the
	// columns must be resolved against the field list up front and only the
	// two winners requested per row.
	codeCol, err := resolveColumn(dec, regionCodeAliases)
	if err != nil {
		return nil, domain.ConfigErr("resolve region code column", err)
	}
	nameCol, err := resolveColumn(dec, regionNameAliases)
	if err != nil {
		return nil, domain.ConfigErr("resolve region name column", err)
	}

	var out []RegionPolygon
	for {
		g, attrs, more := dec.DecodeRowFields(codeCol, nameCol)
		if !more {
			break
		}

		gg, err := g.Transform(trans)
		if err != nil {
			return nil, domain.ConfigErr("reproject boundary", err)
		}
		poly, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, domain.ConfigErr("decode boundary",
				fmt.Errorf("region %s: geometry %T is not polygonal", attrs[codeCol], gg))
		}

		// DBF attribute values are fixed-width and space-padded, so decoded
		// strings can carry trailing padding the decoder does not strip.
		out = append(out, RegionPolygon{
			Code:    strings.TrimSpace(attrs[codeCol]),
			Name:    strings.TrimSpace(attrs[nameCol]),
			Polygon: poly,
		})
	}
	if err := dec.Error(); err != nil {
		return nil, domain.ConfigErr("decode boundary source", err)
	}
	if len(out) == 0 {
		return nil, domain.ConfigErr("decode boundary source", fmt.Errorf("no polygons in %s", s.path))
	}
	return out, nil
}

// resolveColumn matches aliases against the DBF field list in alias order,
// case-insensitively, returning the field's actual name.
func resolveColumn(dec *shp.Decoder, aliases []string) (string, error) {
	fields := dec.Fields()
	names := make([]string, len(fields))
	for i := range fields {
		names[i] = fields[i].String()
	}
	for _, a := range aliases {
		for _, n := range names {
			if strings.EqualFold(n, a) {
				return n, nil
			}
		}
	}
	return "", fmt.Errorf("no attribute named any of %v in %v", aliases, names)
}
