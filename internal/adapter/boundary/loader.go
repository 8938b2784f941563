// Package boundary loads the static district boundary layers and answers
// point-in-polygon lookups against them. The layers ship with the repository
// as GeoJSON; they change on redistricting, not per run.
package boundary

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// layerSpec names a boundary file and the feature property that carries the
// area identifier.
type layerSpec struct {
	name     string
	file     string
	property string
	prefix   string
}

var layerSpecs = []layerSpec{
	{name: "ward", file: "Wards_from_2022.geojson", property: "WARD_ID"},
	{name: "anc", file: "anc_2023.geojson", property: "ANC"},
	{name: "smd", file: "Single_Member_District_from_2023.geojson", property: "SMD_ID"},
	{name: "hexgrid", file: "crash-hexgrid.geojson", property: "grid_id", prefix: "HEX_"},
}

type area struct {
	id    string
	geom  orb.Geometry
	bound orb.Bound
}

type layer struct {
	name  string
	areas []area
}

// locate returns the id of the first area containing the point, nil when the
// point falls outside every area. The bounding-box check screens candidates
// before the exact polygon test.
func (l *layer) locate(p orb.Point) *string {
	for i := range l.areas {
		a := &l.areas[i]
		if !a.bound.Contains(p) {
			continue
		}
		if containsPoint(a.geom, p) {
			return &a.id
		}
	}
	return nil
}

func containsPoint(geom orb.Geometry, p orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	default:
		return false
	}
}

// Index answers boundary lookups for all configured layers. It implements
// domain.BoundaryLocator.
type Index struct {
	ward    layer
	anc     layer
	smd     layer
	hexgrid layer
}

// Load reads every boundary layer from dir. A missing or malformed file is an
// error; the snapshot's geographic columns are only meaningful when all four
// layers resolved.
func Load(dir string, logger *slog.Logger) (*Index, error) {
	idx := &Index{}
	targets := map[string]*layer{
		"ward":    &idx.ward,
		"anc":     &idx.anc,
		"smd":     &idx.smd,
		"hexgrid": &idx.hexgrid,
	}

	for _, spec := range layerSpecs {
		l, err := loadLayer(filepath.Join(dir, spec.file), spec)
		if err != nil {
			return nil, &domain.SpatialJoinError{Layer: spec.name, Err: err}
		}
		*targets[spec.name] = l
		logger.Info("boundary layer loaded", "layer", spec.name, "areas", len(l.areas))
	}

	return idx, nil
}

func loadLayer(path string, spec layerSpec) (layer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return layer{}, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return layer{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	l := layer{name: spec.name, areas: make([]area, 0, len(fc.Features))}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		id := propertyString(f.Properties[spec.property])
		if id == "" {
			return layer{}, fmt.Errorf("%s: feature missing %s property", filepath.Base(path), spec.property)
		}
		l.areas = append(l.areas, area{
			id:    spec.prefix + id,
			geom:  f.Geometry,
			bound: f.Geometry.Bound(),
		})
	}
	if len(l.areas) == 0 {
		return layer{}, fmt.Errorf("%s: no polygon features", filepath.Base(path))
	}

	return l, nil
}

// propertyString stringifies a GeoJSON property value. Area ids come back as
// strings in some layers and numbers in others.
func propertyString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// Locate resolves the coordinate against every layer. Layers miss
// independently; a point inside a ward but outside the hex grid gets a ward id
// and a nil grid id.
func (x *Index) Locate(lat, lon float64) domain.GeoContext {
	p := orb.Point{lon, lat}
	return domain.GeoContext{
		Ward:   x.ward.locate(p),
		ANC:    x.anc.locate(p),
		SMD:    x.smd.locate(p),
		GridID: x.hexgrid.locate(p),
	}
}
