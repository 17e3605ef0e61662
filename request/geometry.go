package request

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

type typeHeader struct {
	Type string `json:"type"`
}

// ParseGeometry reads a GeoJSON Polygon or MultiPolygon. Features and
// FeatureCollections are accepted, all polygons are merged into one
// MultiPolygon.
func ParseGeometry(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInvalidGeometry, "missing geometry")
	}
	hdr := typeHeader{}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, errors.Wrap(ErrInvalidGeometry, err.Error())
	}

	var g orb.Geometry
	switch hdr.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidGeometry, err.Error())
		}
		g = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidGeometry, err.Error())
		}
		mp := orb.MultiPolygon{}
		for _, f := range fc.Features {
			polygons, err := polygons(f.Geometry)
			if err != nil {
				return nil, err
			}
			mp = append(mp, polygons...)
		}
		if len(mp) == 1 {
			g = mp[0]
		} else {
			g = mp
		}
	default:
		gj, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidGeometry, err.Error())
		}
		g = gj.Geometry()
	}

	if err := ValidateGeometry(g); err != nil {
		return nil, err
	}
	return g, nil
}

func polygons(g orb.Geometry) ([]orb.Polygon, error) {
	switch g := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}, nil
	case orb.MultiPolygon:
		return g, nil
	case nil:
		return nil, errors.Wrap(ErrInvalidGeometry, "feature without geometry")
	default:
		return nil, errors.Wrapf(ErrInvalidGeometry, "only Polygon or MultiPolygon are supported, got %s", g.GeoJSONType())
	}
}

// ValidateGeometry checks that g is a non-empty polygonal geometry with
// closed rings of at least four positions. Self intersections are not
// rejected here, they are repaired in the database.
func ValidateGeometry(g orb.Geometry) error {
	ps, err := polygons(g)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		return errors.Wrap(ErrInvalidGeometry, "empty multipolygon")
	}
	for i, p := range ps {
		if len(p) == 0 {
			return errors.Wrapf(ErrInvalidGeometry, "polygon %d is empty", i)
		}
		for j, ring := range p {
			if len(ring) < 4 {
				return errors.Wrapf(ErrInvalidGeometry, "polygon %d ring %d has < 4 positions", i, j)
			}
			if !ring.Closed() {
				return errors.Wrapf(ErrInvalidGeometry, "polygon %d ring %d is not closed", i, j)
			}
		}
	}
	return nil
}
