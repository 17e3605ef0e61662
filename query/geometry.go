package query

import (
	"fmt"

	"github.com/lib/pq"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/request"
)

// GeomColumn is the geometry column of all raw data tables.
const GeomColumn = "geom"

// AreaSQL returns the request geometry as a valid PostGIS geometry
// expression. Multi part input is unioned and self intersections are
// repaired with ST_MakeValid.
func AreaSQL(g orb.Geometry) (string, error) {
	if g == nil {
		return "", errors.Wrap(request.ErrInvalidGeometry, "missing geometry")
	}
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return "", errors.Wrap(err, "encoding request geometry")
	}
	return fmt.Sprintf(
		"ST_MakeValid(ST_UnaryUnion(ST_SetSRID(ST_GeomFromGeoJSON(%s), 4326)))",
		pq.QuoteLiteral(string(data)),
	), nil
}

// SpatialPredicate compares the geometry column with g. ModeWithin only
// matches features fully inside g, all other modes match features that
// intersect g.
func SpatialPredicate(g orb.Geometry, mode request.SpatialMode) (string, error) {
	area, err := AreaSQL(g)
	if err != nil {
		return "", err
	}
	fn := "ST_Intersects"
	if mode == request.ModeWithin {
		fn = "ST_Within"
	}
	return fmt.Sprintf("%s(%s, %s)", fn, GeomColumn, area), nil
}
