package index

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/uber/h3-go/v4"
)

const DefaultH3Resolution = 6

// H3Cells returns the H3 cells of resolution res that overlap g, as
// sorted int64 ids. Cells at the border are included even if their
// center is outside of g, so every point of g lies in one of the cells.
func H3Cells(g orb.Geometry, res int) ([]int64, error) {
	if res <= 0 {
		res = DefaultH3Resolution
	}
	var polygons []orb.Polygon
	switch g := g.(type) {
	case orb.Polygon:
		polygons = []orb.Polygon{g}
	case orb.MultiPolygon:
		polygons = g
	default:
		return nil, errors.Errorf("h3 cells of %T", g)
	}

	seen := make(map[h3.Cell]struct{})
	var ids []int64
	for _, p := range polygons {
		if len(p) == 0 {
			continue
		}
		poly := h3.GeoPolygon{GeoLoop: toLoop(p[0])}
		for _, hole := range p[1:] {
			poly.Holes = append(poly.Holes, toLoop(hole))
		}
		cells, err := h3.PolygonToCellsExperimental(poly, res, h3.ContainmentOverlapping)
		if err != nil {
			return nil, errors.Wrap(err, "h3 polyfill")
		}
		for _, c := range cells {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			ids = append(ids, int64(c))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func toLoop(ring orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(ring))
	for _, pt := range ring {
		loop = append(loop, h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()})
	}
	if len(loop) > 1 && loop[0] == loop[len(loop)-1] {
		loop = loop[:len(loop)-1]
	}
	return loop
}
