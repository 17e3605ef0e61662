package request

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

const square = `{"type":"Polygon","coordinates":[[[8,53],[9,53],[9,54],[8,54],[8,53]]]}`

func TestParseDefaults(t *testing.T) {
	req, err := Parse(bytes.NewBufferString(`{"geometry": ` + square + `}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Format != GeoJSON {
		t.Error(req.Format)
	}
	if !reflect.DeepEqual(req.Classes(), AllClasses) {
		t.Error(req.Classes())
	}
	if req.FileName != DefaultFileName {
		t.Error(req.FileName)
	}
	if !req.BindZip {
		t.Error("bindZip not enabled by default")
	}
	if req.EffectiveMode() != ModeIntersects {
		t.Error(req.EffectiveMode())
	}
	if _, ok := req.Geometry.(orb.Polygon); !ok {
		t.Errorf("%T", req.Geometry)
	}
}

func TestParse(t *testing.T) {
	req, err := Parse(bytes.NewBufferString(`{
		"geometry": ` + square + `,
		"outputType": "Shapefile",
		"geometryType": ["Line", "point", "line"],
		"centroid": true,
		"useStWithin": true,
		"fileName": "../my export!",
		"bindZip": false,
		"filters": {"tags": {"point": {"join_or": {"amenity": []}}, "nodes": {}}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.Format != Shapefile {
		t.Error(req.Format)
	}
	if !reflect.DeepEqual(req.GeometryClasses, []GeometryClass{Line, Point}) {
		t.Error(req.GeometryClasses)
	}
	if !req.HasClass(Point) || req.HasClass(Polygon) {
		t.Error(req.GeometryClasses)
	}
	if !req.Centroid || req.Mode != ModeWithin || req.BindZip {
		t.Error(req)
	}
	if req.FileName != "my_export" {
		t.Error(req.FileName)
	}
	if req.TagFilter(Point) == nil || req.TagFilter(Line) != nil {
		t.Error(req.Filters)
	}
	if !reflect.DeepEqual(req.IgnoredFilterKeys(), []string{"tags.nodes"}) {
		t.Error(req.IgnoredFilterKeys())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		body       string
		invalidGeo bool
	}{
		{`{}`, true},
		{`{"geometry": {"type": "Point", "coordinates": [8, 53]}}`, true},
		{`{"geometry": {"type": "Polygon", "coordinates": []}}`, true},
		{`{"geometry": {"type": "Polygon", "coordinates": [[[8,53],[9,53],[8,53]]]}}`, true},
		{`{"geometry": {"type": "Polygon", "coordinates": [[[8,53],[9,53],[9,54],[8,54]]]}}`, true},
		{`{"geometry": ` + square + `, "outputType": "xls"}`, false},
		{`{"geometry": ` + square + `, "geometryType": ["area"]}`, false},
		{`{"geometry": ` + square + `, "minZoom": 10, "maxZoom": 4}`, false},
		{`{"geometry": ` + square + `, "maxZoom": 30}`, false},
		{`not json`, false},
	}
	for _, test := range tests {
		_, err := Parse(bytes.NewBufferString(test.body))
		if err == nil {
			t.Errorf("expected error for %s", test.body)
			continue
		}
		if isGeo := errors.Cause(err) == ErrInvalidGeometry; isGeo != test.invalidGeo {
			t.Errorf("%s: unexpected error %v", test.body, err)
		}
	}
}

func TestParseGeometryFeatures(t *testing.T) {
	g, err := ParseGeometry([]byte(`{"type": "Feature", "properties": {}, "geometry": ` + square + `}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(orb.Polygon); !ok {
		t.Errorf("%T", g)
	}

	g, err = ParseGeometry([]byte(`{"type": "FeatureCollection", "features": [
		{"type": "Feature", "properties": {}, "geometry": ` + square + `},
		{"type": "Feature", "properties": {}, "geometry": {"type": "MultiPolygon", "coordinates": [[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	mp, ok := g.(orb.MultiPolygon)
	if !ok || len(mp) != 2 {
		t.Errorf("%#v", g)
	}

	_, err = ParseGeometry([]byte(`{"type": "FeatureCollection", "features": [
		{"type": "Feature", "properties": {}, "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}}
	]}`))
	if errors.Cause(err) != ErrInvalidGeometry {
		t.Error(err)
	}
}

func TestEffectiveMode(t *testing.T) {
	g := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	for _, test := range []struct {
		format   Format
		mode     SpatialMode
		expected SpatialMode
	}{
		{GeoJSON, ModeUnset, ModeIntersects},
		{Shapefile, ModeUnset, ModeIntersects},
		{MBTiles, ModeUnset, ModeWithin},
		{PMTiles, ModeUnset, ModeWithin},
		{MBTiles, ModeIntersects, ModeIntersects},
		{GeoJSON, ModeWithin, ModeWithin},
	} {
		req, err := New(g, test.format)
		if err != nil {
			t.Fatal(err)
		}
		req.Mode = test.mode
		if got := req.EffectiveMode(); got != test.expected {
			t.Errorf("%s/%q: %s != %s", test.format, test.mode, got, test.expected)
		}
	}
}

func TestArea(t *testing.T) {
	// one degree at the equator is roughly 111.3 km
	req, err := New(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}, GeoJSON)
	if err != nil {
		t.Fatal(err)
	}
	if a := req.Area(); a < 12000 || a > 12600 {
		t.Error(a)
	}

	// same size in degrees shrinks towards the pole
	north, err := New(orb.Polygon{{{0, 60}, {1, 60}, {1, 61}, {0, 61}, {0, 60}}}, GeoJSON)
	if err != nil {
		t.Fatal(err)
	}
	if north.Area() >= req.Area()/1.5 {
		t.Error(north.Area(), req.Area())
	}
}

func TestGeometryJSON(t *testing.T) {
	req, err := Parse(bytes.NewBufferString(`{"geometry": ` + square + `}`))
	if err != nil {
		t.Fatal(err)
	}
	data, err := req.GeometryJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != square {
		t.Errorf("%s != %s", data, square)
	}
}

func TestSanitizeFileName(t *testing.T) {
	for _, test := range []struct{ in, out string }{
		{"", DefaultFileName},
		{"  ", DefaultFileName},
		{"hotosm_project_1", "hotosm_project_1"},
		{"my export", "my_export"},
		{"../../etc/passwd", "etc_passwd"},
		{"äöü", DefaultFileName},
	} {
		if got := SanitizeFileName(test.in); got != test.out {
			t.Errorf("%q: %q != %q", test.in, got, test.out)
		}
	}
}

func TestFormats(t *testing.T) {
	for _, test := range []struct {
		name   string
		format Format
		kind   Kind
		suffix string
	}{
		{"geojson", GeoJSON, KindDirect, "geojson"},
		{"shp", Shapefile, KindOGR, "shp"},
		{"shapefile", Shapefile, KindOGR, "shp"},
		{"GPKG", GeoPackage, KindOGR, "gpkg"},
		{"fgb", FlatGeobuf, KindOGR, "fgb"},
		{"parquet", GeoParquet, KindOGR, "parquet"},
		{"sql", PGDump, KindOGR, "sql"},
		{"mbtiles", MBTiles, KindTile, "mbtiles"},
		{"pmtiles", PMTiles, KindTile, "pmtiles"},
	} {
		f, err := ParseFormat(test.name)
		if err != nil {
			t.Fatal(err)
		}
		if f != test.format || f.Kind() != test.kind || f.Suffix() != test.suffix {
			t.Errorf("%s: %s %v %s", test.name, f, f.Kind(), f.Suffix())
		}
	}
	if !Shapefile.PerClassFiles() || GeoPackage.PerClassFiles() {
		t.Error("per class files")
	}
	if GeoPackage.PerClassColumns() || !GeoJSON.PerClassColumns() {
		t.Error("per class columns")
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Error("expected error")
	}
}
