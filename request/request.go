/*
Package request defines the validated extraction request that enters the
query compiler.
*/
package request

import (
	"encoding/json"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/filter"
)

var ErrInvalidGeometry = errors.New("invalid geometry")

const DefaultFileName = "osm_export"

type GeometryClass string

const (
	Point   GeometryClass = "point"
	Line    GeometryClass = "line"
	Polygon GeometryClass = "polygon"
)

var AllClasses = []GeometryClass{Point, Line, Polygon}

type SpatialMode string

const (
	ModeUnset      SpatialMode = ""
	ModeIntersects SpatialMode = "intersects"
	ModeWithin     SpatialMode = "within"
)

type ExtractionRequest struct {
	Geometry        orb.Geometry
	Format          Format
	GeometryClasses []GeometryClass
	Centroid        bool
	Mode            SpatialMode
	Filters         *filter.Tree
	FileName        string
	MinZoom         int
	MaxZoom         int
	BindZip         bool
}

type wireRequest struct {
	Geometry     json.RawMessage `json:"geometry"`
	OutputType   string          `json:"outputType"`
	GeometryType []string        `json:"geometryType"`
	Centroid     bool            `json:"centroid"`
	UseStWithin  *bool           `json:"useStWithin"`
	Filters      *filter.Tree    `json:"filters"`
	FileName     string          `json:"fileName"`
	MinZoom      int             `json:"minZoom"`
	MaxZoom      int             `json:"maxZoom"`
	BindZip      *bool           `json:"bindZip"`
}

// Parse decodes a JSON extraction request and normalizes it.
func Parse(r io.Reader) (*ExtractionRequest, error) {
	w := wireRequest{}
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, errors.Wrap(err, "decoding request")
	}

	g, err := ParseGeometry(w.Geometry)
	if err != nil {
		return nil, err
	}

	req := &ExtractionRequest{
		Geometry: g,
		Centroid: w.Centroid,
		Filters:  w.Filters,
		FileName: w.FileName,
		MinZoom:  w.MinZoom,
		MaxZoom:  w.MaxZoom,
		BindZip:  true,
	}
	if w.BindZip != nil {
		req.BindZip = *w.BindZip
	}
	if w.UseStWithin != nil {
		if *w.UseStWithin {
			req.Mode = ModeWithin
		} else {
			req.Mode = ModeIntersects
		}
	}

	if w.OutputType == "" {
		req.Format = GeoJSON
	} else {
		f, err := ParseFormat(w.OutputType)
		if err != nil {
			return nil, err
		}
		req.Format = f
	}

	for _, t := range w.GeometryType {
		c := GeometryClass(strings.ToLower(t))
		switch c {
		case Point, Line, Polygon:
			req.GeometryClasses = append(req.GeometryClasses, c)
		default:
			return nil, errors.Errorf("unknown geometry type %q", t)
		}
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *ExtractionRequest) normalize() error {
	if err := ValidateGeometry(r.Geometry); err != nil {
		return err
	}
	r.GeometryClasses = uniqueClasses(r.GeometryClasses)
	r.FileName = SanitizeFileName(r.FileName)
	if r.MinZoom < 0 || r.MaxZoom < 0 || r.MaxZoom > 22 || (r.MaxZoom > 0 && r.MinZoom > r.MaxZoom) {
		return errors.Errorf("invalid zoom range %d-%d", r.MinZoom, r.MaxZoom)
	}
	return nil
}

// New returns a normalized request for geometry g. Other fields can be
// set on the result before it is passed to the compiler.
func New(g orb.Geometry, format Format) (*ExtractionRequest, error) {
	r := &ExtractionRequest{Geometry: g, Format: format, BindZip: true}
	if err := r.normalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// Classes returns the requested geometry classes, all classes if none
// were requested.
func (r *ExtractionRequest) Classes() []GeometryClass {
	if len(r.GeometryClasses) == 0 {
		return AllClasses
	}
	return r.GeometryClasses
}

func (r *ExtractionRequest) HasClass(c GeometryClass) bool {
	for _, rc := range r.Classes() {
		if rc == c {
			return true
		}
	}
	return false
}

// EffectiveMode resolves an unset spatial mode: tile outputs use within
// to keep feature sets disjoint at tile boundaries.
func (r *ExtractionRequest) EffectiveMode() SpatialMode {
	if r.Mode != ModeUnset {
		return r.Mode
	}
	if r.Format.Kind() == KindTile {
		return ModeWithin
	}
	return ModeIntersects
}

// Area returns the spherical area of the request geometry in km².
func (r *ExtractionRequest) Area() float64 {
	return math.Abs(geo.Area(r.Geometry)) / 1e6
}

// GeometryJSON returns the canonical GeoJSON geometry of the request.
func (r *ExtractionRequest) GeometryJSON() ([]byte, error) {
	return geojson.NewGeometry(r.Geometry).MarshalJSON()
}

func (r *ExtractionRequest) TagFilter(c GeometryClass) *filter.TagFilter {
	if r.Filters == nil {
		return nil
	}
	return r.Filters.TagsFor(string(c))
}

func (r *ExtractionRequest) IgnoredFilterKeys() []string {
	if r.Filters == nil {
		return nil
	}
	return r.Filters.Ignored
}

func uniqueClasses(classes []GeometryClass) []GeometryClass {
	if len(classes) == 0 {
		return nil
	}
	seen := make(map[GeometryClass]bool, len(classes))
	result := classes[:0:0]
	for _, c := range classes {
		if seen[c] {
			continue
		}
		seen[c] = true
		result = append(result, c)
	}
	return result
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func SanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return DefaultFileName
	}
	return name
}
