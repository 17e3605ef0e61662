package filter

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

const (
	AllGeometry  = "all_geometry"
	PointClass   = "point"
	LineClass    = "line"
	PolygonClass = "polygon"
)

type TagFilters struct {
	AllGeometry *TagFilter
	Point       *TagFilter
	Line        *TagFilter
	Polygon     *TagFilter
}

type AttributeFilters struct {
	AllGeometry []string
	Point       []string
	Line        []string
	Polygon     []string
}

// Tree holds the tag and attribute filters of a request. Ignored lists
// filter keys that were not recognized and therefore had no effect.
type Tree struct {
	Tags       TagFilters
	Attributes AttributeFilters
	Ignored    []string
}

type wireTree struct {
	Tags       map[string]*TagFilter `json:"tags"`
	Attributes map[string][]string   `json:"attributes"`
}

// UnmarshalJSON decodes the filters object. Unknown geometry class keys
// are tolerated and recorded in Ignored.
func (t *Tree) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decoding filters")
	}
	w := wireTree{}
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "decoding filters")
	}

	*t = Tree{}
	for k := range raw {
		if k != "tags" && k != "attributes" {
			t.Ignored = append(t.Ignored, k)
		}
	}
	for k, tf := range w.Tags {
		switch k {
		case AllGeometry:
			t.Tags.AllGeometry = tf
		case PointClass:
			t.Tags.Point = tf
		case LineClass:
			t.Tags.Line = tf
		case PolygonClass:
			t.Tags.Polygon = tf
		default:
			t.Ignored = append(t.Ignored, "tags."+k)
		}
	}
	for k, attrs := range w.Attributes {
		switch k {
		case AllGeometry:
			t.Attributes.AllGeometry = attrs
		case PointClass:
			t.Attributes.Point = attrs
		case LineClass:
			t.Attributes.Line = attrs
		case PolygonClass:
			t.Attributes.Polygon = attrs
		default:
			t.Ignored = append(t.Ignored, "attributes."+k)
		}
	}
	sort.Strings(t.Ignored)
	return nil
}

// TagsFor returns the tag filter for a geometry class. A non-empty all
// geometry filter replaces the per-class filters.
func (t *Tree) TagsFor(class string) *TagFilter {
	if t == nil {
		return nil
	}
	if !t.Tags.AllGeometry.Empty() {
		return t.Tags.AllGeometry
	}
	var tf *TagFilter
	switch class {
	case PointClass:
		tf = t.Tags.Point
	case LineClass:
		tf = t.Tags.Line
	case PolygonClass:
		tf = t.Tags.Polygon
	}
	if tf.Empty() {
		return nil
	}
	return tf
}

// AttributesFor returns the tag keys projected as columns for a geometry
// class. Non-empty all geometry attributes replace the per-class lists.
func (t *Tree) AttributesFor(class string) []string {
	if t == nil {
		return nil
	}
	return t.Attributes.For(class)
}

func (a AttributeFilters) For(class string) []string {
	if len(a.AllGeometry) > 0 {
		return a.AllGeometry
	}
	switch class {
	case PointClass:
		return a.Point
	case LineClass:
		return a.Line
	case PolygonClass:
		return a.Polygon
	}
	return nil
}

// MergeAttributes returns the union of all per-class attribute keys as
// an all geometry filter, for outputs that write every class into one
// layer with a shared column set. Keys keep their first seen order
// (point, line, polygon). Filters with all geometry keys are returned
// unchanged.
func MergeAttributes(a AttributeFilters) AttributeFilters {
	if len(a.AllGeometry) > 0 {
		return a
	}
	var union []string
	seen := map[string]bool{}
	for _, keys := range [][]string{a.Point, a.Line, a.Polygon} {
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				union = append(union, k)
			}
		}
	}
	return AttributeFilters{AllGeometry: union}
}

// WithMergedAttributes returns a copy of t with MergeAttributes applied.
func (t *Tree) WithMergedAttributes() *Tree {
	if t == nil {
		return nil
	}
	merged := *t
	merged.Attributes = MergeAttributes(t.Attributes)
	return &merged
}
