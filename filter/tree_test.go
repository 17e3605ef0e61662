package filter

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTreeUnmarshal(t *testing.T) {
	data := []byte(`{
		"tags": {
			"all_geometry": {"join_or": {"building": ["yes"]}},
			"point": {"join_or": {"amenity": ["cafe"]}},
			"points": {"join_or": {"shop": []}}
		},
		"attributes": {
			"line": ["name", "highway"],
			"lines": ["ref"]
		},
		"extra": true
	}`)
	tree := Tree{}
	if err := json.Unmarshal(data, &tree); err != nil {
		t.Fatal(err)
	}
	if tree.Tags.AllGeometry == nil || tree.Tags.Point == nil {
		t.Fatal(tree.Tags)
	}
	if !reflect.DeepEqual(tree.Attributes.Line, []string{"name", "highway"}) {
		t.Error(tree.Attributes)
	}
	expected := []string{"attributes.lines", "extra", "tags.points"}
	if !reflect.DeepEqual(tree.Ignored, expected) {
		t.Errorf("%v != %v", tree.Ignored, expected)
	}
}

func TestTreeUnmarshalInvalid(t *testing.T) {
	tree := Tree{}
	if err := json.Unmarshal([]byte(`{"tags": []}`), &tree); err == nil {
		t.Error("expected error for tags array")
	}
}

func TestAllGeometryPrecedence(t *testing.T) {
	tree := &Tree{
		Tags: TagFilters{
			AllGeometry: &TagFilter{Or: map[string][]string{"building": {"yes"}}},
			Point:       &TagFilter{Or: map[string][]string{"amenity": {"cafe"}}},
			Line:        &TagFilter{Or: map[string][]string{"highway": {}}},
		},
	}
	for _, class := range []string{PointClass, LineClass, PolygonClass} {
		if got := CompileString(tree.TagsFor(class)); got != `tags ->> 'building' = 'yes'` {
			t.Errorf("%s: %s", class, got)
		}
	}

	// empty all geometry filter does not hide per-class filters
	tree.Tags.AllGeometry = &TagFilter{}
	if got := CompileString(tree.TagsFor(PointClass)); got != `tags ->> 'amenity' = 'cafe'` {
		t.Error(got)
	}
	if tree.TagsFor(PolygonClass) != nil {
		t.Error("expected no polygon filter")
	}

	var nilTree *Tree
	if nilTree.TagsFor(PointClass) != nil || nilTree.AttributesFor(PointClass) != nil {
		t.Error("nil tree returned filters")
	}
}

func TestAttributesFor(t *testing.T) {
	a := AttributeFilters{Point: []string{"name"}, Polygon: []string{"building"}}
	if !reflect.DeepEqual(a.For(PointClass), []string{"name"}) {
		t.Error(a.For(PointClass))
	}
	if a.For(LineClass) != nil {
		t.Error(a.For(LineClass))
	}
	a.AllGeometry = []string{"ref"}
	for _, class := range []string{PointClass, LineClass, PolygonClass} {
		if !reflect.DeepEqual(a.For(class), []string{"ref"}) {
			t.Error(class, a.For(class))
		}
	}
}

func TestMergeAttributes(t *testing.T) {
	a := AttributeFilters{
		Point:   []string{"name", "amenity"},
		Line:    []string{"highway", "name"},
		Polygon: []string{"building", "amenity", "height"},
	}
	merged := MergeAttributes(a)
	expected := []string{"name", "amenity", "highway", "building", "height"}
	if !reflect.DeepEqual(merged.AllGeometry, expected) {
		t.Errorf("%v != %v", merged.AllGeometry, expected)
	}
	if merged.Point != nil || merged.Line != nil || merged.Polygon != nil {
		t.Error("per-class attributes not replaced", merged)
	}
	if !reflect.DeepEqual(MergeAttributes(merged), merged) {
		t.Error("merge not idempotent")
	}

	explicit := AttributeFilters{AllGeometry: []string{"ref"}, Point: []string{"name"}}
	if !reflect.DeepEqual(MergeAttributes(explicit), explicit) {
		t.Error("all geometry attributes changed")
	}

	if got := MergeAttributes(AttributeFilters{}); len(got.AllGeometry) != 0 {
		t.Error(got)
	}
}

func TestWithMergedAttributes(t *testing.T) {
	tree := &Tree{Attributes: AttributeFilters{Point: []string{"name"}, Line: []string{"ref"}}}
	merged := tree.WithMergedAttributes()
	if !reflect.DeepEqual(merged.AttributesFor(PolygonClass), []string{"name", "ref"}) {
		t.Error(merged.AttributesFor(PolygonClass))
	}
	if tree.Attributes.AllGeometry != nil {
		t.Error("original tree modified")
	}
}
