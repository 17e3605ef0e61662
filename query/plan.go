package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omniscale/osmextract/filter"
	"github.com/omniscale/osmextract/logging"
	"github.com/omniscale/osmextract/request"
)

var log = logging.NewLogger("query")

const (
	NodesTable     = "nodes"
	WaysLineTable  = "ways_line"
	WaysPolyTable  = "ways_poly"
	RelationsTable = "relations"
)

const (
	CountryColumn     = "country"
	DefaultGridColumn = "grid"
	// MaxCountries is the largest country list that is still selective
	// enough to be used as an extra filter.
	MaxCountries = 3
)

const (
	LineShape    = "GeometryType(geom) = 'MULTILINESTRING'"
	PolygonShape = "GeometryType(geom) IN ('POLYGON', 'MULTIPOLYGON')"
)

var defaultColumns = []string{"tags", "changeset", "timestamp"}

// IndexHint narrows a query to precomputed index values. An exact
// country match replaces the spatial predicate, all other hints are
// combined with it.
type IndexHint struct {
	GridColumn   string  `json:"grid_column,omitempty"`
	GridCells    []int64 `json:"grid_cells,omitempty"`
	Countries    []int64 `json:"countries,omitempty"`
	CountryExact bool    `json:"country_exact,omitempty"`
}

// Normalized drops country lists that are too long and grid cells of
// exact country matches.
func (h IndexHint) Normalized() IndexHint {
	if len(h.Countries) > MaxCountries {
		h.Countries = nil
		h.CountryExact = false
	}
	if len(h.Countries) == 0 {
		h.CountryExact = false
	}
	if h.CountryExact {
		h.GridCells = nil
	}
	if h.GridColumn == "" {
		h.GridColumn = DefaultGridColumn
	}
	return h
}

func (h IndexHint) Empty() bool {
	return len(h.GridCells) == 0 && len(h.Countries) == 0
}

type Options struct {
	// MergeAttributes forces a shared column set for all classes. It is
	// always applied for formats without per-class columns.
	MergeAttributes bool
	// CountryTables lists the tables with a country membership column.
	// Defaults to all raw data tables.
	CountryTables []string
	// GridTables lists the tables with a grid cell column. Defaults to
	// ways_poly.
	GridTables []string
}

func (o Options) countryTable(table string) bool {
	if o.CountryTables == nil {
		return true
	}
	return contains(o.CountryTables, table)
}

func (o Options) gridTable(table string) bool {
	if o.GridTables == nil {
		return table == WaysPolyTable
	}
	return contains(o.GridTables, table)
}

// SubQuery is the select of one geometry class from one table.
type SubQuery struct {
	Class   request.GeometryClass
	Table   string
	Columns []string
	// Spatial is empty when an exact country match replaced it.
	Spatial string
	Index   []string
	Tags    string
	Shape   string
}

func (q SubQuery) conditions() []string {
	var conds []string
	if q.Spatial != "" {
		conds = append(conds, q.Spatial)
	}
	conds = append(conds, q.Index...)
	if q.Shape != "" {
		conds = append(conds, q.Shape)
	}
	if q.Tags != "" {
		conds = append(conds, "("+q.Tags+")")
	}
	return conds
}

func (q SubQuery) SQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(q.Columns, ", "), q.Table)
	if conds := q.conditions(); len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return sql
}

// GeoJSONSQL wraps the select to return one GeoJSON feature per row.
func (q SubQuery) GeoJSONSQL() string {
	return "SELECT ST_AsGeoJSON(t.*) FROM (" + q.SQL() + ") t"
}

type Plan struct {
	Queries []SubQuery
	// Ignored lists filter keys without effect on the plan.
	Ignored []string
}

// SQL returns the union of all sub-selects. The column lists of all
// sub-selects need to match, see Options.MergeAttributes.
func (p *Plan) SQL() string {
	parts := make([]string, len(p.Queries))
	for i, q := range p.Queries {
		parts[i] = q.SQL()
	}
	return strings.Join(parts, " UNION ALL ")
}

// GeoJSONSQL returns the union of all sub-selects, each emitting one
// GeoJSON feature string per row.
func (p *Plan) GeoJSONSQL() string {
	parts := make([]string, len(p.Queries))
	for i, q := range p.Queries {
		parts[i] = q.GeoJSONSQL()
	}
	return strings.Join(parts, " UNION ALL ")
}

// ForClass returns the part of the plan that selects class.
func (p *Plan) ForClass(class request.GeometryClass) *Plan {
	sub := &Plan{Ignored: p.Ignored}
	for _, q := range p.Queries {
		if q.Class == class {
			sub.Queries = append(sub.Queries, q)
		}
	}
	return sub
}

func (p *Plan) Classes() []request.GeometryClass {
	var classes []request.GeometryClass
	for _, q := range p.Queries {
		if len(classes) == 0 || classes[len(classes)-1] != q.Class {
			classes = append(classes, q.Class)
		}
	}
	return classes
}

// dedupe removes sub-selects that are textually identical to an earlier
// one. Selects that only differ in their shape are kept.
func (p *Plan) dedupe() {
	seen := make(map[string]bool, len(p.Queries))
	queries := p.Queries[:0]
	for _, q := range p.Queries {
		sql := q.SQL()
		if seen[sql] {
			log.Debugf("dropping duplicate %s query for %s", q.Table, q.Class)
			continue
		}
		seen[sql] = true
		queries = append(queries, q)
	}
	p.Queries = queries
}

// sameQuery reports whether a and b select the same rows apart from
// their shape discriminant.
func sameQuery(a, b SubQuery) bool {
	return a.Table == b.Table &&
		a.Spatial == b.Spatial &&
		a.Tags == b.Tags &&
		equalStrings(a.Columns, b.Columns) &&
		equalStrings(a.Index, b.Index)
}

type source struct {
	table   string
	osmType string
	shape   string
}

var classSources = map[request.GeometryClass][]source{
	request.Point:   {{NodesTable, "node", ""}},
	request.Line:    {{WaysLineTable, "way", ""}, {RelationsTable, "relation", LineShape}},
	request.Polygon: {{WaysPolyTable, "way", ""}, {RelationsTable, "relation", PolygonShape}},
}

// Assemble builds the query plan of req. Each requested geometry class
// selects from its ways/nodes table and, for lines and polygons, from
// the relations of the matching shape.
func Assemble(req *request.ExtractionRequest, hint IndexHint, opts Options) (*Plan, error) {
	tree := req.Filters
	if opts.MergeAttributes || !req.Format.PerClassColumns() {
		tree = tree.WithMergedAttributes()
	}

	spatial, err := SpatialPredicate(req.Geometry, req.EffectiveMode())
	if err != nil {
		return nil, err
	}
	hint = hint.Normalized()

	plan := &Plan{Ignored: req.IgnoredFilterKeys()}
	var relations []SubQuery
	for _, class := range req.Classes() {
		tags := filter.CompileString(tree.TagsFor(string(class)))
		attrs := tree.AttributesFor(string(class))
		for _, src := range classSources[class] {
			q := SubQuery{
				Class:   class,
				Table:   src.table,
				Columns: columns(src.osmType, attrs, req.Centroid),
				Spatial: spatial,
				Tags:    tags,
				Shape:   src.shape,
			}
			applyHint(&q, hint, opts)
			if q.Table == RelationsTable {
				for _, other := range relations {
					if sameQuery(q, other) {
						log.Debugf("%s relations use the same query as %s, keeping both shapes", q.Class, other.Class)
					}
				}
				relations = append(relations, q)
			}
			plan.Queries = append(plan.Queries, q)
		}
	}
	plan.dedupe()
	return plan, nil
}

func applyHint(q *SubQuery, hint IndexHint, opts Options) {
	if len(hint.Countries) > 0 && opts.countryTable(q.Table) {
		if hint.CountryExact {
			q.Spatial = ""
		}
		q.Index = append(q.Index, fmt.Sprintf("%s && ARRAY[%s]", CountryColumn, intList(hint.Countries)))
	}
	if len(hint.GridCells) > 0 && opts.gridTable(q.Table) {
		q.Index = append(q.Index, fmt.Sprintf("%s = ANY(ARRAY[%s])", hint.GridColumn, intList(hint.GridCells)))
	}
}

func columns(osmType string, attrs []string, centroid bool) []string {
	cols := []string{"osm_id", "'" + osmType + "' AS osm_type", "version"}
	if len(attrs) > 0 {
		cols = append(cols, filter.Columns(attrs)...)
	} else {
		cols = append(cols, defaultColumns...)
	}
	if centroid {
		cols = append(cols, "ST_Centroid(geom) AS geom")
	} else {
		cols = append(cols, GeomColumn)
	}
	return cols
}

func intList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
