package request

import (
	"strings"

	"github.com/pkg/errors"
)

type Format string

const (
	GeoJSON    Format = "geojson"
	Shapefile  Format = "shp"
	KML        Format = "kml"
	CSV        Format = "csv"
	FlatGeobuf Format = "flatgeobuf"
	GeoPackage Format = "geopackage"
	PGDump     Format = "pgdump"
	GeoParquet Format = "geoparquet"
	MBTiles    Format = "mbtiles"
	PMTiles    Format = "pmtiles"
)

// Kind groups output formats by the converter that produces them.
type Kind int

const (
	KindDirect Kind = iota
	KindOGR
	KindTile
)

type formatInfo struct {
	kind            Kind
	driver          string
	suffix          string
	perClassColumns bool
	perClassFiles   bool
	streamable      bool
}

var formats = map[Format]formatInfo{
	GeoJSON:    {kind: KindDirect, suffix: "geojson", perClassColumns: true, streamable: true},
	Shapefile:  {kind: KindOGR, driver: "ESRI Shapefile", suffix: "shp", perClassColumns: true, perClassFiles: true},
	KML:        {kind: KindOGR, driver: "KML", suffix: "kml", streamable: true},
	CSV:        {kind: KindOGR, driver: "CSV", suffix: "csv", streamable: true},
	FlatGeobuf: {kind: KindOGR, driver: "FlatGeobuf", suffix: "fgb", streamable: true},
	GeoPackage: {kind: KindOGR, driver: "GPKG", suffix: "gpkg"},
	PGDump:     {kind: KindOGR, driver: "PGDump", suffix: "sql"},
	GeoParquet: {kind: KindOGR, driver: "Parquet", suffix: "parquet", streamable: true},
	MBTiles:    {kind: KindTile, suffix: "mbtiles", perClassColumns: true},
	PMTiles:    {kind: KindTile, suffix: "pmtiles", perClassColumns: true},
}

var formatAliases = map[string]Format{
	"shapefile": Shapefile,
	"fgb":       FlatGeobuf,
	"gpkg":      GeoPackage,
	"parquet":   GeoParquet,
	"sql":       PGDump,
}

func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if f, ok := formatAliases[name]; ok {
		return f, nil
	}
	if _, ok := formats[Format(name)]; ok {
		return Format(name), nil
	}
	return "", errors.Errorf("unsupported output format %q", name)
}

func (f Format) info() formatInfo {
	if i, ok := formats[f]; ok {
		return i
	}
	return formats[GeoJSON]
}

func (f Format) Kind() Kind { return f.info().kind }

// Driver returns the ogr2ogr driver name for OGR formats.
func (f Format) Driver() string { return f.info().driver }

// Suffix returns the file extension of produced files.
func (f Format) Suffix() string { return f.info().suffix }

// PerClassColumns reports whether each geometry class can carry its own
// column set. Formats that write one combined layer need the union.
func (f Format) PerClassColumns() bool { return f.info().perClassColumns }

// PerClassFiles reports whether one file is written per geometry class.
func (f Format) PerClassFiles() bool { return f.info().perClassFiles }

// Streamable formats can be delivered without a zip archive.
func (f Format) Streamable() bool { return f.info().streamable }
