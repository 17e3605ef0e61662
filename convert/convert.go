/*
Package convert writes the result of a query plan to files, either
directly as GeoJSON or with external converters like ogr2ogr and
tippecanoe.
*/
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/logging"
	"github.com/omniscale/osmextract/query"
	"github.com/omniscale/osmextract/request"
)

var log = logging.NewLogger("convert")

const DefaultTimeout = 10 * time.Hour

// Source streams the first column of each result row.
type Source interface {
	StreamFeatures(ctx context.Context, stmt string, fn func(row []byte) error) (int64, error)
}

type Options struct {
	Source Source
	// ConnInfo is the GDAL PG: datasource for converters that query the
	// database themselves.
	ConnInfo string
	// ConnEnv is added to the environment of converters using ConnInfo.
	ConnEnv  []string
	FileName string
	Format   request.Format
	MinZoom  int
	MaxZoom  int
	// Timeout is the hard limit for each external process.
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Result lists the files in the destination directory after a run.
type Result struct {
	Files []string
	Bytes int64
	Rows  int64
}

type Converter interface {
	Run(ctx context.Context, plan *query.Plan, dest string, opts Options) (Result, error)
}

type Binaries struct {
	OGR2OGR    string `yaml:"ogr2ogr"`
	Tippecanoe string `yaml:"tippecanoe"`
}

// For returns the converter of format.
func For(format request.Format, bins Binaries) Converter {
	switch format.Kind() {
	case request.KindOGR:
		return &OGR{Bin: bins.OGR2OGR}
	case request.KindTile:
		return &Tile{Bin: bins.Tippecanoe}
	}
	return &GeoJSON{}
}

// Collect returns all regular files below dir and their total size.
func Collect(dir string) ([]string, int64, error) {
	var files []string
	var size int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		size += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "collecting files in %s", dir)
	}
	sort.Strings(files)
	return files, size, nil
}

func collect(dest string, rows int64) (Result, error) {
	files, size, err := Collect(dest)
	if err != nil {
		return Result{}, err
	}
	return Result{Files: files, Bytes: size, Rows: rows}, nil
}

func checkPlan(plan *query.Plan) error {
	if plan == nil || len(plan.Queries) == 0 {
		return errors.New("empty query plan")
	}
	return nil
}

func layerName(opts Options, class request.GeometryClass) string {
	if class == "" {
		return opts.FileName
	}
	return fmt.Sprintf("%s_%ss", opts.FileName, class)
}
