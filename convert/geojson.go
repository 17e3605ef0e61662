package convert

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/query"
)

const (
	collectionHeader = `{"type":"FeatureCollection","features":[` + "\n"
	collectionFooter = "\n]}\n"
)

// GeoJSON streams the features of a plan into one FeatureCollection.
type GeoJSON struct{}

func (c *GeoJSON) Run(ctx context.Context, plan *query.Plan, dest string, opts Options) (Result, error) {
	if err := checkPlan(plan); err != nil {
		return Result{}, err
	}
	path := filepath.Join(dest, opts.FileName+".geojson")
	rows, err := WriteGeoJSON(ctx, opts.Source, plan, path)
	if err != nil {
		return Result{}, err
	}
	return collect(dest, rows)
}

// WriteGeoJSON writes all rows of the plan into a FeatureCollection at
// path. A failed scan leaves the partial file.
func WriteGeoJSON(ctx context.Context, src Source, plan *query.Plan, path string) (int64, error) {
	if src == nil {
		return 0, errors.New("missing feature source")
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 256*1024)
	if _, err := w.WriteString(collectionHeader); err != nil {
		return 0, errors.Wrapf(err, "writing %s", path)
	}

	first := true
	rows, err := src.StreamFeatures(ctx, plan.GeoJSONSQL(), func(row []byte) error {
		if !first {
			if _, err := w.WriteString(",\n"); err != nil {
				return err
			}
		}
		first = false
		_, err := w.Write(row)
		return err
	})
	if err != nil {
		w.Flush()
		return rows, err
	}

	if _, err := w.WriteString(collectionFooter); err != nil {
		return rows, errors.Wrapf(err, "writing %s", path)
	}
	if err := w.Flush(); err != nil {
		return rows, errors.Wrapf(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return rows, errors.Wrapf(err, "closing %s", path)
	}
	log.Printf("wrote %d features to %s", rows, filepath.Base(path))
	return rows, nil
}
