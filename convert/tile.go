package convert

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/query"
)

// Tile writes an intermediate GeoJSON file and converts it to a tile
// bundle with tippecanoe.
type Tile struct {
	Bin string
}

func (c *Tile) bin() string {
	if c.Bin == "" {
		return "tippecanoe"
	}
	return c.Bin
}

func (c *Tile) Run(ctx context.Context, plan *query.Plan, dest string, opts Options) (Result, error) {
	if err := checkPlan(plan); err != nil {
		return Result{}, err
	}
	tmp, err := ioutil.TempDir("", "osmextract_tiles_")
	if err != nil {
		return Result{}, errors.Wrap(err, "creating tile tmp dir")
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, opts.FileName+".geojson")
	rows, err := WriteGeoJSON(ctx, opts.Source, plan, input)
	if err != nil {
		return Result{}, err
	}

	out := filepath.Join(dest, opts.FileName+"."+opts.Format.Suffix())
	args := tileArgs(out, opts.FileName, input, opts.MinZoom, opts.MaxZoom)
	log.Printf("creating %s with tippecanoe", filepath.Base(out))
	if _, err := runCommand(ctx, opts.timeout(), nil, c.bin(), args...); err != nil {
		return Result{}, err
	}
	return collect(dest, rows)
}

// tileArgs uses explicit zoom levels if a max zoom is set, otherwise
// tippecanoe guesses the zoom levels.
func tileArgs(out, layer, input string, minZoom, maxZoom int) []string {
	args := []string{"-o", out, "--layer=" + layer, "--force"}
	if maxZoom > 0 {
		args = append(args,
			"--minimum-zoom="+strconv.Itoa(minZoom),
			"--maximum-zoom="+strconv.Itoa(maxZoom),
		)
	} else {
		args = append(args, "-zg")
	}
	return append(args, input)
}
