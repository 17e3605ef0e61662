package convert

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/query"
	"github.com/omniscale/osmextract/request"
)

// OGR exports a plan with ogr2ogr. ogr2ogr reads the SQL from a side
// file and queries the database with its own connection.
type OGR struct {
	Bin string
}

func (c *OGR) bin() string {
	if c.Bin == "" {
		return "ogr2ogr"
	}
	return c.Bin
}

func (c *OGR) Run(ctx context.Context, plan *query.Plan, dest string, opts Options) (Result, error) {
	if err := checkPlan(plan); err != nil {
		return Result{}, err
	}
	if opts.ConnInfo == "" {
		return Result{}, errors.New("missing database connection for ogr2ogr")
	}

	if opts.Format.PerClassFiles() {
		for _, class := range plan.Classes() {
			if err := c.export(ctx, plan.ForClass(class), dest, layerName(opts, class), opts); err != nil {
				return Result{}, err
			}
		}
	} else {
		if err := c.export(ctx, plan, dest, layerName(opts, ""), opts); err != nil {
			return Result{}, err
		}
	}
	return collect(dest, 0)
}

func (c *OGR) export(ctx context.Context, plan *query.Plan, dest, layer string, opts Options) error {
	sqlFile, err := ioutil.TempFile("", "osmextract_*.sql")
	if err != nil {
		return errors.Wrap(err, "creating sql file")
	}
	defer os.Remove(sqlFile.Name())
	if _, err := sqlFile.WriteString(plan.SQL()); err != nil {
		sqlFile.Close()
		return errors.Wrap(err, "writing sql file")
	}
	if err := sqlFile.Close(); err != nil {
		return errors.Wrap(err, "writing sql file")
	}

	out := filepath.Join(dest, layer+"."+opts.Format.Suffix())
	args := ogrArgs(opts.Format, out, opts.ConnInfo, sqlFile.Name(), layer)
	log.Printf("exporting %s with ogr2ogr", filepath.Base(out))
	_, err = runCommand(ctx, opts.timeout(), opts.ConnEnv, c.bin(), args...)
	return err
}

func ogrArgs(format request.Format, out, connInfo, sqlFile, layer string) []string {
	args := []string{
		"-overwrite",
		"-f", format.Driver(),
		out,
		connInfo,
		"-sql", "@" + sqlFile,
		"-nln", layer,
	}
	if format == request.Shapefile {
		args = append(args, "-lco", "ENCODING=UTF-8")
	}
	return args
}
