/*
Package export runs extractions: it selects the spatial index, assembles
the query plan, converts the result into the requested format, bundles
the files and hands them to the delivery.
*/
package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/archive"
	"github.com/omniscale/osmextract/convert"
	"github.com/omniscale/osmextract/delivery"
	"github.com/omniscale/osmextract/index"
	"github.com/omniscale/osmextract/logging"
	"github.com/omniscale/osmextract/query"
	"github.com/omniscale/osmextract/request"
	"github.com/omniscale/osmextract/stats"
)

var log = logging.NewLogger("export")

type Options struct {
	ExportDir string
	// Timeout for each external converter process.
	Timeout  time.Duration
	Binaries convert.Binaries
	Query    query.Options

	Confirm      bool
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Artifact is the working directory of one extraction and the files
// produced in it.
type Artifact struct {
	Dir   string
	Files []string
	Bytes int64
}

type Result struct {
	URL         string
	FileName    string
	ProcessTime time.Duration
	AreaKm2     float64
	// Bytes is the size of all produced files before compression.
	Bytes    int64
	ZipBytes int64
	Rows     int64
	// IgnoredFilterKeys lists filter keys that had no effect.
	IgnoredFilterKeys []string
	// Confirmed is false if the published artifact could not be
	// confirmed. URL is still valid and the working directory is kept.
	Confirmed bool
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		URL               string   `json:"download_url"`
		FileName          string   `json:"file_name"`
		ProcessTime       string   `json:"process_time"`
		AreaKm2           float64  `json:"query_area"`
		Bytes             int64    `json:"binded_file_size"`
		ZipBytes          int64    `json:"zip_file_size_bytes"`
		Rows              int64    `json:"rows,omitempty"`
		IgnoredFilterKeys []string `json:"ignored_filter_keys,omitempty"`
		Confirmed         bool     `json:"confirmed"`
	}{
		r.URL, r.FileName, r.ProcessTime.Round(time.Millisecond).String(), r.AreaKm2,
		r.Bytes, r.ZipBytes, r.Rows, r.IgnoredFilterKeys, r.Confirmed,
	})
}

type Exporter struct {
	store     DataStore
	selector  index.Selector
	deliverer delivery.Deliverer
	opts      Options
	converter func(request.Format) convert.Converter
}

// New returns an Exporter. selector can be nil to skip the index
// selection.
func New(store DataStore, selector index.Selector, deliverer delivery.Deliverer, opts Options) *Exporter {
	e := &Exporter{
		store:     store,
		selector:  selector,
		deliverer: deliverer,
		opts:      opts,
	}
	e.converter = func(f request.Format) convert.Converter {
		return convert.For(f, e.opts.Binaries)
	}
	return e
}

// Plan returns the query plan of req. Without a data store the plan is
// built without index hints.
func (e *Exporter) Plan(ctx context.Context, req *request.ExtractionRequest) (*query.Plan, error) {
	if e.store == nil || e.selector == nil {
		return query.Assemble(req, query.IndexHint{}, e.opts.Query)
	}
	sess, err := e.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return e.assemble(ctx, sess, req)
}

func (e *Exporter) assemble(ctx context.Context, sess Session, req *request.ExtractionRequest) (*query.Plan, error) {
	hint := query.IndexHint{}
	if e.selector != nil {
		var err error
		hint, err = e.selector.Select(ctx, sess, req.Geometry)
		if err != nil {
			return nil, err
		}
	}
	stats.IndexHint(hintKind(hint))
	return query.Assemble(req, hint, e.opts.Query)
}

func hintKind(h query.IndexHint) string {
	h = h.Normalized()
	switch {
	case h.CountryExact:
		return "country_exact"
	case len(h.Countries) > 0:
		return "country"
	case len(h.GridCells) > 0:
		return "grid"
	}
	return "none"
}

// Run executes the extraction of req and delivers the result.
func (e *Exporter) Run(ctx context.Context, req *request.ExtractionRequest) (*Result, error) {
	start := time.Now()
	format := string(req.Format)
	result := &Result{
		FileName:          req.FileName,
		AreaKm2:           req.Area(),
		IgnoredFilterKeys: req.IgnoredFilterKeys(),
	}
	if len(result.IgnoredFilterKeys) > 0 {
		log.Warnf("ignoring unknown filter keys %v", result.IgnoredFilterKeys)
	}
	log.Printf("exporting %.1f km² as %s", result.AreaKm2, format)

	art, rows, err := e.produce(ctx, req)
	if err != nil {
		var cerr *convert.Error
		if errors.As(err, &cerr) {
			stats.ConverterFailure(format, cerr.TimedOut)
		}
		stats.ObserveExtraction(format, stats.OutcomeFailed, time.Since(start), 0)
		return nil, err
	}
	result.Rows = rows
	result.Bytes = art.Bytes

	path, suffix, zipBytes, err := e.bundle(req, art)
	if err != nil {
		stats.ObserveExtraction(format, stats.OutcomeFailed, time.Since(start), 0)
		return nil, err
	}
	result.ZipBytes = zipBytes

	h := delivery.Handoff{
		Deliverer:    e.deliverer,
		Confirm:      e.opts.Confirm,
		PollInterval: e.opts.PollInterval,
		PollTimeout:  e.opts.PollTimeout,
	}
	receipt, err := h.Deliver(ctx, art.Dir, path, filepath.Base(art.Dir), suffix)
	if err != nil {
		stats.ObserveExtraction(format, stats.OutcomeFailed, time.Since(start), 0)
		return nil, errors.Wrap(err, "delivering export")
	}
	result.URL = receipt.URL
	result.Confirmed = receipt.Confirmed
	result.ProcessTime = time.Since(start)

	outcome := stats.OutcomeOK
	if !receipt.Confirmed {
		outcome = stats.OutcomeUnconfirmed
	}
	stats.ObserveExtraction(format, outcome, result.ProcessTime, result.Bytes)
	log.Printf("exported %s (%d bytes) in %s", result.URL, result.Bytes, result.ProcessTime)
	return result, nil
}

// produce selects the index, assembles the plan and converts it into a
// new working directory. The database session is closed before
// produce returns.
func (e *Exporter) produce(ctx context.Context, req *request.ExtractionRequest) (*Artifact, int64, error) {
	if e.store == nil {
		return nil, 0, errors.New("export without data store")
	}
	sess, err := e.store.Session(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer sess.Close()

	step := log.StartStep("Resolving query plan")
	plan, err := e.assemble(ctx, sess, req)
	log.StopStep(step)
	if err != nil {
		return nil, 0, err
	}

	art := &Artifact{Dir: filepath.Join(e.opts.ExportDir, req.FileName+"_"+uuid.New().String())}
	if err := os.MkdirAll(art.Dir, 0755); err != nil {
		return nil, 0, errors.Wrapf(err, "creating working dir %s", art.Dir)
	}

	step = log.StartStep("Converting to " + string(req.Format))
	res, err := e.converter(req.Format).Run(ctx, plan, art.Dir, convert.Options{
		Source:   newCountingSource(sess),
		ConnInfo: e.store.ConnInfo(),
		ConnEnv:  e.store.ConnEnv(),
		FileName: req.FileName,
		Format:   req.Format,
		MinZoom:  req.MinZoom,
		MaxZoom:  req.MaxZoom,
		Timeout:  e.opts.Timeout,
	})
	log.StopStep(step)
	if err != nil {
		log.Errorf("export failed, keeping %s", art.Dir)
		return nil, 0, err
	}
	art.Files = res.Files
	art.Bytes = res.Bytes
	return art, res.Rows, nil
}

// bundle returns the file to deliver. Streamable formats with a single
// file are delivered as is if the request opts out of the archive.
func (e *Exporter) bundle(req *request.ExtractionRequest, art *Artifact) (string, string, int64, error) {
	if !req.BindZip && req.Format.Streamable() && len(art.Files) == 1 {
		return art.Files[0], req.Format.Suffix(), 0, nil
	}
	geometry, err := req.GeometryJSON()
	if err != nil {
		return "", "", 0, err
	}
	path := filepath.Join(art.Dir, req.FileName+".zip")
	sizes, err := archive.Bundle(art.Dir, path, geometry)
	if err != nil {
		return "", "", 0, err
	}
	if sizes.Uncompressed != art.Bytes {
		log.Warnf("archived %d bytes, but export produced %d bytes", sizes.Uncompressed, art.Bytes)
	}
	return path, "zip", sizes.Compressed, nil
}
