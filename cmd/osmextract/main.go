package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/omniscale/osmextract"
	"github.com/omniscale/osmextract/cache"
	"github.com/omniscale/osmextract/config"
	"github.com/omniscale/osmextract/database/postgis"
	"github.com/omniscale/osmextract/delivery"
	"github.com/omniscale/osmextract/export"
	"github.com/omniscale/osmextract/index"
	"github.com/omniscale/osmextract/logging"
	"github.com/omniscale/osmextract/request"
	"github.com/omniscale/osmextract/stats"
)

var log = logging.NewLogger("")

func PrintCmds() {
	fmt.Fprintf(os.Stderr, "Usage: %s COMMAND [args]\n\n", os.Args[0])
	fmt.Println("Available commands:")
	fmt.Println("\texport")
	fmt.Println("\tplan")
	fmt.Println("\tversion")
}

func Main(usage func()) {
	if len(os.Args) <= 1 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		opts, errs := config.ParseExport(os.Args[2:])
		if len(errs) != 0 {
			config.ReportErrors(errs)
		}
		if err := runExport(opts); err != nil {
			log.Fatal(err)
		}
	case "plan":
		opts, errs := config.ParsePlan(os.Args[2:])
		if len(errs) != 0 {
			config.ReportErrors(errs)
		}
		if err := runPlan(opts); err != nil {
			log.Fatal(err)
		}
	case "version":
		fmt.Println(osmextract.Version)
		os.Exit(0)
	default:
		usage()
		log.Fatalf("invalid command: '%s'", os.Args[1])
	}
	os.Exit(0)
}

func readRequest(path string) (*request.ExtractionRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	req, err := request.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "invalid request")
	}
	return req, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newSelector returns the index selector and a func that closes its
// hint cache.
func newSelector(ctx context.Context, opts *config.Options) (index.Selector, func(), error) {
	iopts := opts.IndexOptions()
	sel := index.New(iopts)
	c, err := cache.Open(ctx, opts.Cache)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening hint cache")
	}
	if c == nil {
		return sel, func() {}, nil
	}
	closeCache := func() {
		if err := c.Close(); err != nil {
			log.Warnf("closing hint cache: %s", err)
		}
	}
	return index.NewCached(sel, c, iopts), closeCache, nil
}

func runExport(opts *config.Options) error {
	opts.ApplyLogging()
	if opts.HTTPBind != "" {
		stats.StartHTTP(opts.HTTPBind)
	}
	req, err := readRequest(opts.RequestFile)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	if opts.MemProfile != "" {
		go stats.MemProfiler(ctx, opts.MemProfile, 30*time.Second)
	}

	ds, err := postgis.New(opts.PostGIS())
	if err != nil {
		return err
	}
	defer ds.Close()

	selector, closeCache, err := newSelector(ctx, opts)
	if err != nil {
		return err
	}
	defer closeCache()

	deliverer := &delivery.Local{Dir: opts.Delivery.Dir, BaseURL: opts.Delivery.BaseURL}
	if opts.Delivery.HTTPCheck {
		deliverer.Checker = delivery.NewHTTPHead(30 * time.Second)
	}

	exporter := export.New(export.FromPostGIS(ds), selector, deliverer, export.Options{
		ExportDir:    opts.ExportDir,
		Timeout:      opts.ProcessTimeout,
		Binaries:     opts.Binaries,
		Query:        opts.QueryOptions(),
		Confirm:      opts.Delivery.Confirm,
		PollInterval: opts.Delivery.PollInterval,
		PollTimeout:  opts.Delivery.PollTimeout,
	})
	result, err := exporter.Run(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runPlan prints the SQL of a request without running it.
func runPlan(opts *config.Options) error {
	opts.ApplyLogging()
	req, err := readRequest(opts.RequestFile)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	exporter := export.New(nil, nil, nil, export.Options{Query: opts.QueryOptions()})
	if opts.Index {
		ds, err := postgis.New(opts.PostGIS())
		if err != nil {
			return err
		}
		defer ds.Close()
		selector, closeCache, err := newSelector(ctx, opts)
		if err != nil {
			return err
		}
		defer closeCache()
		exporter = export.New(export.FromPostGIS(ds), selector, nil, export.Options{Query: opts.QueryOptions()})
	}
	plan, err := exporter.Plan(ctx, req)
	if err != nil {
		return err
	}
	for _, key := range plan.Ignored {
		log.Warnf("ignoring filter key %s", key)
	}
	fmt.Println(plan.SQL())
	return nil
}

func main() {
	Main(PrintCmds)
}
