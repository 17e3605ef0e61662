package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/omniscale/osmextract/cache"
	"github.com/omniscale/osmextract/convert"
	"github.com/omniscale/osmextract/database/postgis"
	"github.com/omniscale/osmextract/delivery"
	"github.com/omniscale/osmextract/index"
	"github.com/omniscale/osmextract/logging"
	"github.com/omniscale/osmextract/query"
)

type Config struct {
	Connection     string           `yaml:"connection"`
	MaxOpenConns   int              `yaml:"max_open_conns"`
	FetchSize      int              `yaml:"fetch_size"`
	ExportDir      string           `yaml:"export_dir"`
	ProcessTimeout time.Duration    `yaml:"process_timeout"`
	Binaries       convert.Binaries `yaml:"binaries"`
	Grid           Grid             `yaml:"grid"`
	Countries      Countries        `yaml:"countries"`
	Cache          cache.Config     `yaml:"cache"`
	Delivery       Delivery         `yaml:"delivery"`
	LogLevel       string           `yaml:"log_level"`
	LogJSON        bool             `yaml:"log_json"`
	HTTPBind       string           `yaml:"http"`
}

type Grid struct {
	Source       string   `yaml:"source"`
	Table        string   `yaml:"table"`
	Column       string   `yaml:"column"`
	Tables       []string `yaml:"tables"`
	H3Resolution int      `yaml:"h3_resolution"`
	MaxCells     int      `yaml:"max_cells"`
}

type Countries struct {
	Disabled bool     `yaml:"disabled"`
	Table    string   `yaml:"table"`
	Tables   []string `yaml:"tables"`
}

type Delivery struct {
	Dir          string        `yaml:"dir"`
	BaseURL      string        `yaml:"base_url"`
	Confirm      bool          `yaml:"confirm"`
	HTTPCheck    bool          `yaml:"http_check"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

const (
	defaultExportDir      = "/tmp/osmextract"
	defaultProcessTimeout = 10 * time.Hour
	defaultMaxCells       = 5000
)

// Options are the merged settings of the config file and the command
// line of one sub command.
type Options struct {
	Config
	ConfigFile  string
	RequestFile string
	Quiet       bool
	Httpprofile string
	MemProfile  string
	// Index enables the index lookups for the plan command.
	Index bool
}

func defaultConfig() Config {
	return Config{
		ExportDir:      defaultExportDir,
		ProcessTimeout: defaultProcessTimeout,
		Grid: Grid{
			Source:       string(index.GridTable),
			H3Resolution: index.DefaultH3Resolution,
			MaxCells:     defaultMaxCells,
		},
		Delivery: Delivery{
			Dir:          defaultExportDir + "/public",
			BaseURL:      "file://" + defaultExportDir + "/public",
			PollInterval: delivery.DefaultPollInterval,
			PollTimeout:  delivery.DefaultPollTimeout,
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file. JSON files are read as well, as JSON
// is a subset of YAML.
func Load(path string) (Config, error) {
	conf := defaultConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return conf, errors.Wrap(err, "reading config")
	}
	if err := yaml.UnmarshalStrict(data, &conf); err != nil {
		return conf, errors.Wrapf(err, "parsing %s", path)
	}
	return conf, nil
}

func (o *Options) updateFromConfig() error {
	conf := defaultConfig()
	if o.ConfigFile != "" {
		var err error
		conf, err = Load(o.ConfigFile)
		if err != nil {
			return err
		}
	}

	if o.Connection == "" {
		o.Connection = conf.Connection
	}
	if o.ExportDir == "" {
		o.ExportDir = conf.ExportDir
	}
	if o.ProcessTimeout == 0 {
		o.ProcessTimeout = conf.ProcessTimeout
	}
	if o.LogLevel == "" {
		o.LogLevel = conf.LogLevel
	}
	if o.HTTPBind == "" {
		o.HTTPBind = conf.HTTPBind
	}
	if o.Httpprofile != "" {
		// -httpprofile is the old name of -http
		o.HTTPBind = o.Httpprofile
	}
	if o.Grid.Source == "" {
		o.Grid.Source = conf.Grid.Source
	}
	o.MaxOpenConns = conf.MaxOpenConns
	o.FetchSize = conf.FetchSize
	o.Binaries = conf.Binaries
	o.Grid.Table = conf.Grid.Table
	o.Grid.Column = conf.Grid.Column
	o.Grid.Tables = conf.Grid.Tables
	o.Grid.H3Resolution = conf.Grid.H3Resolution
	o.Grid.MaxCells = conf.Grid.MaxCells
	o.Countries = conf.Countries
	o.Cache = conf.Cache
	o.Delivery = conf.Delivery
	o.LogJSON = o.LogJSON || conf.LogJSON
	return nil
}

func (o *Options) check(needsDB bool) []error {
	errs := []error{}
	if needsDB && o.Connection == "" {
		errs = append(errs, errors.New("missing connection"))
	}
	if o.RequestFile == "" {
		errs = append(errs, errors.New("missing -request"))
	}
	if _, err := index.ParseGridSource(o.Grid.Source); err != nil {
		errs = append(errs, err)
	}
	if o.ProcessTimeout < 0 {
		errs = append(errs, errors.New("negative process timeout"))
	}
	if o.Delivery.PollInterval <= 0 || o.Delivery.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll interval and timeout need to be positive"))
	}
	return errs
}

// IndexOptions returns the spatial index selector settings.
func (o *Options) IndexOptions() index.Options {
	src, _ := index.ParseGridSource(o.Grid.Source)
	return index.Options{
		Grid:         src,
		GridColumn:   o.Grid.Column,
		H3Resolution: o.Grid.H3Resolution,
		MaxCells:     o.Grid.MaxCells,
		Countries:    !o.Countries.Disabled,
	}
}

func (o *Options) PostGIS() postgis.Config {
	return postgis.Config{
		ConnectionParams: o.Connection,
		MaxOpenConns:     o.MaxOpenConns,
		FetchSize:        o.FetchSize,
		CountriesTable:   o.Countries.Table,
		GridTable:        o.Grid.Table,
	}
}

// QueryOptions returns the tables that carry index columns.
func (o *Options) QueryOptions() query.Options {
	return query.Options{
		CountryTables: o.Countries.Tables,
		GridTables:    o.Grid.Tables,
	}
}

func addBaseFlags(opts *Options, flags *flag.FlagSet) {
	flags.StringVar(&opts.ConfigFile, "config", "", "config (yaml or json)")
	flags.StringVar(&opts.Connection, "connection", "", "connection parameters")
	flags.StringVar(&opts.RequestFile, "request", "", "extraction request (json), - for stdin")
	flags.StringVar(&opts.Grid.Source, "grid", "", "grid source: table, h3 or none")
	flags.StringVar(&opts.LogLevel, "loglevel", "", "log level: debug, info, warn or error")
	flags.BoolVar(&opts.LogJSON, "logjson", false, "log as json lines")
	flags.BoolVar(&opts.Quiet, "quiet", false, "quiet log output")
}

func usage(flags *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s [args]\n\n", os.Args[0], flags.Name())
		flags.PrintDefaults()
	}
}

func parse(flags *flag.FlagSet, opts *Options, args []string, needsDB func() bool) (*Options, []error) {
	if err := flags.Parse(args); err != nil {
		return nil, []error{err}
	}
	if err := opts.updateFromConfig(); err != nil {
		return nil, []error{err}
	}
	if errs := opts.check(needsDB()); len(errs) != 0 {
		return nil, errs
	}
	return opts, nil
}

// ParseExport parses the arguments of the export command.
func ParseExport(args []string) (*Options, []error) {
	opts := &Options{}
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.Usage = usage(flags)
	addBaseFlags(opts, flags)
	flags.StringVar(&opts.ExportDir, "exportdir", "", "working directory for exports")
	flags.DurationVar(&opts.ProcessTimeout, "timeout", 0, "timeout for external converters")
	flags.StringVar(&opts.HTTPBind, "http", "", "bind address for metrics and profiling")
	flags.StringVar(&opts.Httpprofile, "httpprofile", "", "bind address for profile server")
	flags.StringVar(&opts.MemProfile, "memprofile", "", "dir for periodic heap profiles")
	return parse(flags, opts, args, func() bool { return true })
}

// ParsePlan parses the arguments of the plan command. The database is
// only required with -index.
func ParsePlan(args []string) (*Options, []error) {
	opts := &Options{}
	flags := flag.NewFlagSet("plan", flag.ContinueOnError)
	flags.Usage = usage(flags)
	addBaseFlags(opts, flags)
	flags.BoolVar(&opts.Index, "index", false, "query spatial index hints from the database")
	return parse(flags, opts, args, func() bool { return opts.Index })
}

// ApplyLogging sets the log level and output of the logging package.
func (o *Options) ApplyLogging() {
	logging.SetOutput(os.Stderr, !o.LogJSON)
	logging.SetLevel(logging.ParseLevel(o.LogLevel))
	logging.SetQuiet(o.Quiet)
}

func ReportErrors(errs []error) {
	fmt.Println("errors in config/options:")
	for _, err := range errs {
		fmt.Printf("\t%s\n", err)
	}
	os.Exit(1)
}
