package postgis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	pq "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/logging"
)

var log = logging.NewLogger("PostGIS")

const DefaultFetchSize = 500

type Config struct {
	ConnectionParams string `yaml:"connection"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	// FetchSize is the number of rows fetched from a cursor at once.
	FetchSize      int    `yaml:"fetch_size"`
	CountriesTable string `yaml:"countries_table"`
	GridTable      string `yaml:"grid_table"`
}

type SQLError struct {
	query         string
	originalError error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("SQL Error: %s in query %s", e.originalError.Error(), truncate(e.query, 400))
}

func (e *SQLError) Cause() error  { return e.originalError }
func (e *SQLError) Unwrap() error { return e.originalError }

// ScanError is returned when streaming the rows of a query failed.
// Rows is the number of rows already passed on.
type ScanError struct {
	SQLError
	Rows int64
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan failed after %d rows: %s", e.Rows, e.SQLError.Error())
}

// DataStore is the connection pool of the raw data database.
type DataStore struct {
	Db     *sqlx.DB
	Params string
	Config Config
}

// New parses the connection params and opens the pool. postgis:// URLs
// and libpq key=value strings are accepted.
func New(conf Config) (*DataStore, error) {
	params, err := parseParams(conf.ConnectionParams)
	if err != nil {
		return nil, err
	}
	if conf.FetchSize <= 0 {
		conf.FetchSize = DefaultFetchSize
	}
	if conf.CountriesTable == "" {
		conf.CountriesTable = "countries"
	}
	if conf.GridTable == "" {
		conf.GridTable = "grid"
	}
	ds := &DataStore{Params: params, Config: conf}
	if err := ds.Open(); err != nil {
		return nil, err
	}
	return ds, nil
}

func parseParams(conn string) (string, error) {
	if strings.HasPrefix(conn, "postgis://") {
		conn = strings.Replace(conn, "postgis", "postgres", 1)
	}
	params := conn
	if strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") {
		var err error
		params, err = pq.ParseURL(conn)
		if err != nil {
			return "", errors.Wrap(err, "parsing connection url")
		}
	}
	return disableDefaultSslOnLocalhost(params), nil
}

func (ds *DataStore) Open() error {
	var err error
	ds.Db, err = sqlx.Open("postgres", ds.Params)
	if err != nil {
		return err
	}
	if ds.Config.MaxOpenConns > 0 {
		ds.Db.SetMaxOpenConns(ds.Config.MaxOpenConns)
	}
	ds.Db.SetConnMaxIdleTime(5 * time.Minute)

	err = ds.Db.Ping()
	if err != nil {
		ds.Db.Close()
		return errors.Wrap(err, "connecting to database")
	}
	return nil
}

// Session checks out one connection for the duration of an extraction.
// The connection is returned to the pool with Session.Close.
func (ds *DataStore) Session(ctx context.Context) (*Session, error) {
	conn, err := ds.Db.Connx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "checking out connection")
	}
	return &Session{conn: conn, conf: ds.Config}, nil
}

// ConnInfo returns the connection in the PG: datasource format of GDAL,
// without the password.
func (ds *DataStore) ConnInfo() string {
	return ogrConnInfo(ds.Params)
}

// ConnEnv returns the environment that completes ConnInfo for external
// processes.
func (ds *DataStore) ConnEnv() []string {
	return passwordEnv(ds.Params)
}

func (ds *DataStore) Close() error {
	return ds.Db.Close()
}
