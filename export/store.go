package export

import (
	"context"

	"github.com/omniscale/osmextract/convert"
	"github.com/omniscale/osmextract/database/postgis"
	"github.com/omniscale/osmextract/index"
)

// Session is one database connection used for the index lookups and
// the feature scan of an extraction.
type Session interface {
	index.Lookup
	convert.Source
	Close() error
}

type DataStore interface {
	Session(ctx context.Context) (Session, error)
	// ConnInfo is passed to converters that connect on their own.
	ConnInfo() string
	// ConnEnv holds credentials for ConnInfo, passed as environment.
	ConnEnv() []string
}

type postgisStore struct {
	ds *postgis.DataStore
}

// FromPostGIS returns ds as DataStore of an Exporter.
func FromPostGIS(ds *postgis.DataStore) DataStore {
	return postgisStore{ds}
}

func (s postgisStore) Session(ctx context.Context) (Session, error) {
	sess, err := s.ds.Session(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s postgisStore) ConnInfo() string {
	return s.ds.ConnInfo()
}

func (s postgisStore) ConnEnv() []string {
	return s.ds.ConnEnv()
}
