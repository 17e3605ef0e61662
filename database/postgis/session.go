package postgis

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"

	"github.com/omniscale/osmextract/query"
)

const cursorName = "osmextract_features"

// Session is a single connection checked out from the DataStore.
type Session struct {
	conn *sqlx.Conn
	conf Config
}

func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) selectIDs(ctx context.Context, sql string) ([]int64, error) {
	var ids []int64
	if err := s.conn.SelectContext(ctx, &ids, sql); err != nil {
		return nil, &SQLError{sql, err}
	}
	return ids, nil
}

func (s *Session) ExactCountries(ctx context.Context, g orb.Geometry) ([]int64, error) {
	area, err := query.AreaSQL(g)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf(
		"SELECT cid FROM %s WHERE ST_Equals(ST_SnapToGrid(geometry, 0.00001), ST_SnapToGrid(%s, 0.00001))",
		s.conf.CountriesTable, area)
	return s.selectIDs(ctx, sql)
}

func (s *Session) OverlappingCountries(ctx context.Context, g orb.Geometry) ([]int64, error) {
	area, err := query.AreaSQL(g)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT cid FROM %s WHERE ST_Intersects(geometry, %s)", s.conf.CountriesTable, area)
	return s.selectIDs(ctx, sql)
}

func (s *Session) GridCells(ctx context.Context, g orb.Geometry) ([]int64, error) {
	area, err := query.AreaSQL(g)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT id FROM %s WHERE ST_Intersects(geom, %s)", s.conf.GridTable, area)
	return s.selectIDs(ctx, sql)
}

// StreamFeatures runs sql in a server side cursor and calls fn for the
// first column of each row. Only FetchSize rows are held in memory. The
// row slice passed to fn is only valid until fn returns.
func (s *Session) StreamFeatures(ctx context.Context, stmt string, fn func(row []byte) error) (int64, error) {
	var n int64
	tx, err := s.conn.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return n, &ScanError{SQLError{"BEGIN", err}, n}
	}
	defer tx.Rollback()

	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", cursorName, stmt)
	if _, err := tx.ExecContext(ctx, declare); err != nil {
		return n, &ScanError{SQLError{declare, err}, n}
	}

	fetch := fmt.Sprintf("FETCH FORWARD %d FROM %s", s.conf.FetchSize, cursorName)
	for {
		fetched, err := fetchBatch(ctx, tx, fetch, fn)
		n += fetched
		if cbErr, ok := err.(callbackError); ok {
			return n, cbErr.err
		}
		if err != nil {
			return n, &ScanError{SQLError{stmt, err}, n}
		}
		if fetched == 0 {
			break
		}
		log.Debugf("fetched %d rows", n)
	}

	if _, err := tx.ExecContext(ctx, "CLOSE "+cursorName); err != nil {
		return n, &ScanError{SQLError{"CLOSE", err}, n}
	}
	if err := tx.Commit(); err != nil {
		return n, &ScanError{SQLError{"COMMIT", err}, n}
	}
	return n, nil
}

type callbackError struct {
	err error
}

func (e callbackError) Error() string { return e.err.Error() }

func fetchBatch(ctx context.Context, tx *sqlx.Tx, fetch string, fn func(row []byte) error) (int64, error) {
	rows, err := tx.QueryContext(ctx, fetch)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	var row sql.RawBytes
	for rows.Next() {
		if err := rows.Scan(&row); err != nil {
			return n, err
		}
		if err := fn(row); err != nil {
			return n, callbackError{err}
		}
		n++
	}
	return n, rows.Err()
}
