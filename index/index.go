/*
Package index selects precomputed index values that narrow the queries
of an extraction: an exact country match, overlapping countries or grid
cells of the request polygon.
*/
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/cache"
	"github.com/omniscale/osmextract/logging"
	"github.com/omniscale/osmextract/query"
)

var log = logging.NewLogger("index")

// Lookup runs the index queries against the spatial store.
type Lookup interface {
	// ExactCountries returns the ids of country boundaries that equal g
	// after snapping both to a fixed grid.
	ExactCountries(ctx context.Context, g orb.Geometry) ([]int64, error)
	OverlappingCountries(ctx context.Context, g orb.Geometry) ([]int64, error)
	// GridCells returns the ids of all grid table cells intersecting g.
	GridCells(ctx context.Context, g orb.Geometry) ([]int64, error)
}

// LookupError is returned when an index query failed. The extraction is
// aborted before any plan is built.
type LookupError struct {
	Step string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("spatial index lookup (%s): %v", e.Step, e.Err)
}

func (e *LookupError) Cause() error  { return e.Err }
func (e *LookupError) Unwrap() error { return e.Err }

type GridSource string

const (
	GridNone  GridSource = "none"
	GridTable GridSource = "table"
	GridH3    GridSource = "h3"
)

func ParseGridSource(s string) (GridSource, error) {
	switch GridSource(strings.ToLower(s)) {
	case "", GridTable:
		return GridTable, nil
	case GridNone:
		return GridNone, nil
	case GridH3:
		return GridH3, nil
	}
	return "", errors.Errorf("unknown grid source %q", s)
}

type Options struct {
	Grid GridSource
	// GridColumn of the polygon table holding the cell id.
	GridColumn   string
	H3Resolution int
	// MaxCells drops grid hints with more cells. Zero disables the
	// limit.
	MaxCells int
	// Countries disables the country lookups when false.
	Countries bool
}

// Selector is the index selection step of an extraction.
type Selector interface {
	Select(ctx context.Context, lookup Lookup, g orb.Geometry) (query.IndexHint, error)
}

type selector struct {
	opts Options
}

func New(opts Options) Selector {
	if opts.Grid == "" {
		opts.Grid = GridTable
	}
	if opts.GridColumn == "" {
		opts.GridColumn = query.DefaultGridColumn
	}
	return &selector{opts: opts}
}

// Select returns the index hint for g. An exact country match is
// returned without grid cells. Otherwise up to query.MaxCountries
// overlapping countries are combined with the grid cells of g.
func (s *selector) Select(ctx context.Context, lookup Lookup, g orb.Geometry) (query.IndexHint, error) {
	hint := query.IndexHint{GridColumn: s.opts.GridColumn}

	if s.opts.Countries {
		ids, err := lookup.ExactCountries(ctx, g)
		if err != nil {
			return hint, &LookupError{Step: "exact countries", Err: err}
		}
		if len(ids) > 0 && len(ids) <= query.MaxCountries {
			hint.Countries = sortedIDs(ids)
			hint.CountryExact = true
			log.Printf("request matches countries %v", hint.Countries)
			return hint, nil
		}

		ids, err = lookup.OverlappingCountries(ctx, g)
		if err != nil {
			return hint, &LookupError{Step: "overlapping countries", Err: err}
		}
		if len(ids) <= query.MaxCountries {
			hint.Countries = sortedIDs(ids)
		} else {
			log.Debugf("%d overlapping countries, not selective", len(ids))
		}
	}

	var cells []int64
	var err error
	switch s.opts.Grid {
	case GridTable:
		cells, err = lookup.GridCells(ctx, g)
		if err != nil {
			return hint, &LookupError{Step: "grid cells", Err: err}
		}
	case GridH3:
		cells, err = H3Cells(g, s.opts.H3Resolution)
		if err != nil {
			return hint, &LookupError{Step: "h3 cells", Err: err}
		}
	}
	if s.opts.MaxCells > 0 && len(cells) > s.opts.MaxCells {
		log.Debugf("%d grid cells exceed limit of %d", len(cells), s.opts.MaxCells)
		cells = nil
	}
	hint.GridCells = sortedIDs(cells)
	return hint, nil
}

func sortedIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// Cached stores selected hints in c. Cache errors are logged and the
// hint is selected again.
type Cached struct {
	Selector Selector
	Cache    cache.Cache
	// Salt is part of every key and needs to change with the index
	// options.
	Salt string
}

func NewCached(sel Selector, c cache.Cache, opts Options) *Cached {
	salt := fmt.Sprintf("%s:%s:%d:%d:%t", opts.Grid, opts.GridColumn, opts.H3Resolution, opts.MaxCells, opts.Countries)
	return &Cached{Selector: sel, Cache: c, Salt: salt}
}

func (c *Cached) Select(ctx context.Context, lookup Lookup, g orb.Geometry) (query.IndexHint, error) {
	key, err := hintKey(g, c.Salt)
	if err != nil {
		return c.Selector.Select(ctx, lookup, g)
	}
	data, ok, err := c.Cache.Get(ctx, key)
	if err != nil {
		log.Warnf("reading index hint from cache: %s", err)
	} else if ok {
		hint := query.IndexHint{}
		if err := json.Unmarshal(data, &hint); err == nil {
			log.Debugf("using cached index hint %s", key)
			return hint, nil
		}
		log.Warnf("invalid cached index hint %s", key)
		if err := c.Cache.Delete(ctx, key); err != nil {
			log.Warnf("removing index hint from cache: %s", err)
		}
	}

	hint, err := c.Selector.Select(ctx, lookup, g)
	if err != nil {
		return hint, err
	}
	data, err = json.Marshal(hint)
	if err != nil {
		return hint, nil
	}
	if err := c.Cache.Set(ctx, key, data); err != nil {
		log.Warnf("storing index hint in cache: %s", err)
	}
	return hint, nil
}

func hintKey(g orb.Geometry, salt string) (string, error) {
	area, err := query.AreaSQL(g)
	if err != nil {
		return "", err
	}
	return cache.Key("hint", salt, area), nil
}
