package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/convert"
	"github.com/omniscale/osmextract/delivery"
	"github.com/omniscale/osmextract/index"
	"github.com/omniscale/osmextract/query"
	"github.com/omniscale/osmextract/request"
)

var square = orb.Polygon{{{8, 53}, {8.1, 53}, {8.1, 53.1}, {8, 53.1}, {8, 53}}}

type fakeSession struct {
	exact     []int64
	countries []int64
	cells     []int64
	lookupErr error
	scanErr   error
	rows      []string
	stmts     []string
	closed    bool
}

func (s *fakeSession) ExactCountries(ctx context.Context, g orb.Geometry) ([]int64, error) {
	return s.exact, s.lookupErr
}

func (s *fakeSession) OverlappingCountries(ctx context.Context, g orb.Geometry) ([]int64, error) {
	return s.countries, s.lookupErr
}

func (s *fakeSession) GridCells(ctx context.Context, g orb.Geometry) ([]int64, error) {
	return s.cells, s.lookupErr
}

func (s *fakeSession) StreamFeatures(ctx context.Context, stmt string, fn func(row []byte) error) (int64, error) {
	s.stmts = append(s.stmts, stmt)
	var n int64
	for _, r := range s.rows {
		if err := fn([]byte(r)); err != nil {
			return n, err
		}
		n++
	}
	return n, s.scanErr
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeStore struct {
	sess *fakeSession
}

func (s *fakeStore) Session(ctx context.Context) (Session, error) {
	return s.sess, nil
}

func (s *fakeStore) ConnInfo() string { return "PG:dbname=test" }

func (s *fakeStore) ConnEnv() []string { return nil }

// missingDeliverer accepts uploads but never publishes them.
type missingDeliverer struct {
	uploads int
}

func (d *missingDeliverer) Upload(ctx context.Context, localPath, name, suffix string) (string, error) {
	d.uploads++
	return "https://example.org/" + name + "." + suffix, nil
}

func (d *missingDeliverer) HeadStatus(ctx context.Context, url string) (int, error) {
	return 404, nil
}

func features(n int) []string {
	rows := make([]string, n)
	for i := range rows {
		rows[i] = `{"type":"Feature","geometry":{"type":"Point","coordinates":[8.05,53.05]},"properties":{"osm_id":1,"osm_type":"node","tags":{"amenity":"school"}}}`
	}
	return rows
}

func newRequest(t *testing.T, format request.Format) *request.ExtractionRequest {
	t.Helper()
	req, err := request.New(square, format)
	if err != nil {
		t.Fatal(err)
	}
	req.FileName = "schools"
	return req
}

type testEnv struct {
	sess     *fakeSession
	exporter *Exporter
	workDir  string
	pubDir   string
}

func newEnv(t *testing.T, deliverer delivery.Deliverer, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		sess:    &fakeSession{rows: features(200)},
		workDir: t.TempDir(),
		pubDir:  t.TempDir(),
	}
	if deliverer == nil {
		deliverer = &delivery.Local{Dir: env.pubDir, BaseURL: "https://example.org/exports"}
	}
	opts.ExportDir = env.workDir
	env.exporter = New(&fakeStore{env.sess}, index.New(index.Options{Countries: true}), deliverer, opts)
	return env
}

func (e *testEnv) workDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		t.Fatal(err)
	}
	var dirs []string
	for _, ent := range entries {
		dirs = append(dirs, ent.Name())
	}
	return dirs
}

func TestRunGeoJSONArchive(t *testing.T) {
	env := newEnv(t, nil, Options{})
	req := newRequest(t, request.GeoJSON)

	result, err := env.exporter.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !env.sess.closed {
		t.Error("session not closed")
	}
	if !result.Confirmed {
		t.Error("not confirmed without confirm option")
	}
	if !strings.HasPrefix(result.URL, "https://example.org/exports/schools_") || !strings.HasSuffix(result.URL, ".zip") {
		t.Error("unexpected url", result.URL)
	}
	if result.Rows != 200 {
		t.Error("unexpected rows", result.Rows)
	}
	if result.ZipBytes <= 0 || result.ZipBytes >= result.Bytes {
		t.Errorf("unexpected sizes %d/%d", result.ZipBytes, result.Bytes)
	}
	if result.AreaKm2 < 70 || result.AreaKm2 > 80 {
		t.Error("unexpected area", result.AreaKm2)
	}
	if dirs := env.workDirs(t); len(dirs) != 0 {
		t.Error("work dir not removed", dirs)
	}
	published, _ := filepath.Glob(filepath.Join(env.pubDir, "schools_*.zip"))
	if len(published) != 1 {
		t.Error("archive not published", published)
	}

	if len(env.sess.stmts) != 1 {
		t.Fatal(env.sess.stmts)
	}
	if strings.Count(env.sess.stmts[0], "ST_AsGeoJSON") != 5 {
		t.Error("expected five sub-selects", env.sess.stmts[0])
	}
}

func TestRunGeoJSONWithoutArchive(t *testing.T) {
	env := newEnv(t, nil, Options{})
	req := newRequest(t, request.GeoJSON)
	req.BindZip = false

	result, err := env.exporter.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(result.URL, ".geojson") {
		t.Error("expected plain geojson", result.URL)
	}
	if result.ZipBytes != 0 {
		t.Error("unexpected zip size", result.ZipBytes)
	}
	published, _ := filepath.Glob(filepath.Join(env.pubDir, "schools_*.geojson"))
	if len(published) != 1 {
		t.Fatal("file not published", published)
	}
	fi, err := os.Stat(published[0])
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != result.Bytes {
		t.Errorf("published %d bytes, reported %d", fi.Size(), result.Bytes)
	}

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	data, _ := os.ReadFile(published[0])
	if err := json.Unmarshal(data, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 200 {
		t.Errorf("unexpected collection %s with %d features", fc.Type, len(fc.Features))
	}
}

func TestRunUnconfirmedKeepsWorkDir(t *testing.T) {
	d := &missingDeliverer{}
	env := newEnv(t, d, Options{
		Confirm:      true,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	})
	req := newRequest(t, request.GeoJSON)

	result, err := env.exporter.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.Confirmed {
		t.Error("confirmed without published file")
	}
	if !strings.HasPrefix(result.URL, "https://example.org/schools_") {
		t.Error("url not returned", result.URL)
	}
	if d.uploads != 1 {
		t.Error("unexpected uploads", d.uploads)
	}
	dirs := env.workDirs(t)
	if len(dirs) != 1 || !strings.HasPrefix(dirs[0], "schools_") {
		t.Fatal("work dir not kept", dirs)
	}
	if _, err := os.Stat(filepath.Join(env.workDir, dirs[0], "schools.zip")); err != nil {
		t.Error("archive not kept", err)
	}
}

func TestRunLookupError(t *testing.T) {
	d := &missingDeliverer{}
	env := newEnv(t, d, Options{})
	env.sess.lookupErr = errors.New("relation countries does not exist")

	_, err := env.exporter.Run(context.Background(), newRequest(t, request.GeoJSON))
	if _, ok := err.(*index.LookupError); !ok {
		t.Fatal("expected lookup error, got", err)
	}
	if !env.sess.closed {
		t.Error("session not closed")
	}
	if len(env.sess.stmts) != 0 {
		t.Error("features streamed after lookup error")
	}
	if dirs := env.workDirs(t); len(dirs) != 0 {
		t.Error("work dir created", dirs)
	}
	if d.uploads != 0 {
		t.Error("uploaded after lookup error")
	}
}

func TestRunScanError(t *testing.T) {
	d := &missingDeliverer{}
	env := newEnv(t, d, Options{})
	scanErr := errors.New("canceling statement due to statement timeout")
	env.sess.scanErr = scanErr

	_, err := env.exporter.Run(context.Background(), newRequest(t, request.GeoJSON))
	if errors.Cause(err) != scanErr {
		t.Fatal("expected scan error, got", err)
	}
	if !env.sess.closed {
		t.Error("session not closed")
	}
	if d.uploads != 0 {
		t.Error("uploaded after scan error")
	}
	dirs := env.workDirs(t)
	if len(dirs) != 1 {
		t.Fatal("work dir not kept", dirs)
	}
	if _, err := os.Stat(filepath.Join(env.workDir, dirs[0], "schools.geojson")); err != nil {
		t.Error("partial file not kept", err)
	}
}

type failingConverter struct{}

func (failingConverter) Run(ctx context.Context, plan *query.Plan, dest string, opts convert.Options) (convert.Result, error) {
	return convert.Result{}, &convert.Error{Cmd: "ogr2ogr", Output: "ERROR 1: unsupported", Err: errors.New("exit status 1")}
}

func TestRunConverterError(t *testing.T) {
	d := &missingDeliverer{}
	env := newEnv(t, d, Options{})
	env.exporter.converter = func(request.Format) convert.Converter { return failingConverter{} }

	_, err := env.exporter.Run(context.Background(), newRequest(t, request.Shapefile))
	cerr, ok := err.(*convert.Error)
	if !ok {
		t.Fatal("expected converter error, got", err)
	}
	if cerr.TimedOut {
		t.Error("unexpected timeout")
	}
	if d.uploads != 0 {
		t.Error("uploaded after converter error")
	}
}

func TestRunExactCountry(t *testing.T) {
	env := newEnv(t, nil, Options{})
	env.sess.exact = []int64{276}
	env.sess.cells = []int64{1, 2, 3}

	if _, err := env.exporter.Run(context.Background(), newRequest(t, request.GeoJSON)); err != nil {
		t.Fatal(err)
	}
	stmt := env.sess.stmts[0]
	if strings.Contains(stmt, "ST_Intersects") {
		t.Error("spatial predicate with exact country", stmt)
	}
	if !strings.Contains(stmt, "country && ARRAY[276]") {
		t.Error("missing country predicate", stmt)
	}
	if strings.Contains(stmt, "grid = ANY") {
		t.Error("grid predicate with exact country", stmt)
	}
}

func TestPlan(t *testing.T) {
	req := newRequest(t, request.GeoJSON)

	plan, err := New(nil, nil, nil, Options{}).Plan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Queries) != 5 {
		t.Error("unexpected queries", len(plan.Queries))
	}

	env := newEnv(t, nil, Options{})
	env.sess.countries = []int64{40, 276}
	env.sess.cells = []int64{7}
	plan, err = env.exporter.Plan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !env.sess.closed {
		t.Error("session not closed")
	}
	sql := plan.SQL()
	if !strings.Contains(sql, "country && ARRAY[40,276]") || !strings.Contains(sql, "grid = ANY(ARRAY[7])") {
		t.Error("index hints missing", sql)
	}
}

func TestResultJSON(t *testing.T) {
	r := &Result{
		URL:               "https://example.org/a.zip",
		FileName:          "a",
		ProcessTime:       1500 * time.Millisecond,
		AreaKm2:           12.5,
		Bytes:             1000,
		ZipBytes:          100,
		IgnoredFilterKeys: []string{"tags.points"},
		Confirmed:         true,
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]interface{}{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["download_url"] != "https://example.org/a.zip" || got["process_time"] != "1.5s" {
		t.Error(string(data))
	}
	if got["zip_file_size_bytes"] != float64(100) || got["binded_file_size"] != float64(1000) {
		t.Error(string(data))
	}
	if _, ok := got["rows"]; ok {
		t.Error("zero rows not omitted", string(data))
	}
}
