package export

import (
	"context"
	"time"

	"github.com/omniscale/osmextract/stats"
)

const progressInterval = 30 * time.Second

// countingSource logs the scan progress of long running exports.
type countingSource struct {
	sess    Session
	counter *stats.RowCounter
}

func newCountingSource(sess Session) *countingSource {
	return &countingSource{sess: sess, counter: stats.NewRowCounter()}
}

func (s *countingSource) StreamFeatures(ctx context.Context, stmt string, fn func(row []byte) error) (int64, error) {
	return s.sess.StreamFeatures(ctx, stmt, func(row []byte) error {
		s.counter.Add(1)
		if s.counter.Due(progressInterval) {
			log.Printf("streamed %d rows (%.0f/s)", s.counter.Value(), s.counter.Rps())
		}
		return fn(row)
	})
}
