package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// RowCounter counts streamed rows and their rate. It is safe for
// concurrent use.
type RowCounter struct {
	counter int64
	mu      sync.Mutex
	start   time.Time
	last    time.Time
}

func NewRowCounter() *RowCounter {
	return &RowCounter{}
}

func (r *RowCounter) Add(n int) {
	atomic.AddInt64(&r.counter, int64(n))
	if n > 0 {
		r.mu.Lock()
		if r.start.IsZero() {
			r.start = time.Now()
		}
		r.mu.Unlock()
	}
	AddRows(n)
}

func (r *RowCounter) Value() int64 {
	return atomic.LoadInt64(&r.counter)
}

// Rps returns the rows per second since the first row.
func (r *RowCounter) Rps() float64 {
	r.mu.Lock()
	start := r.start
	r.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	secs := time.Since(start).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Value()) / secs
}

// Due reports whether interval passed since the last true result.
func (r *RowCounter) Due(interval time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if r.last.IsZero() {
		r.last = now
		return false
	}
	if now.Sub(r.last) < interval {
		return false
	}
	r.last = now
	return true
}
