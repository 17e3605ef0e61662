package stats

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"
)

// MemProfiler writes a numbered heap profile into dir every interval
// until ctx is done.
func MemProfiler(ctx context.Context, dir string, interval time.Duration) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.Errorf("memory profiler: %s", err)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := writeHeapProfile(filepath.Join(dir, fmt.Sprintf("heap-%04d.pprof", i))); err != nil {
			log.Errorf("memory profiler: %s", err)
			return
		}
	}
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pprof.WriteHeapProfile(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
