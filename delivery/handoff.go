package delivery

import (
	"context"
	"net/http"
	"os"
	"time"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// Handoff uploads an artifact and removes the working directory once
// the upload is done. With Confirm, the working directory is only
// removed after the published URL answered with 200 OK.
type Handoff struct {
	Deliverer    Deliverer
	Confirm      bool
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type Receipt struct {
	URL string
	// Confirmed is false if the published artifact was not available
	// before the poll timeout. The working directory is kept in this
	// case.
	Confirmed bool
	Polls     int
}

// Deliver uploads artifact. Upload errors are returned and leave the
// working directory in place.
func (h *Handoff) Deliver(ctx context.Context, workDir, artifact, name, suffix string) (Receipt, error) {
	u, err := h.Deliverer.Upload(ctx, artifact, name, suffix)
	if err != nil {
		log.Errorf("upload of %s failed, keeping %s", artifact, workDir)
		return Receipt{}, err
	}
	log.Printf("uploaded %s to %s", name, u)

	if !h.Confirm {
		Cleanup(workDir)
		return Receipt{URL: u, Confirmed: true}, nil
	}

	ok, polls := h.poll(ctx, u)
	if !ok {
		log.Warnf("%s not available after %s, keeping %s", u, h.timeout(), workDir)
		return Receipt{URL: u, Polls: polls}, nil
	}
	Cleanup(workDir)
	return Receipt{URL: u, Confirmed: true, Polls: polls}, nil
}

// poll checks u until it is available or the poll timeout is reached.
// The loop is not cancelled with ctx.
func (h *Handoff) poll(ctx context.Context, u string) (bool, int) {
	ctx = context.WithoutCancel(ctx)
	interval := h.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(h.timeout())
	polls := 0
	for {
		polls++
		status, err := h.Deliverer.HeadStatus(ctx, u)
		if err != nil {
			log.Debugf("checking %s: %s", u, err)
		} else if status == http.StatusOK {
			return true, polls
		}
		if time.Now().Add(interval).After(deadline) {
			return false, polls
		}
		time.Sleep(interval)
	}
}

func (h *Handoff) timeout() time.Duration {
	if h.PollTimeout <= 0 {
		return DefaultPollTimeout
	}
	return h.PollTimeout
}

// Cleanup removes dir with all its content. Errors are only logged.
func Cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Errorf("removing %s: %s", dir, err)
		return
	}
	log.Debugf("removed %s", dir)
}
