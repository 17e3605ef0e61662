package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const maxOutput = 4096

// Error is returned when an external converter failed or exceeded its
// timeout. Output holds the tail of the combined stdout/stderr.
type Error struct {
	Cmd      string
	Output   string
	Err      error
	TimedOut bool
}

func (e *Error) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out: %s", e.Cmd, e.Output)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Cmd, e.Err, e.Output)
}

func (e *Error) Cause() error  { return e.Err }
func (e *Error) Unwrap() error { return e.Err }

// runCommand runs name and kills it with all its children once timeout
// is exceeded. env is added to the environment of this process.
func runCommand(ctx context.Context, timeout time.Duration, env []string, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	killProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	buf := &bytes.Buffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf

	start := time.Now()
	err := cmd.Run()
	out := buf.Bytes()
	if err != nil {
		cerr := &Error{Cmd: name, Output: tail(out), Err: err}
		if ctx.Err() == context.DeadlineExceeded {
			cerr.TimedOut = true
			cerr.Err = ctx.Err()
		}
		return out, cerr
	}
	log.Debugf("%s %s took %s", name, strings.Join(args, " "), time.Since(start))
	return out, nil
}

func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutput {
		s = "..." + s[len(s)-maxOutput:]
	}
	return s
}
