//go:build unix

package convert

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts cmd in a new process group and kills the
// whole group on cancel, so that children of shell wrappers stop too.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
