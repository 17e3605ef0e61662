//go:build !unix

package convert

import "os/exec"

func killProcessGroup(cmd *exec.Cmd) {}
