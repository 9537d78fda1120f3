//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so KillGroup
// reaps the whole subtree.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// KillGroup force-terminates the process group led by pid. Also used by
// the target stop action, which interprets node-style target ids as pids.
func KillGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
