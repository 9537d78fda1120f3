//go:build windows

package process

import (
	"os"
	"os/exec"
)

func setSysProcAttr(cmd *exec.Cmd) {}

// KillGroup force-terminates the process identified by pid. Windows has no
// POSIX process groups; killing the process itself is the closest match.
func KillGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
