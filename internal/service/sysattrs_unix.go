//go:build !windows

package service

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so a group kill
// reaches everything it forks.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
