//go:build !windows

package service

import "syscall"

// killGroup sends SIGKILL to the child's process group so helpers spawned by
// the service die with it.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
