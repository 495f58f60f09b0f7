//go:build windows

package service

import "os/exec"

func setSysProcAttr(_ *exec.Cmd) {}
