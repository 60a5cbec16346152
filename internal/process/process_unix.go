//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setPlatformAttrs puts the child in its own process group, so signals sent
// to the gateway's process group do not reach it directly. Stop signals only
// the child process itself, not the rest of its group.
func setPlatformAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
