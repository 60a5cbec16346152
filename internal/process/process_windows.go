//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// setPlatformAttrs puts the child in a new process group, the closest
// Windows analogue to the Unix setpgid isolation in process_unix.go.
func setPlatformAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
