//go:build linux

package execute

import (
	"os/exec"
	"syscall"
)

func setChroot(cmd *exec.Cmd, root string) error {
	cmd.SysProcAttr = &syscall.SysProcAttr{Chroot: root}
	return nil
}
