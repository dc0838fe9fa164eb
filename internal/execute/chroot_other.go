//go:build !linux

package execute

import (
	"os/exec"

	"github.com/cockroachdb/errors"
)

func setChroot(_ *exec.Cmd, root string) error {
	return errors.Newf("chroot into %s is only supported on linux", root)
}
