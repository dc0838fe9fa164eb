package install

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"github.com/cozystack/bootcfg/internal/logger"
)

// Unmount detaches every filesystem mounted at or below root, deepest first.
// Failures to unmount are logged and skipped; only failing to list the mounts
// is returned.
func Unmount(root string) error {
	mounts, err := mountinfo.GetMounts(mountinfo.PrefixFilter(root))
	if err != nil {
		return errors.Wrap(err, "list mounts")
	}
	for _, target := range unmountOrder(mounts) {
		if err := unix.Unmount(target, 0); err != nil {
			logger.Log.Warnf("failed to unmount %s: %v", target, err)
			continue
		}
		logger.Log.Debugf("unmounted %s", target)
	}
	return nil
}

// unmountOrder returns the mount points with children before their parents.
// Mounts stacked on one mount point come out newest first.
func unmountOrder(mounts []*mountinfo.Info) []string {
	targets := make([]string, 0, len(mounts))
	for i := len(mounts) - 1; i >= 0; i-- {
		targets = append(targets, mounts[i].Mountpoint)
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return len(targets[i]) > len(targets[j])
	})
	return targets
}
