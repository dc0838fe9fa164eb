package install

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/bootargs"
	"github.com/cozystack/bootcfg/internal/logger"
	"github.com/cozystack/bootcfg/internal/topology"
)

// FstabFile is the fstab location relative to the install root.
const FstabFile = "/etc/fstab"

// RewriteFstab points the fstab entries of an encrypted swap device at its
// mapper path. It returns the number of entries changed. A missing fstab is
// not an error.
func RewriteFstab(root string, o *bootargs.SwapOverride) (int, error) {
	if o == nil {
		return 0, nil
	}
	path := filepath.Join(root, FstabFile)
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Log.Warnf("%s does not exist, swap entry not updated", path)
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", path)
	}

	content, n := rewriteSwap(string(data), o)
	if n == 0 {
		logger.Log.Warnf("no entry for swap device %s in %s", o.Device, path)
		return 0, nil
	}
	if err := os.WriteFile(path, []byte(content), st.Mode().Perm()); err != nil {
		return 0, errors.Wrapf(err, "write %s", path)
	}
	logger.Log.Infof("replaced %d swap entries in %s with %s", n, path, o.Path)
	return n, nil
}

func rewriteSwap(content string, o *bootargs.SwapOverride) (string, int) {
	lines := strings.SplitAfter(content, "\n")
	n := 0
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) == 0 || !matchesSwap(fields[0], o) {
			continue
		}
		indent := line[:len(line)-len(trimmed)]
		lines[i] = indent + o.Path + trimmed[len(fields[0]):]
		n++
	}
	return strings.Join(lines, ""), n
}

func matchesSwap(source string, o *bootargs.SwapOverride) bool {
	if source == o.Path {
		return false
	}
	if o.Device != "" && source == o.Device {
		return true
	}
	return o.Spec != "" && topology.NormalizeSpec(source) == topology.NormalizeSpec(o.Spec)
}
