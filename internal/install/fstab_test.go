package install

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozystack/bootcfg/internal/bootargs"
	"github.com/cozystack/bootcfg/internal/logger"
)

func writeFstab(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, FstabFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return root
}

func TestRewriteFstab(t *testing.T) {
	root := writeFstab(t, "# /etc/fstab\n"+
		"UUID=0000-aaaa\t/\text4\tdefaults\t0 1\n"+
		"/dev/mapper/cryptswap none swap sw 0 0\n"+
		"  UUID=2C4B3F1E-9A7D-4E2B-8F6A-1D3C5B7E9F00 none swap sw 0 0\n"+
		"/dev/sda1 /boot ext2 noauto 0 2")

	o := &bootargs.SwapOverride{
		Device: "/dev/mapper/cryptswap",
		Spec:   "UUID=2c4b3f1e-9a7d-4e2b-8f6a-1d3c5b7e9f00",
		Name:   "swap",
		Path:   "/dev/mapper/swap",
	}
	n, err := RewriteFstab(root, o)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(root, FstabFile))
	require.NoError(t, err)
	assert.Equal(t, "# /etc/fstab\n"+
		"UUID=0000-aaaa\t/\text4\tdefaults\t0 1\n"+
		"/dev/mapper/swap none swap sw 0 0\n"+
		"  /dev/mapper/swap none swap sw 0 0\n"+
		"/dev/sda1 /boot ext2 noauto 0 2", string(data))

	st, err := os.Stat(filepath.Join(root, FstabFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	// Already rewritten.
	n, err = RewriteFstab(root, o)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRewriteFstabMissing(t *testing.T) {
	hook, detach := logger.Capture()
	defer detach()

	n, err := RewriteFstab(t.TempDir(), &bootargs.SwapOverride{Device: "/dev/sda3", Path: "/dev/mapper/swap"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, hook.Contains("does not exist"))
}

func TestRewriteFstabNoOverride(t *testing.T) {
	n, err := RewriteFstab(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
