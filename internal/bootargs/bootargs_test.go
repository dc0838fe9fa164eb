package bootargs

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozystack/bootcfg/internal/logger"
	"github.com/cozystack/bootcfg/internal/topology"
)

type fakeLVM bool

func (f fakeLVM) HasVolumeGroups(context.Context) bool { return bool(f) }

func crypto(t *testing.T, mappings ...topology.CryptoMapping) *topology.CryptoTable {
	t.Helper()
	table, err := topology.NewCryptoTable(mappings...)
	require.NoError(t, err)
	return table
}

func hasPrefix(args []string, prefix string) bool {
	for _, a := range args {
		for _, field := range strings.Fields(a) {
			if strings.HasPrefix(field, prefix) {
				return true
			}
		}
	}
	return false
}

func count(args []string, arg string) int {
	n := 0
	for _, a := range args {
		if a == arg {
			n++
		}
	}
	return n
}

// Plain root on /dev/sda2, no swap, no LVM.
func TestInferPlainRootNoSwap(t *testing.T) {
	root := topology.NewPartition("/dev/sda2", "UUID=abcd", 0)

	res, err := Infer(context.Background(), Input{
		Root:   root,
		Crypto: crypto(t),
		Args:   []string{"quiet"},
		LVM:    fakeLVM(false),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"quiet", "root=UUID=abcd", "docrypt"}, res.Args)
	assert.False(t, hasPrefix(res.Args, "resume="))
	assert.False(t, hasPrefix(res.Args, "real_resume="))
	assert.NotContains(t, res.Args, "dolvm")
	assert.False(t, res.RootEncrypted)
	assert.False(t, res.SwapEncrypted)
	assert.Nil(t, res.SwapOverride)
}

// Encrypted swap on /dev/sda3 with a plain root.
func TestInferEncryptedSwapPlainRoot(t *testing.T) {
	sda3 := topology.NewPartition("/dev/sda3", "", 0)
	swap := topology.NewMappedCrypto("cryptswap", "", "", 0, sda3)
	root := topology.NewPartition("/dev/sda2", "UUID=abcd", 0)

	res, err := Infer(context.Background(), Input{
		Root:   root,
		Swap:   []topology.Device{swap},
		Crypto: crypto(t, topology.CryptoMapping{Name: "cryptswap", Device: sda3}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"resume=swap:/dev/mapper/swap",
		"real_resume=/dev/mapper/swap",
		"root=UUID=abcd",
		"docrypt",
		"crypt_swap=/dev/sda3",
	}, res.Args)
	assert.True(t, res.SwapEncrypted)
	assert.False(t, res.RootEncrypted)

	require.NotNil(t, res.SwapOverride)
	assert.Equal(t, SwapOverride{
		Device: "/dev/mapper/cryptswap",
		Spec:   "/dev/mapper/cryptswap",
		Name:   "swap",
		Path:   "/dev/mapper/swap",
	}, *res.SwapOverride)
	assert.Equal(t, "/dev/mapper/cryptswap", swap.Path(), "the topology is not modified")
}

// Root and swap are logical volumes of one volume group on an encrypted PV.
func TestInferSwapOnLogicalVolumeOverCrypt(t *testing.T) {
	sda2 := topology.NewPartition("/dev/sda2", "", 0)
	pv := topology.NewMappedCrypto("luks-pv", "", "", 0, sda2)
	root := topology.NewLogicalVolume("vg-root", "", "UUID=0b7f", 0, pv)
	swap := topology.NewLogicalVolume("vg-swap", "", "UUID=5e0c", 0, pv)

	res, err := Infer(context.Background(), Input{
		Root:   root,
		Swap:   []topology.Device{swap},
		Crypto: crypto(t, topology.CryptoMapping{Name: "luks-pv", Device: sda2}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"resume=swap:/dev/mapper/vg-swap",
		"real_resume=/dev/mapper/vg-swap",
		"root=UUID=0b7f crypt_root=/dev/sda2",
		"docrypt",
	}, res.Args)
	assert.True(t, res.SwapEncrypted)
	assert.True(t, res.RootEncrypted)
	assert.Nil(t, res.SwapOverride, "the volume keeps its own node")
}

// Root and swap unlocked from the same backing device.
func TestInferSharedBackingDevice(t *testing.T) {
	sda2 := topology.NewPartition("/dev/sda2", "", 0)
	root := topology.NewMappedCrypto("cryptroot", "", "", 0, sda2)
	swap := topology.NewMappedCrypto("cryptswap", "", "", 0, sda2)

	res, err := Infer(context.Background(), Input{
		Root:   root,
		Swap:   []topology.Device{swap},
		Crypto: crypto(t, topology.CryptoMapping{Name: "cryptroot", Device: sda2}),
	})
	require.NoError(t, err)

	assert.Contains(t, res.Args, "root=/dev/mapper/cryptroot crypt_root=/dev/sda2")
	assert.False(t, hasPrefix(res.Args, "crypt_swap="))
	assert.True(t, res.RootEncrypted)
	assert.True(t, res.SwapEncrypted)
}

func lvmOnCrypt(t *testing.T) Input {
	t.Helper()
	sda2 := topology.NewPartition("/dev/sda2", "UUID=luks-root", 0)
	sda3 := topology.NewPartition("/dev/sda3", "UUID=luks-swap", 0)
	pv := topology.NewMappedCrypto("luks-root", "", "", 0, sda2)
	root := topology.NewLogicalVolume("vg-root", "", "UUID=0b7f", 0, pv)
	swapCrypt := topology.NewMappedCrypto("luks-swap", "", "", 0, sda3)

	return Input{
		Root: root,
		Swap: []topology.Device{swapCrypt},
		Crypto: crypto(t,
			topology.CryptoMapping{Name: "luks-root", Device: sda2},
			topology.CryptoMapping{Name: "luks-swap", Device: sda3},
		),
		Args: []string{"splash=silent", "quiet"},
		LVM:  fakeLVM(true),
	}
}

func TestInferLVMOnCryptDistinctBacking(t *testing.T) {
	res, err := Infer(context.Background(), lvmOnCrypt(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"splash=silent",
		"quiet",
		"resume=swap:/dev/mapper/swap",
		"real_resume=/dev/mapper/swap",
		"dolvm",
		"root=UUID=0b7f crypt_root=/dev/sda2",
		"docrypt",
		"crypt_swap=/dev/sda3",
	}, res.Args)
	assert.Equal(t,
		"splash=silent quiet resume=swap:/dev/mapper/swap real_resume=/dev/mapper/swap dolvm "+
			"root=UUID=0b7f crypt_root=/dev/sda2 docrypt crypt_swap=/dev/sda3",
		res.Cmdline())
}

func TestInferIsDeterministic(t *testing.T) {
	in := lvmOnCrypt(t)

	first, err := Infer(context.Background(), in)
	require.NoError(t, err)
	second, err := Infer(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Cmdline(), second.Cmdline())
	assert.Equal(t, []string{"splash=silent", "quiet"}, in.Args, "input arguments are not modified")
}

func TestInferDocryptOnce(t *testing.T) {
	root := topology.NewPartition("/dev/sda2", "UUID=abcd", 0)
	in := Input{Root: root, Crypto: crypto(t), Args: []string{"docrypt", "dolvm"}, LVM: fakeLVM(true)}

	res, err := Infer(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, count(res.Args, "docrypt"))
	assert.Equal(t, 1, count(res.Args, "dolvm"))

	// Feeding the result back in must not duplicate anything either.
	in.Args = res.Args
	again, err := Infer(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, count(again.Args, "docrypt"))
}

func TestInferPlainSwapUsesSpecifier(t *testing.T) {
	root := topology.NewPartition("/dev/sda2", "UUID=abcd", 0)
	swap1 := topology.NewPartition("/dev/sda3", "UUID=5w4p", 0)
	swap2 := topology.NewPartition("/dev/sdb1", "UUID=other", 0)

	res, err := Infer(context.Background(), Input{
		Root:   root,
		Swap:   []topology.Device{swap1, swap2},
		Crypto: crypto(t),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"resume=swap:UUID=5w4p", "real_resume=UUID=5w4p", "root=UUID=abcd", "docrypt"}, res.Args)
	assert.False(t, hasPrefix(res.Args, "resume=swap:UUID=other"), "only the first swap device is used")
}

func TestInferRAIDRoot(t *testing.T) {
	sda1 := topology.NewPartition("/dev/sda1", "", 0)
	sdb1 := topology.NewPartition("/dev/sdb1", "", 0)
	md := topology.NewRAIDArray("/dev/md0", "UUID=md-array", 0, sda1, sdb1)

	res, err := Infer(context.Background(), Input{Root: md, Crypto: crypto(t)})
	require.NoError(t, err)
	assert.Contains(t, res.Args, "root=/dev/md0")

	res, err = Infer(context.Background(), Input{
		Root:   md,
		Crypto: crypto(t, topology.CryptoMapping{Name: "md-crypt", Device: md}),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Args, "root=/dev/md0 crypt_root=/dev/md0")
}

func TestInferTopologyErrors(t *testing.T) {
	root := topology.NewPartition("/dev/sda2", "UUID=abcd", 0)

	_, err := Infer(context.Background(), Input{Crypto: crypto(t)})
	assert.True(t, errors.Is(err, topology.ErrTopology))

	_, err = Infer(context.Background(), Input{Root: root})
	assert.True(t, errors.Is(err, topology.ErrTopology))

	_, err = Infer(context.Background(), Input{Root: root, Swap: []topology.Device{nil}, Crypto: crypto(t)})
	assert.True(t, errors.Is(err, topology.ErrTopology))
}

func TestInferLogsFacts(t *testing.T) {
	hook, detach := logger.Capture()
	defer detach()

	_, err := Infer(context.Background(), lvmOnCrypt(t))
	require.NoError(t, err)

	assert.True(t, hook.Contains("found swap devices: /dev/mapper/luks-swap"))
	assert.True(t, hook.Contains("matches crypto mapping luks-root on /dev/sda2"))
	assert.True(t, hook.Contains("generated boot cmdline:"))
}
