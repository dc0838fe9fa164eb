// Package bootargs infers the kernel arguments that let the genkernel initramfs
// find and unlock the root and swap devices of an installed system.
package bootargs

import (
	"context"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/logger"
	"github.com/cozystack/bootcfg/internal/topology"
)

const (
	// SwapMappingName is the mapping name genkernel expects for encrypted swap.
	SwapMappingName = "swap"

	argDoCrypt = "docrypt"
	argDoLVM   = "dolvm"
)

// VolumeGroupScanner reports whether any LVM volume group is active.
type VolumeGroupScanner interface {
	HasVolumeGroups(ctx context.Context) bool
}

// Input is everything Infer reads. Nothing in it is modified.
type Input struct {
	Root   topology.Device
	Swap   []topology.Device
	Crypto *topology.CryptoTable
	// Args are the filtered candidate arguments; inferred arguments are appended.
	Args []string
	// LVM may be nil, meaning no volume groups.
	LVM VolumeGroupScanner
}

// SwapOverride is the new identity of an encrypted swap device that is itself
// a crypt mapping. The device has to be opened under SwapMappingName, and
// fstab has to refer to Path.
type SwapOverride struct {
	// Device is the swap device's original path.
	Device string
	// Spec is the swap device's original fstab specifier.
	Spec string
	Name string
	Path string
}

// Result is the resolved boot configuration.
type Result struct {
	Args          []string
	RootEncrypted bool
	SwapEncrypted bool
	// SwapOverride is set when the encrypted swap device is renamed on open.
	SwapOverride *SwapOverride
}

// Cmdline joins the arguments with single spaces.
func (r *Result) Cmdline() string {
	return strings.Join(r.Args, " ")
}

// Infer resolves the boot arguments for in. Only the first swap device is
// considered.
func Infer(ctx context.Context, in Input) (*Result, error) {
	if in.Root == nil {
		return nil, errors.Mark(errors.New("no root device"), topology.ErrTopology)
	}
	if in.Crypto == nil {
		return nil, errors.Mark(errors.New("no crypto mapping table"), topology.ErrTopology)
	}

	res := &Result{Args: append([]string(nil), in.Args...)}
	var delayedCryptSwap string

	if len(in.Swap) > 0 {
		logger.Log.Infof("found swap devices: %s", devicePaths(in.Swap))
		swap := in.Swap[0]
		if swap == nil {
			return nil, errors.Mark(errors.New("nil swap device"), topology.ErrTopology)
		}

		if m, ok := match(in.Crypto, swap, "swap"); ok {
			res.SwapEncrypted = true
			// genkernel cannot take UUID= for mapped devices, so use raw paths.
			path := swap.MappedPath(SwapMappingName)
			if path != swap.Path() {
				res.SwapOverride = &SwapOverride{
					Device: swap.Path(),
					Spec:   swap.FstabSpec(),
					Name:   SwapMappingName,
					Path:   path,
				}
			}
			res.Args = append(res.Args, "resume=swap:"+path, "real_resume="+path)
			delayedCryptSwap = m.Device.Path()
		} else {
			res.Args = append(res.Args,
				"resume=swap:"+swap.FstabSpec(),
				"real_resume="+swap.FstabSpec())
		}
	}

	if in.LVM != nil && in.LVM.HasVolumeGroups(ctx) {
		res.Args = appendOnce(res.Args, argDoLVM)
	}

	if m, ok := match(in.Crypto, in.Root, "root"); ok {
		res.RootEncrypted = true
		logger.Log.Infof("root %s is encrypted, backing device %s", in.Root.Path(), m.Device.Path())
		res.Args = append(res.Args, "root="+in.Root.RealRoot()+" crypt_root="+m.Device.Path())
		// genkernel unlocks a shared crypt_root/crypt_swap device once.
		if delayedCryptSwap == m.Device.Path() {
			delayedCryptSwap = ""
		}
	} else {
		logger.Log.Infof("root %s is not encrypted", in.Root.Path())
		res.Args = append(res.Args, "root="+in.Root.RealRoot())
	}

	// Always present: it loads the modules any cryptsetup device needs.
	res.Args = appendOnce(res.Args, argDoCrypt)

	if delayedCryptSwap != "" {
		res.Args = append(res.Args, "crypt_swap="+delayedCryptSwap)
	}

	logger.Log.Infof("generated boot cmdline: %s", res.Cmdline())
	return res, nil
}

func match(table *topology.CryptoTable, d topology.Device, role string) (topology.CryptoMapping, bool) {
	matches := table.Matches(d)
	if len(matches) == 0 {
		logger.Log.Debugf("%s %s matches no crypto mapping", role, d.Path())
		return topology.CryptoMapping{}, false
	}
	if len(matches) > 1 {
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.Name)
		}
		logger.Log.Warnf("%s %s is backed by several crypto mappings (%s), using %s",
			role, d.Path(), strings.Join(names, ", "), matches[0].Name)
	}
	logger.Log.Infof("%s %s matches crypto mapping %s on %s",
		role, d.Path(), matches[0].Name, matches[0].Device.Path())
	return matches[0], true
}

func appendOnce(args []string, arg string) []string {
	if slices.Contains(args, arg) {
		return args
	}
	return append(args, arg)
}

func devicePaths(devices []topology.Device) string {
	paths := make([]string, 0, len(devices))
	for _, d := range devices {
		if d != nil {
			paths = append(paths, d.Path())
		}
	}
	return strings.Join(paths, ", ")
}
