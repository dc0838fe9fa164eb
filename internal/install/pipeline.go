// Package install runs the bootloader step of an installation: it filters
// the kernel arguments, infers the storage arguments and commits them to GRUB.
package install

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/bootargs"
	"github.com/cozystack/bootcfg/internal/cmdline"
	"github.com/cozystack/bootcfg/internal/disk"
	"github.com/cozystack/bootcfg/internal/execute"
	"github.com/cozystack/bootcfg/internal/grub"
	"github.com/cozystack/bootcfg/internal/logger"
	"github.com/cozystack/bootcfg/internal/lvm"
	"github.com/cozystack/bootcfg/internal/topology"
)

// State is the progress of a Pipeline. A failed step leaves the state of the
// last step that succeeded.
type State int

const (
	Idle State = iota
	ArgumentsFiltered
	Inferred
	Written
	BootloaderInstalled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ArgumentsFiltered:
		return "arguments filtered"
	case Inferred:
		return "inferred"
	case Written:
		return "written"
	case BootloaderInstalled:
		return "bootloader installed"
	default:
		return "unknown"
	}
}

// Pipeline carries one bootloader configuration run. It runs once.
type Pipeline struct {
	Topology *topology.Topology
	// Base are the candidate arguments before the environment markers,
	// normally the live system's /proc/cmdline.
	Base []string
	Env  cmdline.Environment
	// AllowList defaults to cmdline.DefaultAllowList.
	AllowList []string
	LVM       bootargs.VolumeGroupScanner
	Writer    *grub.Writer
	// TargetDisk is the disk grub2-install writes the boot code to.
	TargetDisk string
	// StopAfterInference ends the run in state Inferred without touching the install root.
	StopAfterInference bool

	state  State
	args   []string
	result *bootargs.Result
}

// NewPipeline wires a Pipeline for plan. Commands run through runner.
func NewPipeline(plan *Plan, topo *topology.Topology, base []string, runner execute.Runner) *Pipeline {
	return &Pipeline{
		Topology: topo,
		Base:     base,
		Env:      cmdline.Environment{MCE: plan.MCE},
		LVM:      &lvm.Scanner{Runner: runner},
		Writer: &grub.Writer{
			Root:     plan.InstallRoot,
			Vendor:   plan.Vendor,
			Password: plan.Password,
			LogFile:  plan.LogFile,
			Runner:   runner,
		},
		TargetDisk:         plan.TargetDisk,
		StopAfterInference: plan.SkipBootloader,
	}
}

func (p *Pipeline) State() State { return p.state }

// Args returns the filtered candidate arguments once the run got that far.
func (p *Pipeline) Args() []string { return p.args }

// Result returns the inferred configuration once the run got that far.
func (p *Pipeline) Result() *bootargs.Result { return p.result }

// Run executes the remaining steps in order.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.state != Idle {
		return errors.Newf("pipeline already ran, state %s", p.state)
	}
	if p.Topology == nil {
		return errors.Mark(errors.New("no storage topology"), topology.ErrTopology)
	}

	allow := p.AllowList
	if allow == nil {
		allow = cmdline.DefaultAllowList
	}
	p.args = cmdline.Prepare(p.Base, p.Env, allow)
	p.state = ArgumentsFiltered

	res, err := bootargs.Infer(ctx, bootargs.Input{
		Root:   p.Topology.Root,
		Swap:   p.Topology.Swap,
		Crypto: p.Topology.Crypto,
		Args:   p.args,
		LVM:    p.LVM,
	})
	if err != nil {
		return errors.Wrap(err, "infer boot arguments")
	}
	p.result = res
	p.state = Inferred

	if p.StopAfterInference {
		logger.Log.Infof("skipping bootloader, arguments: %s", res.Cmdline())
		return nil
	}
	if p.Writer == nil {
		return errors.New("no bootloader writer")
	}
	if p.TargetDisk == "" {
		return errors.New("no bootloader target disk")
	}

	if err := p.Writer.Configure(res.Cmdline(), res.RootEncrypted, res.SwapEncrypted); err != nil {
		return errors.Wrap(err, "write bootloader configuration")
	}
	p.state = Written
	if _, err := RewriteFstab(p.Writer.Root, res.SwapOverride); err != nil {
		return err
	}

	inspectTarget(p.TargetDisk)
	if err := p.Writer.Install(ctx, p.TargetDisk); err != nil {
		return err
	}
	p.state = BootloaderInstalled
	logger.Log.Infof("bootloader installed on %s", disk.DevicePath(p.TargetDisk))
	return nil
}

// inspectTarget logs the partition layout of the target disk. Problems are
// only warnings.
func inspectTarget(target string) {
	path := disk.DevicePath(target)
	info, err := disk.Inspect(path)
	if err != nil {
		logger.Log.Warnf("cannot inspect disk target %s: %v", path, err)
		return
	}
	logger.Log.Infof("chosen disk target %s: %s table, %d partitions, %d bytes",
		path, info.TableType, info.Partitions, info.Size)
	for _, w := range info.Warnings() {
		logger.Log.Warn(w)
	}
}
