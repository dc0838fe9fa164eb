//go:build linux

// bootcfg writes the GRUB configuration of a freshly installed system so that
// its initramfs can find and unlock the root and swap devices.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/cli"
	"github.com/cozystack/bootcfg/internal/cmdline"
	"github.com/cozystack/bootcfg/internal/execute"
	"github.com/cozystack/bootcfg/internal/install"
	"github.com/cozystack/bootcfg/internal/logger"
	"github.com/cozystack/bootcfg/internal/topology"
)

type Cmd struct {
	Plan           string   `name:"plan" help:"Install plan file with the storage topology." type:"existingfile"`
	Probe          bool     `name:"probe" help:"Read the storage topology from lsblk instead of the plan."`
	InstallRoot    string   `name:"install-root" help:"Where the target system is mounted." type:"path"`
	Disk           string   `name:"disk" help:"Disk to install the bootloader on, e.g. sda."`
	Vendor         string   `name:"vendor" help:"Names /etc/default/<vendor>-grub."`
	Password       string   `name:"password" help:"GRUB superuser password, stored in plain text." env:"BOOTCFG_GRUB_PASSWORD"`
	ToolLog        string   `name:"tool-log" help:"Append the output of the bootloader tools to this file." type:"path"`
	ProcCmdline    string   `name:"proc-cmdline" help:"Command line of the live system." default:"/proc/cmdline" type:"path"`
	ExtraKernelArg []string `name:"extra-kernel-arg" help:"Extra candidate kernel argument, subject to the allow list (repeatable)."`
	MCE            bool     `name:"mce" help:"Boot the installed system into the media center session."`
	SkipBootloader bool     `name:"skip-bootloader" help:"Only infer the arguments."`
	DryRun         bool     `name:"dry-run" help:"Print the resolved command line and exit."`
	Unmount        bool     `name:"unmount" help:"Unmount everything below the install root when done."`
	Yes            bool     `name:"yes" short:"y" help:"Automatic yes to prompts."`
	USBStorageDir  string   `name:"usb-storage-dir" help:"usb-storage driver directory in sysfs." hidden:"" type:"path"`
	logger.Flags
}

// env is what run needs from the process.
type env struct {
	runner execute.Runner
	in     io.Reader
	out    io.Writer
}

func main() {
	c := &Cmd{}
	_ = kong.Parse(c,
		kong.Vars(logger.Vars()),
		kong.Description("Infer crypto, LVM and swap kernel arguments and write the GRUB configuration."),
		kong.HelpOptions{Compact: true, FlagsLast: true},
		kong.UsageOnError())

	closer, err := logger.Init(c.Flags)
	cli.Must("init logging", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	_, err = run(ctx, c, env{runner: execute.System{}, in: os.Stdin, out: os.Stdout})
	stop()
	os.Exit(finish(err, closer))
}

// finish logs a failed run and releases the log file afterwards, so the
// failure also lands in --log-file. It returns the exit code.
func finish(err error, logFile io.Closer) int {
	code := 0
	if err != nil {
		logger.Log.Errorf("bootloader configuration failed: %+v", err)
		code = 1
	}
	if cerr := logFile.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", cerr)
	}
	return code
}

func run(ctx context.Context, c *Cmd, e env) (*install.Pipeline, error) {
	plan := &install.Plan{InstallRoot: install.DefaultInstallRoot}
	if c.Plan != "" {
		var err error
		if plan, err = install.LoadPlan(c.Plan); err != nil {
			return nil, err
		}
	}
	c.apply(plan)

	topo, err := loadTopology(ctx, c, plan, e.runner)
	if err != nil {
		return nil, err
	}

	base := append([]string(nil), plan.Cmdline...)
	if len(base) == 0 {
		if base, err = cmdline.ReadProcCmdline(c.ProcCmdline); err != nil {
			return nil, err
		}
	}
	base = append(base, c.ExtraKernelArg...)

	p := install.NewPipeline(plan, topo, base, e.runner)
	p.Env.USBStorageDir = c.USBStorageDir
	p.StopAfterInference = p.StopAfterInference || c.DryRun

	if !p.StopAfterInference && !confirm(c, plan, &cli.Prompter{Yes: c.Yes, In: e.in, Out: e.out}) {
		return p, errors.New("aborted by user")
	}
	if c.Unmount && !c.DryRun {
		defer func() {
			if err := install.Unmount(plan.InstallRoot); err != nil {
				logger.Log.Warnf("unmount %s: %v", plan.InstallRoot, err)
			}
		}()
	}

	if err := p.Run(ctx); err != nil {
		return p, errors.Wrapf(err, "state %s", p.State())
	}
	if c.DryRun {
		fmt.Fprintln(e.out, p.Result().Cmdline())
	}
	return p, nil
}

// apply overrides plan settings with the flags that were given.
func (c *Cmd) apply(plan *install.Plan) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&plan.InstallRoot, c.InstallRoot)
	set(&plan.TargetDisk, c.Disk)
	set(&plan.Vendor, c.Vendor)
	set(&plan.Password, c.Password)
	set(&plan.LogFile, c.ToolLog)
	plan.MCE = plan.MCE || c.MCE
	plan.SkipBootloader = plan.SkipBootloader || c.SkipBootloader
}

func loadTopology(ctx context.Context, c *Cmd, plan *install.Plan, runner execute.Runner) (*topology.Topology, error) {
	if c.Probe {
		logger.Log.Infof("probing storage topology of %s", plan.InstallRoot)
		return topology.Probe(ctx, runner, plan.InstallRoot)
	}
	if c.Plan == "" {
		return nil, errors.New("either --plan or --probe is required")
	}
	return plan.Topology.Build()
}

func confirm(c *Cmd, plan *install.Plan, p *cli.Prompter) bool {
	password := ""
	if plan.Password != "" {
		password = strings.Repeat("*", 8)
	}
	p.Summary("Summary", [][2]string{
		{"Install root", plan.InstallRoot},
		{"Disk", plan.TargetDisk},
		{"Vendor", plan.Vendor},
		{"Password", password},
		{"Extra kernel args", strings.Join(c.ExtraKernelArg, " ")},
	})
	return p.AskYesNo("Continue?", true)
}
