// Package grub commits the resolved kernel command line to a GRUB2 install.
package grub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/cozystack/bootcfg/internal/disk"
	"github.com/cozystack/bootcfg/internal/execute"
	"github.com/cozystack/bootcfg/internal/logger"
)

const (
	DefaultVendor          = "sabayon"
	DefaultInstallCommand  = "/sbin/grub2-install"
	DefaultMkconfigCommand = "/sbin/grub-mkconfig"

	// GrubCfgFile is where grub-mkconfig writes the menu, relative to the install root.
	GrubCfgFile  = "/boot/grub/grub.cfg"
	DeviceMap    = "/boot/grub/device.map"
	PasswordFile = "/etc/grub.d/00_password"

	header = "# this file has been added by the Anaconda Installer\n" +
		"# containing default installer bootloader arguments.\n" +
		"# DO NOT EDIT NOR REMOVE THIS FILE DIRECTLY !!!\n"
)

//nolint:gochecknoglobals
var (
	ErrBootloaderInstall = errors.New("bootloader install failed")
	ErrMkconfig          = errors.New("bootloader config generation failed")
)

// Writer persists the bootloader configuration under Root and installs GRUB.
type Writer struct {
	// Root is the install root, the target system mounted on the live system.
	Root string
	// Vendor names /etc/default/<Vendor>-grub.
	Vendor string
	// Password, when set, is written in plain text to the grub.d password snippet.
	Password string
	// LogFile receives the output of grub2-install and grub-mkconfig.
	LogFile string
	Runner  execute.Runner

	InstallCommand  string
	MkconfigCommand string
}

// DefaultFile returns the path of the default variable file under the install root.
func (w *Writer) DefaultFile() string {
	vendor := w.Vendor
	if vendor == "" {
		vendor = DefaultVendor
	}
	return filepath.Join(w.Root, "etc", "default", vendor+"-grub")
}

// SplashFor switches a silent splash to verbose when a passphrase prompt must stay visible.
func SplashFor(cmdline string, encrypted bool) string {
	if !encrypted {
		return cmdline
	}
	return strings.ReplaceAll(cmdline, "splash=silent", "splash=verbose")
}

// Write stores cmdline and installs GRUB on targetDisk. Failures of the
// bootloader tools are fatal and are not retried.
func (w *Writer) Write(ctx context.Context, cmdline, targetDisk string, rootEncrypted, swapEncrypted bool) error {
	if targetDisk == "" {
		return errors.New("no bootloader target disk")
	}
	if err := w.Configure(cmdline, rootEncrypted, swapEncrypted); err != nil {
		return err
	}
	return w.Install(ctx, targetDisk)
}

// Configure writes every file grub-mkconfig reads and flushes them to disk.
func (w *Writer) Configure(cmdline string, rootEncrypted, swapEncrypted bool) error {
	if w.Root == "" {
		return errors.New("no install root")
	}

	cmdline = SplashFor(cmdline, rootEncrypted || swapEncrypted)
	logger.Log.Infof("root encrypted %v, swap encrypted %v, bootloader cmdline: %s",
		rootEncrypted, swapEncrypted, cmdline)

	if err := w.WriteDefaults(cmdline); err != nil {
		return err
	}
	if w.Password != "" {
		if err := w.WritePassword(); err != nil {
			return err
		}
	}
	if err := w.RemoveDeviceMap(); err != nil {
		return err
	}
	unix.Sync()
	return nil
}

// WriteDefaults appends the header and the GRUB_CMDLINE_LINUX assignment to DefaultFile.
func (w *Writer) WriteDefaults(cmdline string) error {
	path := w.DefaultFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}

	content := header + fmt.Sprintf("GRUB_CMDLINE_LINUX=\"${GRUB_CMDLINE_LINUX} %s\"\n", cmdline)
	if err := appendFile(path, content, 0o644); err != nil {
		return err
	}
	logger.Log.Infof("wrote bootloader arguments to %s", path)
	return nil
}

// WritePassword writes the grub.d snippet restricting the menu to root.
// grub-mkconfig runs grub.d entries as scripts, so the directives are emitted
// through a here-document.
func (w *Writer) WritePassword() error {
	path := filepath.Join(w.Root, PasswordFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}

	content := "#!/bin/sh\n" +
		"cat <<'EOF'\n" +
		"set superuser=\"root\"\n" +
		"password root " + w.Password + "\n" +
		"EOF\n"
	if err := writeFileSync(path, content, 0o700); err != nil {
		return err
	}
	logger.Log.Infof("wrote bootloader password to %s", path)
	return nil
}

// RemoveDeviceMap deletes a device.map left behind by an earlier grub install.
func (w *Writer) RemoveDeviceMap() error {
	path := filepath.Join(w.Root, DeviceMap)
	err := os.Remove(path)
	switch {
	case err == nil:
		logger.Log.Infof("removed stale %s", path)
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return errors.Wrapf(err, "remove %s", path)
	}
}

// Install runs grub2-install on targetDisk and then grub-mkconfig, both
// chrooted into Root.
func (w *Writer) Install(ctx context.Context, targetDisk string) error {
	if targetDisk == "" {
		return errors.New("no bootloader target disk")
	}
	runner := w.Runner
	if runner == nil {
		runner = execute.System{}
	}
	device := disk.DevicePath(targetDisk)

	install := execute.Command{
		Root:    w.Root,
		Path:    orDefault(w.InstallCommand, DefaultInstallCommand),
		Args:    []string{device, "--recheck"},
		LogFile: w.LogFile,
	}
	logger.Log.Infof("installing bootloader on %s", device)
	if err := runner.Run(ctx, install); err != nil {
		return errors.Mark(errors.Wrapf(err, "install bootloader on %s", device), ErrBootloaderInstall)
	}

	mkconfig := execute.Command{
		Root:    w.Root,
		Path:    orDefault(w.MkconfigCommand, DefaultMkconfigCommand),
		Args:    []string{"--output=" + GrubCfgFile},
		LogFile: w.LogFile,
	}
	logger.Log.Infof("generating %s", filepath.Join(w.Root, GrubCfgFile))
	if err := runner.Run(ctx, mkconfig); err != nil {
		return errors.Mark(errors.Wrap(err, "generate bootloader config"), ErrMkconfig)
	}
	return nil
}

func appendFile(path, content string, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	return finish(f, content)
}

func writeFileSync(path, content string, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	return finish(f, content)
}

// finish writes, syncs and closes f.
func finish(f *os.File, content string) error {
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", f.Name())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync %s", f.Name())
	}
	return errors.Wrapf(f.Close(), "close %s", f.Name())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
