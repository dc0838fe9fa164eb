// Package cmdline selects which kernel arguments of the running system are
// carried over to the installed bootloader configuration.
package cmdline

import (
	"os"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/logger"
)

const (
	// MCEMarker tells the installed system to boot the media center session.
	MCEMarker = "sabayonmce"
	// SlowUSBMarker makes the initramfs wait for slow USB mass storage.
	SlowUSBMarker = "doslowusb"
	// ScanDelay is appended together with SlowUSBMarker.
	ScanDelay = "scandelay=10"

	// DefaultUSBStorageDir lists devices bound to the usb-storage driver.
	DefaultUSBStorageDir = "/sys/bus/usb/drivers/usb-storage"

	vgaPrefix = "vga="
)

// DefaultAllowList holds the argument prefixes preserved from the live environment.
// root= and resume= are left out on purpose: on the live media they point at the
// media itself.
//
//nolint:gochecknoglobals
var DefaultAllowList = []string{
	"speakup_synth=", "apic", "noapic", "apm=", "ide=", "noht",
	"acpi=", "video=", "vga=", "init=", "splash=", "console=",
	"pci=routeirq", "irqpoll", "nohdparm", "pci=", "floppy.floppy=",
	"all-generic-ide", "gentoo=", "res=", "hsync=", "refresh=", "noddc",
	"xdriver=", "onlyvesa", "nvidia=", "dodmraid", "dmraid",
	"sabayonmce", "quiet", "scandelay=", "doslowusb", "docrypt", "dolvm",
}

// Environment describes the live system facts that add markers to the candidates.
type Environment struct {
	// MCE is set for media center installs.
	MCE bool
	// USBStorageDir overrides DefaultUSBStorageDir.
	USBStorageDir string
}

// Filter keeps the candidates that start with an allow-listed prefix, in input
// order. Only the last vga= argument survives.
func Filter(candidates, allow []string) []string {
	lastVGA := -1
	for i, arg := range candidates {
		if strings.HasPrefix(arg, vgaPrefix) && allowed(arg, allow) {
			lastVGA = i
		}
	}

	out := make([]string, 0, len(candidates))
	for i, arg := range candidates {
		if !allowed(arg, allow) {
			continue
		}
		if strings.HasPrefix(arg, vgaPrefix) && i != lastVGA {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func allowed(arg string, allow []string) bool {
	for _, prefix := range allow {
		if strings.HasPrefix(arg, prefix) {
			return true
		}
	}
	return false
}

// Candidates returns base with the environment markers appended.
// base is not modified.
func Candidates(base []string, env Environment) []string {
	out := append([]string(nil), base...)

	if env.MCE && !slices.Contains(out, MCEMarker) {
		out = append(out, MCEMarker)
	}

	dir := env.USBStorageDir
	if dir == "" {
		dir = DefaultUSBStorageDir
	}
	if n := usbStorageDevices(dir); n > 0 {
		logger.Log.Infof("found %d usb-storage devices, enabling slow usb support", n)
		out = append(out, SlowUSBMarker, ScanDelay)
	}
	return out
}

// Prepare appends the environment markers to base and filters the result.
func Prepare(base []string, env Environment, allow []string) []string {
	return Filter(Candidates(base, env), allow)
}

// usbStorageDevices counts the device entries bound to the usb-storage driver.
// Driver control files are regular files; bound devices are symlinks, and the
// "module" link points back at the driver itself.
func usbStorageDevices(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Log.Debugf("usb-storage driver not available: %v", err)
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.Name() == "module" {
			continue
		}
		if e.IsDir() || e.Type()&os.ModeSymlink != 0 {
			n++
		}
	}
	return n
}

// ReadProcCmdline returns the whitespace separated arguments in path,
// normally /proc/cmdline.
func ReadProcCmdline(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return strings.Fields(string(data)), nil
}
