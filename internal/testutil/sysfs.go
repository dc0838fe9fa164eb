package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// FakeUSBStorageDriver lays out a usb-storage driver directory the way sysfs
// does: control files, a "module" link, and one symlink per bound device.
func FakeUSBStorageDriver(t *testing.T, devices int) string {
	t.Helper()
	root := t.TempDir()
	driver := filepath.Join(root, "bus", "usb", "drivers", "usb-storage")
	module := filepath.Join(root, "module", "usb_storage")
	for _, dir := range []string{driver, module} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("create %s: %v", dir, err)
		}
	}

	for _, name := range []string{"bind", "unbind", "uevent", "new_id", "remove_id"} {
		if err := os.WriteFile(filepath.Join(driver, name), nil, 0o200); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := os.Symlink(module, filepath.Join(driver, "module")); err != nil {
		t.Fatalf("link module: %v", err)
	}

	for i := 0; i < devices; i++ {
		dev := filepath.Join(root, "devices", fmt.Sprintf("usb1/1-%d/1-%d:1.0", i+1, i+1))
		if err := os.MkdirAll(dev, 0o755); err != nil {
			t.Fatalf("create %s: %v", dev, err)
		}
		if err := os.Symlink(dev, filepath.Join(driver, filepath.Base(dev))); err != nil {
			t.Fatalf("link %s: %v", dev, err)
		}
	}
	return driver
}
