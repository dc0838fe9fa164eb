// Package disk inspects the disk grub2-install is pointed at.
package disk

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// Info summarizes a disk's partition table.
type Info struct {
	Path       string
	Size       int64
	TableType  string
	Partitions int
	// BIOSBoot is set when a GPT disk has a BIOS boot partition for grub's core image.
	BIOSBoot bool
}

// DevicePath turns a bootloader target such as "sda" into "/dev/sda".
// Absolute paths are returned unchanged.
func DevicePath(target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return "/dev/" + strings.TrimPrefix(target, "dev/")
}

// Inspect reads the partition table of the disk or image at path.
func Inspect(path string) (*Info, error) {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, errors.Wrapf(err, "open disk %s", path)
	}
	defer d.Close()

	info := &Info{Path: path, Size: d.Size}

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, errors.Wrapf(err, "read partition table of %s", path)
	}

	switch t := table.(type) {
	case *gpt.Table:
		info.TableType = "gpt"
		for _, p := range t.Partitions {
			if p == nil || p.Type == gpt.Unused {
				continue
			}
			info.Partitions++
			if p.Type == gpt.BIOSBoot {
				info.BIOSBoot = true
			}
		}
	case *mbr.Table:
		info.TableType = "mbr"
		for _, p := range t.Partitions {
			if p == nil || p.Type == mbr.Empty {
				continue
			}
			info.Partitions++
		}
	default:
		info.TableType = table.Type()
		info.Partitions = len(table.GetPartitions())
	}
	return info, nil
}

// Warnings lists the properties of info that commonly make a BIOS grub2-install fail.
func (i *Info) Warnings() []string {
	var out []string
	if i.Partitions == 0 {
		out = append(out, "no partitions on "+i.Path)
	}
	if i.TableType == "gpt" && !i.BIOSBoot {
		out = append(out, "gpt disk "+i.Path+" has no BIOS boot partition")
	}
	return out
}
