package testutil

import (
	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
)

// CreateGPTDisk creates a disk image at path with a BIOS boot partition
// followed by a Linux root partition filling the rest.
func CreateGPTDisk(path string, sizeMB int64) error {
	diskImg, err := diskfs.Create(path, sizeMB*1024*1024, diskfs.Raw, diskfs.SectorSizeDefault)
	if err != nil {
		return err
	}
	defer diskImg.Close()

	lastSector := uint64(sizeMB*1024*1024/512) - 34
	table := &gpt.Table{
		ProtectiveMBR: true,
		Partitions: []*gpt.Partition{
			{
				Start: 2048,
				End:   4095,
				Type:  gpt.BIOSBoot,
				Name:  "BIOS boot",
			},
			{
				Start: 4096,
				End:   lastSector,
				Type:  gpt.LinuxFilesystem,
				Name:  "root",
			},
		},
	}
	return diskImg.Partition(table)
}

// CreateMBRDisk creates a disk image at path with one bootable Linux partition.
func CreateMBRDisk(path string, sizeMB int64) error {
	diskImg, err := diskfs.Create(path, sizeMB*1024*1024, diskfs.Raw, diskfs.SectorSizeDefault)
	if err != nil {
		return err
	}
	defer diskImg.Close()

	sectors := uint32(sizeMB * 1024 * 1024 / 512)
	table := &mbr.Table{
		LogicalSectorSize:  512,
		PhysicalSectorSize: 512,
		Partitions: []*mbr.Partition{
			{
				Bootable: true,
				Type:     mbr.Linux,
				Start:    2048,
				Size:     sectors - 2048,
			},
		},
	}
	return diskImg.Partition(table)
}

// CreateBlankDisk creates a zero-filled image without a partition table.
func CreateBlankDisk(path string, sizeMB int64) error {
	diskImg, err := diskfs.Create(path, sizeMB*1024*1024, diskfs.Raw, diskfs.SectorSizeDefault)
	if err != nil {
		return err
	}
	return diskImg.Close()
}
