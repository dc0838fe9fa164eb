package topology

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Kind tags the closed set of storage object variants.
type Kind int

const (
	KindPartition     Kind = iota // Disk or partition, addressed by its fstab specifier
	KindRAIDArray                 // md RAID array, addressed by its raw path
	KindMappedCrypto              // dm-crypt mapping exposing a decrypted view
	KindLogicalVolume             // LVM logical volume
)

func (k Kind) String() string {
	switch k {
	case KindPartition:
		return "partition"
	case KindRAIDArray:
		return "raid"
	case KindMappedCrypto:
		return "crypt"
	case KindLogicalVolume:
		return "lvm"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "partition", "part", "disk":
		return KindPartition, nil
	case "raid", "md":
		return KindRAIDArray, nil
	case "crypt", "crypto":
		return KindMappedCrypto, nil
	case "lvm", "lv":
		return KindLogicalVolume, nil
	default:
		return 0, topologyErrorf("unknown device kind %q", s)
	}
}

//nolint:gochecknoglobals
var (
	// ErrTopology marks malformed or missing device references.
	ErrTopology = errors.New("invalid device topology")

	// ErrAmbiguousMapping marks a crypto table where two names share one backing device.
	ErrAmbiguousMapping = errors.New("ambiguous crypto mapping")
)

//nolint:gochecknoglobals
var volumeID = regexp.MustCompile(`^[0-9A-Fa-f]+(-[0-9A-Fa-f]+)*$`)

func topologyErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrTopology)
}

// Device is a storage object. The set of implementations is closed to this package.
type Device interface {
	Name() string
	Path() string
	// FstabSpec is the reboot-stable reference (UUID=, LABEL=), or the path when none is known.
	FstabSpec() string
	Size() uint64
	Parents() []Device
	Kind() Kind
	// RealRoot is the value to pass as root= when this device holds the root filesystem.
	RealRoot() string
	// MappedPath is the node the device shows up at once the initramfs opens
	// it under the mapping called name. Only crypt mappings take their name
	// from the opener; every other device keeps its own path.
	MappedPath(name string) string

	device()
}

type base struct {
	name    string
	path    string
	spec    string
	size    uint64
	parents []Device
}

func (b *base) Name() string      { return b.name }
func (b *base) Path() string      { return b.path }
func (b *base) Size() uint64      { return b.size }
func (b *base) Parents() []Device { return b.parents }
func (b *base) device()           {}

func (b *base) FstabSpec() string {
	if b.spec != "" {
		return b.spec
	}
	return b.path
}

func newBase(name, path, spec string, size uint64, parents []Device) base {
	if name == "" {
		name = filepath.Base(path)
	}
	return base{name: name, path: path, spec: NormalizeSpec(spec), size: size, parents: parents}
}

// Partition is a plain partition or whole disk.
type Partition struct{ base }

func NewPartition(path, spec string, size uint64, parents ...Device) *Partition {
	return &Partition{newBase("", path, spec, size, parents)}
}

func (p *Partition) Kind() Kind       { return KindPartition }
func (p *Partition) RealRoot() string { return p.FstabSpec() }

func (p *Partition) MappedPath(string) string { return p.Path() }

// RAIDArray is an md array. Its specifier is not understood by the initramfs, so
// the raw path is used for root=.
type RAIDArray struct{ base }

func NewRAIDArray(path, spec string, size uint64, members ...Device) *RAIDArray {
	return &RAIDArray{newBase("", path, spec, size, members)}
}

func (r *RAIDArray) Kind() Kind       { return KindRAIDArray }
func (r *RAIDArray) RealRoot() string { return r.Path() }

func (r *RAIDArray) MappedPath(string) string { return r.Path() }

// MappedCrypto is the decrypted view of an encrypted device, exposed under /dev/mapper.
type MappedCrypto struct{ base }

// NewMappedCrypto returns the mapping called name on top of backing. An empty path
// defaults to /dev/mapper/<name>.
func NewMappedCrypto(name, path, spec string, size uint64, backing ...Device) *MappedCrypto {
	if path == "" {
		path = MapperPath(name)
	}
	return &MappedCrypto{newBase(name, path, spec, size, backing)}
}

func (m *MappedCrypto) Kind() Kind       { return KindMappedCrypto }
func (m *MappedCrypto) RealRoot() string { return m.FstabSpec() }

func (m *MappedCrypto) MappedPath(name string) string { return MapperPath(name) }

// LogicalVolume is an LVM logical volume; its parents are the volume group's physical volumes.
type LogicalVolume struct{ base }

func NewLogicalVolume(name, path, spec string, size uint64, pvs ...Device) *LogicalVolume {
	if path == "" {
		path = MapperPath(name)
	}
	return &LogicalVolume{newBase(name, path, spec, size, pvs)}
}

func (l *LogicalVolume) Kind() Kind       { return KindLogicalVolume }
func (l *LogicalVolume) RealRoot() string { return l.FstabSpec() }

// MappedPath keeps the volume's own /dev/mapper/<vg>-<lv> node. The initramfs
// opens the crypt mapping under the volume group, not the volume itself.
func (l *LogicalVolume) MappedPath(string) string { return l.Path() }

// MapperPath returns the device-mapper node for name.
func MapperPath(name string) string {
	return "/dev/mapper/" + name
}

// DependsOn reports whether d is built on top of other, directly or transitively.
// Devices are compared by path.
func DependsOn(d, other Device) bool {
	if d == nil || other == nil {
		return false
	}
	seen := map[string]bool{}
	stack := append([]Device(nil), d.Parents()...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil || seen[cur.Path()] {
			continue
		}
		if cur.Path() == other.Path() {
			return true
		}
		seen[cur.Path()] = true
		stack = append(stack, cur.Parents()...)
	}
	return false
}

// NormalizeSpec lowercases UUID= and PARTUUID= values that are RFC 4122 UUIDs.
// Other specifiers, such as FAT volume IDs, are returned unchanged.
func NormalizeSpec(spec string) string {
	for _, prefix := range []string{"UUID=", "PARTUUID="} {
		value, ok := strings.CutPrefix(spec, prefix)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(value); err == nil {
			return prefix + id.String()
		}
		return spec
	}
	return spec
}

// ValidateSpec rejects specifiers with an empty value, such as "UUID=", and
// UUID= or PARTUUID= values that are neither RFC 4122 UUIDs nor hex volume
// IDs like the FAT "0C4E-1A2B" or the MBR "1234abcd-01".
func ValidateSpec(spec string) error {
	for _, prefix := range []string{"UUID=", "PARTUUID=", "LABEL=", "PARTLABEL="} {
		value, ok := strings.CutPrefix(spec, prefix)
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			return topologyErrorf("empty value in specifier %q", spec)
		}
		if prefix != "UUID=" && prefix != "PARTUUID=" {
			return nil
		}
		if _, err := uuid.Parse(value); err == nil || volumeID.MatchString(value) {
			return nil
		}
		return topologyErrorf("malformed specifier %q", spec)
	}
	return nil
}
