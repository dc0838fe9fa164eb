package topology

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/execute"
)

// LsblkColumns are the columns ParseLsblk expects.
const LsblkColumns = "NAME,PATH,TYPE,SIZE,UUID,FSTYPE,MOUNTPOINT"

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Type       string        `json:"type"`
	Size       json.Number   `json:"size"`
	UUID       *string       `json:"uuid"`
	FSType     *string       `json:"fstype"`
	Mountpoint *string       `json:"mountpoint"`
	Children   []lsblkDevice `json:"children"`
}

type lsblkNode struct {
	dev     lsblkDevice
	parents []string
}

// Probe runs lsblk through runner and builds the topology of the filesystem
// mounted at rootMount. A nil runner runs lsblk on the live system.
func Probe(ctx context.Context, runner execute.Runner, rootMount string) (*Topology, error) {
	if runner == nil {
		runner = execute.System{}
	}
	out, err := runner.Output(ctx, execute.Command{
		Path: "lsblk",
		Args: []string{"-J", "-b", "-o", LsblkColumns},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "lsblk: %s", strings.TrimSpace(out))
	}
	return ParseLsblk([]byte(out), rootMount)
}

// ParseLsblk builds a topology from `lsblk -J -b -o LsblkColumns` output.
// A device listed under several parents, such as a logical volume spanning two
// physical volumes, becomes one device with all of them as parents.
func ParseLsblk(data []byte, rootMount string) (*Topology, error) {
	var out lsblkOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode lsblk output")
	}

	nodes := map[string]*lsblkNode{}
	var order []string
	var walk func(d lsblkDevice, parent string)
	walk = func(d lsblkDevice, parent string) {
		if d.Path == "" {
			d.Path = defaultNodePath(d)
		}
		n, ok := nodes[d.Path]
		if !ok {
			n = &lsblkNode{dev: d}
			nodes[d.Path] = n
			order = append(order, d.Path)
		}
		if parent != "" && !slices.Contains(n.parents, parent) {
			n.parents = append(n.parents, parent)
		}
		for _, c := range d.Children {
			walk(c, d.Path)
		}
	}
	for _, d := range out.BlockDevices {
		walk(d, "")
	}

	spec := Spec{}
	for _, path := range order {
		n := nodes[path]
		size, _ := n.dev.Size.Int64()
		ds := DeviceSpec{
			Name:    n.dev.Name,
			Path:    path,
			Size:    uint64(max(size, 0)),
			Kind:    lsblkKind(n.dev.Type).String(),
			Parents: n.parents,
		}
		if n.dev.UUID != nil && *n.dev.UUID != "" {
			ds.Spec = "UUID=" + *n.dev.UUID
		}
		spec.Devices = append(spec.Devices, ds)

		if n.dev.Mountpoint != nil && *n.dev.Mountpoint == rootMount {
			spec.Root = path
		}
		if n.dev.FSType != nil && *n.dev.FSType == "swap" {
			spec.Swap = append(spec.Swap, path)
		}
		if lsblkKind(n.dev.Type) == KindMappedCrypto && len(n.parents) > 0 {
			spec.Crypto = append(spec.Crypto, MappingSpec{Name: n.dev.Name, Device: n.parents[0]})
		}
	}
	if spec.Root == "" {
		return nil, topologyErrorf("no device mounted at %s", rootMount)
	}
	return spec.Build()
}

func lsblkKind(t string) Kind {
	switch {
	case t == "crypt":
		return KindMappedCrypto
	case t == "lvm":
		return KindLogicalVolume
	case t == "md" || strings.HasPrefix(t, "raid"):
		return KindRAIDArray
	default:
		return KindPartition
	}
}

func defaultNodePath(d lsblkDevice) string {
	switch lsblkKind(d.Type) {
	case KindMappedCrypto, KindLogicalVolume:
		return MapperPath(d.Name)
	default:
		return "/dev/" + d.Name
	}
}
