package topology

import (
	"github.com/cockroachdb/errors"
)

// Topology is everything the inference engine reads about storage.
type Topology struct {
	Root   Device
	Swap   []Device
	Crypto *CryptoTable
}

// DeviceSpec describes one device in a plan file. Parents reference other devices by path.
type DeviceSpec struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Spec    string   `yaml:"spec"`
	Size    uint64   `yaml:"size"`
	Kind    string   `yaml:"kind"`
	Parents []string `yaml:"parents"`
}

// MappingSpec names a crypto mapping and the path of its backing device.
type MappingSpec struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
}

// Spec is the serialized form of a Topology.
type Spec struct {
	Devices []DeviceSpec  `yaml:"devices"`
	Root    string        `yaml:"root"`
	Swap    []string      `yaml:"swap"`
	Crypto  []MappingSpec `yaml:"crypto"`
}

// Build resolves device references and returns the topology.
func (s Spec) Build() (*Topology, error) {
	specs := make(map[string]DeviceSpec, len(s.Devices))
	for _, d := range s.Devices {
		if d.Path == "" {
			kind, err := ParseKind(d.Kind)
			if err != nil {
				return nil, errors.Wrapf(err, "device %q", d.Name)
			}
			if d.Name == "" || (kind != KindMappedCrypto && kind != KindLogicalVolume) {
				return nil, topologyErrorf("device %q has no path", d.Name)
			}
			d.Path = MapperPath(d.Name)
		}
		if _, ok := specs[d.Path]; ok {
			return nil, topologyErrorf("device %s listed twice", d.Path)
		}
		if err := ValidateSpec(d.Spec); err != nil {
			return nil, errors.Wrapf(err, "device %s", d.Path)
		}
		specs[d.Path] = d
	}

	b := &builder{specs: specs, built: map[string]Device{}, visiting: map[string]bool{}}

	if s.Root == "" {
		return nil, topologyErrorf("no root device")
	}
	root, err := b.device(s.Root)
	if err != nil {
		return nil, errors.Wrap(err, "root device")
	}

	topo := &Topology{Root: root}
	for _, path := range s.Swap {
		swap, err := b.device(path)
		if err != nil {
			return nil, errors.Wrap(err, "swap device")
		}
		topo.Swap = append(topo.Swap, swap)
	}

	mappings := make([]CryptoMapping, 0, len(s.Crypto))
	for _, m := range s.Crypto {
		backing, err := b.device(m.Device)
		if err != nil {
			return nil, errors.Wrapf(err, "crypto mapping %q", m.Name)
		}
		mappings = append(mappings, CryptoMapping{Name: m.Name, Device: backing})
	}
	topo.Crypto, err = NewCryptoTable(mappings...)
	if err != nil {
		return nil, err
	}
	return topo, nil
}

type builder struct {
	specs    map[string]DeviceSpec
	built    map[string]Device
	visiting map[string]bool
}

func (b *builder) device(path string) (Device, error) {
	if d, ok := b.built[path]; ok {
		return d, nil
	}
	spec, ok := b.specs[path]
	if !ok {
		return nil, topologyErrorf("unknown device %s", path)
	}
	if b.visiting[path] {
		return nil, topologyErrorf("dependency cycle through %s", path)
	}
	b.visiting[path] = true
	defer delete(b.visiting, path)

	parents := make([]Device, 0, len(spec.Parents))
	for _, p := range spec.Parents {
		parent, err := b.device(p)
		if err != nil {
			return nil, err
		}
		parents = append(parents, parent)
	}

	kind, err := ParseKind(spec.Kind)
	if err != nil {
		return nil, errors.Wrapf(err, "device %s", path)
	}

	var d Device
	switch kind {
	case KindPartition:
		d = &Partition{newBase(spec.Name, path, spec.Spec, spec.Size, parents)}
	case KindRAIDArray:
		d = &RAIDArray{newBase(spec.Name, path, spec.Spec, spec.Size, parents)}
	case KindMappedCrypto:
		d = NewMappedCrypto(spec.Name, path, spec.Spec, spec.Size, parents...)
	case KindLogicalVolume:
		d = NewLogicalVolume(spec.Name, path, spec.Spec, spec.Size, parents...)
	}
	b.built[path] = d
	return d, nil
}
