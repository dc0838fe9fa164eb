package install

import (
	"bytes"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/cozystack/bootcfg/internal/topology"
)

// DefaultInstallRoot is where the target system is mounted on the live system.
const DefaultInstallRoot = "/mnt/sysimage"

// Plan is an install plan file: the storage topology of the target system
// plus the settings of the bootloader step.
type Plan struct {
	InstallRoot string `yaml:"installRoot"`
	TargetDisk  string `yaml:"targetDisk"`
	Vendor      string `yaml:"vendor"`
	Password    string `yaml:"password"`
	LogFile     string `yaml:"logFile"`
	MCE         bool   `yaml:"mce"`
	// SkipBootloader stops after the arguments are inferred.
	SkipBootloader bool `yaml:"skipBootloader"`
	// Cmdline replaces /proc/cmdline as the source of candidate arguments.
	Cmdline []string `yaml:"cmdline"`

	Topology topology.Spec `yaml:",inline"`
}

// LoadPlan reads and parses the plan file at path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read plan %s", path)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, errors.Wrapf(err, "plan %s", path)
	}
	return plan, nil
}

// ParsePlan decodes a plan document. Unknown keys are rejected.
func ParsePlan(data []byte) (*Plan, error) {
	plan := &Plan{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(plan); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode plan")
	}
	if plan.InstallRoot == "" {
		plan.InstallRoot = DefaultInstallRoot
	}
	return plan, nil
}
