package testutil

import (
	"context"
	"path/filepath"

	"github.com/cozystack/bootcfg/internal/execute"
)

// Recorder is an execute.Runner that records commands instead of running them.
// Outputs and Errors are keyed by the base name of the command path.
type Recorder struct {
	Commands []execute.Command
	Outputs  map[string]string
	Errors   map[string]error
}

func (r *Recorder) Run(_ context.Context, cmd execute.Command) error {
	r.Commands = append(r.Commands, cmd)
	return r.Errors[filepath.Base(cmd.Path)]
}

func (r *Recorder) Output(_ context.Context, cmd execute.Command) (string, error) {
	r.Commands = append(r.Commands, cmd)
	name := filepath.Base(cmd.Path)
	return r.Outputs[name], r.Errors[name]
}

// Names returns the base names of the recorded commands, in order.
func (r *Recorder) Names() []string {
	names := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		names = append(names, filepath.Base(c.Path))
	}
	return names
}
