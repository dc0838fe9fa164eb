// Package execute runs the external tools the installer depends on, optionally
// chrooted into the install root.
package execute

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/cozystack/bootcfg/internal/logger"
)

// DefaultPath is the PATH given to chrooted commands.
const DefaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Command describes one external process.
type Command struct {
	// Root is the directory to chroot into. Empty runs on the host.
	Root string
	Path string
	Args []string
	// Env replaces the inherited environment when non-empty.
	Env []string
	// LogFile receives stdout and stderr, appended. Empty inherits the installer's.
	LogFile string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner starts external processes. Tests swap in a recording fake.
type Runner interface {
	// Run waits for the command and fails on a non-zero exit.
	Run(ctx context.Context, cmd Command) error
	// Output returns combined stdout and stderr. The output is returned even when
	// the command fails.
	Output(ctx context.Context, cmd Command) (string, error)
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return e.Command + " exited " + strconv.Itoa(e.ExitCode)
}

// System is the Runner backed by os/exec.
type System struct{}

func (System) Run(ctx context.Context, c Command) error {
	cmd, err := build(ctx, c)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	var errOut io.Writer = os.Stderr
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", c.LogFile)
		}
		defer f.Close()
		out, errOut = f, f
	}
	cmd.Stdout = out
	cmd.Stderr = errOut

	logger.Log.Debugf("running %s (root %q)", c, c.Root)
	return wait(c, cmd.Run())
}

func (System) Output(ctx context.Context, c Command) (string, error) {
	cmd, err := build(ctx, c)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	logger.Log.Debugf("running %s (root %q)", c, c.Root)
	err = wait(c, cmd.Run())
	return buf.String(), err
}

func build(ctx context.Context, c Command) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Env
	if c.Root != "" {
		if len(cmd.Env) == 0 {
			cmd.Env = []string{DefaultPath}
		}
		cmd.Dir = "/"
		if err := setChroot(cmd, c.Root); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

func wait(c Command, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return errors.WithStack(&ExitError{Command: c.String(), ExitCode: exitErr.ExitCode()})
	}
	return errors.Wrapf(err, "start %s", c.Path)
}
