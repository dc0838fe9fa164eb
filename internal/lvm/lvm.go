// Package lvm detects whether the live system has any LVM volume groups.
package lvm

import (
	"context"
	"strings"

	"github.com/cozystack/bootcfg/internal/execute"
	"github.com/cozystack/bootcfg/internal/logger"
)

// NoVolumeGroups is the first line lvscan prints when nothing was found.
const NoVolumeGroups = "No volume groups found"

// Scanner runs lvscan through Runner.
type Scanner struct {
	Runner execute.Runner
	// Path defaults to "lvscan".
	Path string
}

// HasVolumeGroups reports whether lvscan found at least one volume group.
// A failing lvscan counts as no volume groups.
func (s *Scanner) HasVolumeGroups(ctx context.Context) bool {
	path := s.Path
	if path == "" {
		path = "lvscan"
	}
	runner := s.Runner
	if runner == nil {
		runner = execute.System{}
	}

	out, err := runner.Output(ctx, execute.Command{
		Path: path,
		Env:  []string{"LANG=C", "LC_ALL=C", execute.DefaultPath},
	})
	if err != nil {
		logger.Log.Warnf("lvscan failed, assuming no LVM: %v", err)
		return false
	}
	return ParseScan(out)
}

// ParseScan interprets lvscan output: only its first line matters.
func ParseScan(out string) bool {
	first, _, _ := strings.Cut(out, "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return false
	}
	return !strings.HasPrefix(first, NoVolumeGroups)
}
