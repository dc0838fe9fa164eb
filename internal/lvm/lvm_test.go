package lvm

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozystack/bootcfg/internal/testutil"
)

func TestParseScan(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want bool
	}{
		{name: "no groups", out: "  No volume groups found\n", want: false},
		{name: "active volumes", out: "  ACTIVE            '/dev/vg/root' [18.00 GiB] inherit\n  ACTIVE            '/dev/vg/swap' [2.00 GiB] inherit\n", want: true},
		{name: "warnings after the first line are ignored", out: "  No volume groups found\n  WARNING: something\n", want: false},
		{name: "empty output", out: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseScan(tt.out))
		})
	}
}

func TestScannerUsesCLocale(t *testing.T) {
	rec := &testutil.Recorder{Outputs: map[string]string{
		"lvscan": "  ACTIVE            '/dev/vg/root' [18.00 GiB] inherit\n",
	}}
	s := &Scanner{Runner: rec}

	assert.True(t, s.HasVolumeGroups(context.Background()))
	require.Len(t, rec.Commands, 1)
	assert.Contains(t, rec.Commands[0].Env, "LANG=C")
	assert.Contains(t, rec.Commands[0].Env, "LC_ALL=C")
	assert.Empty(t, rec.Commands[0].Root, "lvscan runs on the live system")
}

func TestScannerFailureMeansNoLVM(t *testing.T) {
	rec := &testutil.Recorder{
		Outputs: map[string]string{"lvscan": "  ACTIVE '/dev/vg/root'\n"},
		Errors:  map[string]error{"lvscan": errors.New("exit status 5")},
	}
	s := &Scanner{Runner: rec}
	assert.False(t, s.HasVolumeGroups(context.Background()))
}
