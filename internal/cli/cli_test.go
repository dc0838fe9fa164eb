package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAskYesNo(t *testing.T) {
	tests := []struct {
		name  string
		input string
		def   bool
		want  bool
	}{
		{name: "yes", input: "yes\n", want: true},
		{name: "short no", input: "N\n", def: true, want: false},
		{name: "empty takes default", input: "\n", def: true, want: true},
		{name: "eof takes default", input: "", def: false, want: false},
		{name: "retry after garbage", input: "maybe\ny\n", want: true},
		{name: "answer without newline", input: "yes", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &Prompter{In: strings.NewReader(tt.input), Out: &out}
			assert.Equal(t, tt.want, p.AskYesNo("Continue?", tt.def))
		})
	}
}

func TestAskYesNoRetryMessage(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{In: strings.NewReader("maybe\nno\n"), Out: &out}
	assert.False(t, p.AskYesNo("Continue?", true))
	assert.Equal(t, 2, strings.Count(out.String(), "Continue? [yes]: "))
	assert.Contains(t, out.String(), "Please answer 'yes' or 'no'.")
}

func TestAskYesNoAutoYes(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{Yes: true, In: strings.NewReader("no\n"), Out: &out}
	assert.True(t, p.AskYesNo("Continue?", true))
	assert.Equal(t, "Continue? [yes]: yes\n", out.String())
}

func TestSummary(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{Out: &out}
	p.Summary("Summary", [][2]string{{"Disk", "/dev/sda"}, {"Root", "/mnt/sysimage"}, {"Password", ""}})
	assert.Equal(t, "\nSummary:\n"+
		"  Disk:     /dev/sda\n"+
		"  Root:     /mnt/sysimage\n"+
		"  Password: (none)\n\n", out.String())
}
