// Package cli holds the interactive pieces of the command line tool.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cozystack/bootcfg/internal/logger"
)

// Prompter asks questions on Out and reads the answers from In.
type Prompter struct {
	// Yes answers every question with its default.
	Yes bool
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// Must logs a fatal error if err is not nil.
func Must(msg string, err error) {
	if err != nil {
		logger.Log.Fatalf("%s: %v", msg, err)
	}
}

// AskYesNo prompts for a yes/no answer with a default. End of input takes
// the default.
func (p *Prompter) AskYesNo(msg string, def bool) bool {
	defStr := "yes"
	if !def {
		defStr = "no"
	}
	if p.Yes {
		fmt.Fprintf(p.Out, "%s [%s]: %s\n", msg, defStr, defStr)
		return def
	}
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	for {
		fmt.Fprintf(p.Out, "%s [%s]: ", msg, defStr)
		in, err := p.reader.ReadString('\n')
		in = strings.TrimSpace(strings.ToLower(in))
		switch in {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		case "":
			return def
		}
		if err != nil {
			return def
		}
		fmt.Fprintln(p.Out, "Please answer 'yes' or 'no'.")
	}
}

// Summary prints an aligned key/value block under title.
func (p *Prompter) Summary(title string, rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	fmt.Fprintf(p.Out, "\n%s:\n", title)
	for _, r := range rows {
		value := r[1]
		if value == "" {
			value = "(none)"
		}
		fmt.Fprintf(p.Out, "  %-*s %s\n", width+1, r[0]+":", value)
	}
	fmt.Fprintln(p.Out)
}
