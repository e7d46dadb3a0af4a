// ABOUTME: y/N confirmation prompts for destructive commands
// ABOUTME: Declines without a terminal unless --yes is set

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	pslog "github.com/mauromedda/pkgsync/internal/log"
)

// promptConfirmer asks y/N questions on a line-oriented input.
type promptConfirmer struct {
	in          *bufio.Reader
	out         io.Writer
	assumeYes   bool
	interactive bool
}

func newPromptConfirmer(in io.Reader, out io.Writer, assumeYes, interactive bool) *promptConfirmer {
	if in == nil {
		in = strings.NewReader("")
	}
	return &promptConfirmer{in: bufio.NewReader(in), out: out, assumeYes: assumeYes, interactive: interactive}
}

// Confirm approves when --yes is set. Without a terminal it declines.
func (c *promptConfirmer) Confirm(prompt string) bool {
	if c.assumeYes {
		return true
	}
	if !c.interactive {
		pslog.Warn("%s declined: stdin is not a terminal (pass --yes to approve)", prompt)
		return false
	}

	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
