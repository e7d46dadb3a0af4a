// ABOUTME: CLI entry point for pkgsync
// ABOUTME: Runs the cobra command tree and maps errors to a non-zero exit

package main

import (
	"fmt"
	"io"
	"os"

	pslog "github.com/mauromedda/pkgsync/internal/log"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the CLI with the given args and streams. Log output goes to
// stderr for the duration of the call.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	prev := pslog.SetOutput(stderr)
	defer pslog.SetOutput(prev)
	prevLevel := pslog.GetLevel()
	defer pslog.SetLevel(prevLevel)

	cmd := newRootCmd(stdin)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}
