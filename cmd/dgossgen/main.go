// Command dgossgen turns a Dockerfile into a goss.yml/goss_wait.yml pair by
// extracting a runtime contract model and rendering it through a policy
// profile. It is a thin CLI: flag parsing, file I/O, and wiring only, in the
// teacher's run()-error idiom (cmd/cc/main.go).
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = runGenerate(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "probe":
		err = runProbe(os.Args[2:])
	case "explain":
		err = runExplain(os.Args[2:])
	case "lint":
		err = runLint(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		// No recognized subcommand: treat the whole argument list as
		// "generate" flags, so `dgossgen Dockerfile` keeps working.
		err = runGenerate(os.Args[1:])
	}

	if err != nil {
		// A policy violation is fatal (spec.md §7's taxonomy), not a
		// warning condition, so it exits 1 like any other fatal error.
		if pv, ok := asPolicyViolation(err); ok {
			slog.Error("policy violation", "error", pv)
			os.Exit(1)
		}
		var we *warningsPresentError
		if errors.As(err, &we) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "dgossgen: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: dgossgen <command> [flags]

Commands:
  generate   Extract a runtime contract from a Dockerfile and emit goss.yml/goss_wait.yml (default)
  init       Write a starter .dgossgen.yml policy file
  probe      Like generate, but also confirms assertions against a running container
  explain    Print a human-readable runtime contract report
  lint       Validate a hand-authored or generated goss document

Run "dgossgen <command> -h" for command-specific flags.
`)
}
