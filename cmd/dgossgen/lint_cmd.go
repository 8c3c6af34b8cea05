package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

// runLint validates a goss document, hand-authored or generated, and reports
// any findings on stdout. It exits non-zero when findings exist, mirroring
// the usual lint-tool convention of a clean pass returning 0.
func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ContinueOnError)
	gossPath := fs.String("f", "goss.yml", "Path to the goss document to validate")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dgossgen lint [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*gossPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", *gossPath, err)
	}

	findings, err := dockerfile.Lint(data)
	if err != nil {
		return fmt.Errorf("lint %s: %w", *gossPath, err)
	}
	if len(findings) == 0 {
		fmt.Printf("%s: no findings\n", *gossPath)
		return nil
	}

	for _, f := range findings {
		fmt.Println(f.String())
	}
	return fmt.Errorf("%d finding(s) in %s", len(findings), *gossPath)
}
