package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

func runExplain(args []string) error {
	fs := flag.NewFlagSet("explain", flag.ContinueOnError)
	dockerfilePath := fs.String("f", "Dockerfile", "Path to the Dockerfile to analyze")
	configPath := fs.String("config", ".dgossgen.yml", "Path to the policy config file")
	target := fs.String("target", "", "Build stage to analyze (name or index; default: last stage)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dgossgen explain [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := readDockerfile(*dockerfilePath)
	if err != nil {
		return err
	}
	policy, err := loadPolicy(sharedFlags{configPath: *configPath})
	if err != nil {
		return err
	}

	p := dockerfile.Pipeline{Target: *target, Policy: policy}
	report, err := p.Run(context.Background(), data)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	fmt.Print(dockerfile.RenderReport(*report))
	return nil
}
