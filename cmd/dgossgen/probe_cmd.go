package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
	"github.com/tinyrange/dgossgen/internal/probe"
)

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	dockerfilePath := fs.String("f", "Dockerfile", "Path to the Dockerfile to analyze")
	configPath := fs.String("config", ".dgossgen.yml", "Path to the policy config file")
	target := fs.String("target", "", "Build stage to analyze (name or index; default: last stage)")
	outDir := fs.String("out", ".", "Directory to write goss.yml/goss_wait.yml into")
	image := fs.String("image", "", "Already-built image reference to probe (required)")
	runtimeName := fs.String("runtime", "docker", "Container runtime to use (docker|podman)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dgossgen probe -image <ref> [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		fs.Usage()
		return fmt.Errorf("-image is required")
	}

	rt, err := probe.ParseRuntime(*runtimeName)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := probe.CheckRuntime(ctx, rt); err != nil {
		return fmt.Errorf("container runtime unavailable: %w", err)
	}

	data, err := readDockerfile(*dockerfilePath)
	if err != nil {
		return err
	}
	policy, err := loadPolicy(sharedFlags{configPath: *configPath})
	if err != nil {
		return err
	}

	p := dockerfile.Pipeline{
		Target:           *target,
		Policy:           policy,
		Evidence:         probe.NewSource(rt),
		EvidenceImage:    *image,
		EvidenceRequired: true,
	}
	report, err := p.Run(ctx, data)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	logWarnings(report.Warnings)

	if err := os.WriteFile(filepath.Join(*outDir, "goss.yml"), []byte(report.GossYAML), 0o644); err != nil {
		return fmt.Errorf("write goss.yml: %w", err)
	}
	slog.Info("wrote evidence-confirmed goss.yml", "assertions", len(report.RCM.Assertions))

	if report.HasWait {
		if err := os.WriteFile(filepath.Join(*outDir, "goss_wait.yml"), []byte(report.WaitYAML), 0o644); err != nil {
			return fmt.Errorf("write goss_wait.yml: %w", err)
		}
	}

	return warningsResult(report.Warnings)
}
