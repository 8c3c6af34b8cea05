package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	dockerfilePath := fs.String("f", "Dockerfile", "Path to the Dockerfile to analyze")
	configPath := fs.String("config", ".dgossgen.yml", "Path to the policy config file")
	target := fs.String("target", "", "Build stage to analyze (name or index; default: last stage)")
	outDir := fs.String("out", ".", "Directory to write goss.yml/goss_wait.yml into")
	primaryPort := fs.Int("primary-port", 0, "Override the wait-file's primary port")
	primaryProto := fs.String("primary-proto", "", "Protocol for --primary-port (default tcp)")
	healthEndpoint := fs.String("health-endpoint", "", "HTTP path stored in the policy; no synthetic healthcheck is generated from it")
	forceWait := fs.Bool("force-wait-file", false, "Always emit goss_wait.yml, even with no healthcheck or unambiguous port")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dgossgen generate [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := readDockerfile(*dockerfilePath)
	if err != nil {
		return err
	}

	policy, err := loadPolicy(sharedFlags{
		configPath:     *configPath,
		primaryPort:    *primaryPort,
		primaryProto:   *primaryProto,
		healthEndpoint: *healthEndpoint,
		forceWaitFile:  *forceWait,
	})
	if err != nil {
		return err
	}

	p := dockerfile.Pipeline{Target: *target, Policy: policy}
	report, err := p.Run(context.Background(), data)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	logWarnings(report.Warnings)

	if err := os.WriteFile(filepath.Join(*outDir, "goss.yml"), []byte(report.GossYAML), 0o644); err != nil {
		return fmt.Errorf("write goss.yml: %w", err)
	}
	slog.Info("wrote goss.yml", "assertions", len(report.RCM.Assertions))

	if report.HasWait {
		if err := os.WriteFile(filepath.Join(*outDir, "goss_wait.yml"), []byte(report.WaitYAML), 0o644); err != nil {
			return fmt.Errorf("write goss_wait.yml: %w", err)
		}
		slog.Info("wrote goss_wait.yml")
	}

	return warningsResult(report.Warnings)
}
