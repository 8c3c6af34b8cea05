package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/dgossgen/internal/config"
	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

// sharedFlags are the flags every subcommand that runs the pipeline accepts,
// carried into a dockerfile.Policy on top of whatever .dgossgen.yml supplies.
type sharedFlags struct {
	dockerfilePath string
	configPath     string
	target         string
	primaryPort    int
	primaryProto   string
	healthEndpoint string
	forceWaitFile  bool
}

func loadPolicy(f sharedFlags) (dockerfile.Policy, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return dockerfile.Policy{}, fmt.Errorf("load config: %w", err)
	}
	policy, err := cfg.ToPolicy()
	if err != nil {
		return dockerfile.Policy{}, fmt.Errorf("translate config: %w", err)
	}

	// CLI flags outrank the config file, per SPEC_FULL.md §4's
	// --primary-port/--health-endpoint override rule.
	if f.primaryPort != 0 {
		policy.PrimaryPort = f.primaryPort
	}
	if f.primaryProto != "" {
		policy.PrimaryProto = f.primaryProto
	}
	if f.healthEndpoint != "" {
		policy.HealthEndpoint = f.healthEndpoint
	}
	if f.forceWaitFile {
		policy.ForceWaitFile = true
	}
	return policy, nil
}

func readDockerfile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func logWarnings(warnings []dockerfile.Warning) {
	for _, w := range warnings {
		slog.Warn(w.Kind.String(), "message", w.Message, "line", w.Coord.Line)
	}
}

func asPolicyViolation(err error) (*dockerfile.PolicyViolationError, bool) {
	var pv *dockerfile.PolicyViolationError
	if errors.As(err, &pv) {
		return pv, true
	}
	return nil, false
}

// warningsPresentError signals a run that completed successfully but
// accumulated at least one Warning: main() maps it to exit 2, distinct from
// the exit-1 fatal-error path, per spec.md §6's exit code contract (0
// success; 2 success with at least one warning; 1 any fatal error).
type warningsPresentError struct {
	count int
}

func (e *warningsPresentError) Error() string {
	return fmt.Sprintf("%d warning(s) emitted", e.count)
}

// warningsResult returns a warningsPresentError when warnings were
// collected, or nil otherwise, so a subcommand can end its run with
// `return warningsResult(report.Warnings)` after logging them.
func warningsResult(warnings []dockerfile.Warning) error {
	if len(warnings) == 0 {
		return nil
	}
	return &warningsPresentError{count: len(warnings)}
}
