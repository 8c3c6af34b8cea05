// Package probe implements internal/dockerfile.EvidenceSource by starting a
// throwaway container from the analyzed image and inspecting it with the
// docker/podman CLI, grounded in original_source's probe/mod.rs (build, run
// detached, exec ps/ss/id/env, then tear down).
package probe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

// Runtime selects which container CLI to shell out to.
type Runtime string

const (
	RuntimeDocker Runtime = "docker"
	RuntimePodman Runtime = "podman"
)

// ParseRuntime validates a --runtime flag value.
func ParseRuntime(s string) (Runtime, error) {
	switch strings.ToLower(s) {
	case "docker", "":
		return RuntimeDocker, nil
	case "podman":
		return RuntimePodman, nil
	default:
		return "", fmt.Errorf("unknown container runtime %q (expected docker or podman)", s)
	}
}

// Source is a dockerfile.EvidenceSource that starts image detached, network
// isolated, execs a handful of inspection commands inside it, and always
// tears the container down afterward, whether or not evidence collection
// succeeded.
type Source struct {
	Runtime         Runtime
	NetworkIsolated bool
}

// NewSource returns a Source with network isolation on by default, matching
// original_source's ProbeConfig::default.
func NewSource(runtime Runtime) Source {
	return Source{Runtime: runtime, NetworkIsolated: true}
}

func (s Source) runtimeName() string {
	if s.Runtime == "" {
		return string(RuntimeDocker)
	}
	return string(s.Runtime)
}

// Gather starts a container from image, collects an EvidenceBundle, and
// always removes the container before returning.
func (s Source) Gather(ctx context.Context, image string) (dockerfile.EvidenceBundle, error) {
	rt := s.runtimeName()
	container := fmt.Sprintf("dgossgen-probe-%d", os.Getpid())

	runArgs := []string{"run", "-d", "--name", container}
	if s.NetworkIsolated {
		runArgs = append(runArgs, "--network", "none")
	}
	runArgs = append(runArgs, image)

	if out, err := exec.CommandContext(ctx, rt, runArgs...).CombinedOutput(); err != nil {
		return dockerfile.EvidenceBundle{}, fmt.Errorf("%s run: %w: %s", rt, err, strings.TrimSpace(string(out)))
	}
	defer exec.Command(rt, "rm", "-f", container).Run() //nolint:errcheck

	var bundle dockerfile.EvidenceBundle

	if procs, err := s.execLines(ctx, container, "ps", "aux"); err == nil {
		bundle.Processes = parseProcesses(procs)
	}
	if lines, err := s.execLines(ctx, container, "ss", "-tlnp"); err == nil {
		bundle.Ports = parseListeningPorts(lines)
	}
	if lines, err := s.execLines(ctx, container, "id"); err == nil && len(lines) > 0 {
		bundle.Users = parseUser(lines[0])
	}

	return bundle, nil
}

func (s Source) execLines(ctx context.Context, container string, args ...string) ([]string, error) {
	full := append([]string{"exec", container}, args...)
	out, err := exec.CommandContext(ctx, s.runtimeName(), full...).Output()
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, nil
}

// parseProcesses reads `ps aux` output, skipping the header, taking the
// command column (index 10 in the standard aux layout).
func parseProcesses(lines []string) []dockerfile.ProcessEvidence {
	var out []dockerfile.ProcessEvidence
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 11 {
			continue
		}
		name := fields[10]
		out = append(out, dockerfile.ProcessEvidence{Name: name, Running: true})
	}
	return out
}

// parseListeningPorts reads `ss -tlnp` output, skipping the header, pulling
// the port out of the "Local Address:Port" column (index 3).
func parseListeningPorts(lines []string) []dockerfile.PortEvidence {
	var out []dockerfile.PortEvidence
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		addr := fields[3]
		idx := strings.LastIndex(addr, ":")
		if idx == -1 {
			continue
		}
		port, err := strconv.Atoi(addr[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, dockerfile.PortEvidence{Proto: "tcp", Port: port, Listening: true})
	}
	return out
}

// parseUser reads a single `id` line into a UserEvidence keyed both by uid
// and by username, so it can hit whichever spelling the extractor used.
func parseUser(line string) []dockerfile.UserEvidence {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	uidField := line
	if idx := strings.Index(line, " "); idx != -1 {
		uidField = line[:idx]
	}
	uidField = strings.TrimPrefix(uidField, "uid=")
	numEnd := strings.IndexAny(uidField, "(")
	var out []dockerfile.UserEvidence
	if numEnd > 0 {
		out = append(out, dockerfile.UserEvidence{Spec: uidField[:numEnd], Present: true})
		name := strings.TrimSuffix(uidField[numEnd+1:], ")")
		if name != "" {
			out = append(out, dockerfile.UserEvidence{Spec: name, Present: true})
		}
	}
	return out
}

// CheckRuntime verifies the selected container runtime is reachable, for a
// fast failure before a probe run is attempted.
func CheckRuntime(ctx context.Context, rt Runtime) error {
	name := string(rt)
	if name == "" {
		name = string(RuntimeDocker)
	}
	if out, err := exec.CommandContext(ctx, name, "version").CombinedOutput(); err != nil {
		return fmt.Errorf("%s not available: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
