// Package config loads the on-disk .dgossgen.yml policy file and translates
// it into an internal/dockerfile.Policy. It is an ambient collaborator, not
// part of the core: its own correctness isn't governed by the runtime
// contract model's invariants, only by round-tripping cleanly into one.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

// Config mirrors dockerfile.Policy in a YAML-serializable shape, following
// the teacher's Metadata/BootConfig struct-tag pattern in
// internal/bundle/bundle.go.
type Config struct {
	Profile              string           `yaml:"profile"`
	MinConfidence        string           `yaml:"min_confidence,omitempty"`
	Categories           map[string]string `yaml:"categories,omitempty"`
	IgnorePaths          []string         `yaml:"ignore_paths,omitempty"`
	EmitFileModes        *bool            `yaml:"emit_file_modes,omitempty"`
	ProcessMinConfidence string           `yaml:"process_min_confidence,omitempty"`
	PrimaryPort          int              `yaml:"primary_port,omitempty"`
	PrimaryProto         string           `yaml:"primary_proto,omitempty"`
	HealthEndpoint       string           `yaml:"health_endpoint,omitempty"`
	ForceWaitFile        bool             `yaml:"force_wait_file,omitempty"`
	SecretPatterns       []string         `yaml:"secret_patterns,omitempty"`
	ServicePatterns      []ServicePattern `yaml:"service_patterns,omitempty"`
}

// ServicePattern is the on-disk shape of a caller-supplied service hint
// extending dockerfile.ApplyServiceHints's built-in table (spec.md §4.4).
type ServicePattern struct {
	ImageSubstring string `yaml:"image_substring"`
	Hint           string `yaml:"hint"`
	Process        string `yaml:"process,omitempty"`
	ConfigFile     string `yaml:"config_file,omitempty"`
	VersionCommand string `yaml:"version_command,omitempty"`
}

// Default returns the configuration equivalent to dockerfile.DefaultPolicy.
func Default() Config {
	emitModes := true
	return Config{
		Profile:       string(dockerfile.ProfileStandard),
		EmitFileModes: &emitModes,
	}
}

// Load reads and decodes a .dgossgen.yml file at path. A missing file is not
// an error: callers get Default() back, matching the teacher's tolerant
// LoadMetadata behavior for an optional sidecar file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteTemplate writes a starter .dgossgen.yml to path, in the teacher's
// WriteTemplate style (yaml.Encoder with two-space indent), for the CLI's
// init subcommand.
func WriteTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	defer enc.Close()

	return enc.Encode(Default())
}

func parseConfidence(s string) (*dockerfile.Confidence, error) {
	if s == "" {
		return nil, nil
	}
	var c dockerfile.Confidence
	switch s {
	case "low":
		c = dockerfile.ConfidenceLow
	case "medium":
		c = dockerfile.ConfidenceMedium
	case "high":
		c = dockerfile.ConfidenceHigh
	default:
		return nil, fmt.Errorf("unknown confidence level %q", s)
	}
	return &c, nil
}

func parseCategoryPolicy(s string) (dockerfile.CategoryPolicy, error) {
	switch s {
	case "on", "":
		return dockerfile.CategoryOn, nil
	case "off":
		return dockerfile.CategoryOff, nil
	case "required":
		return dockerfile.CategoryRequired, nil
	default:
		return 0, fmt.Errorf("unknown category policy %q", s)
	}
}

func parseAssertionKind(s string) (dockerfile.AssertionKind, error) {
	switch s {
	case "file":
		return dockerfile.KindFile, nil
	case "port":
		return dockerfile.KindPort, nil
	case "process":
		return dockerfile.KindProcess, nil
	case "command":
		return dockerfile.KindCommand, nil
	case "user":
		return dockerfile.KindUser, nil
	default:
		return 0, fmt.Errorf("unknown assertion category %q", s)
	}
}

// ToPolicy translates the on-disk configuration into the dockerfile.Policy
// value the core pipeline consumes.
func (c Config) ToPolicy() (dockerfile.Policy, error) {
	policy := dockerfile.Policy{
		Profile:        dockerfile.Profile(c.Profile),
		IgnorePaths:    c.IgnorePaths,
		PrimaryPort:    c.PrimaryPort,
		PrimaryProto:   c.PrimaryProto,
		HealthEndpoint: c.HealthEndpoint,
		ForceWaitFile:  c.ForceWaitFile,
		SecretPatterns: c.SecretPatterns,
	}
	if len(c.ServicePatterns) > 0 {
		policy.ServicePatterns = make([]dockerfile.ServiceHint, len(c.ServicePatterns))
		for i, sp := range c.ServicePatterns {
			policy.ServicePatterns[i] = dockerfile.ServiceHint{
				ImageSubstring: sp.ImageSubstring,
				Hint:           sp.Hint,
				Process:        sp.Process,
				ConfigFile:     sp.ConfigFile,
				VersionCommand: sp.VersionCommand,
			}
		}
	}
	if policy.Profile == "" {
		policy.Profile = dockerfile.ProfileStandard
	}
	if c.EmitFileModes != nil {
		policy.EmitFileModes = *c.EmitFileModes
	} else {
		policy.EmitFileModes = true
	}

	minConf, err := parseConfidence(c.MinConfidence)
	if err != nil {
		return dockerfile.Policy{}, err
	}
	policy.MinConfidence = minConf

	procMinConf, err := parseConfidence(c.ProcessMinConfidence)
	if err != nil {
		return dockerfile.Policy{}, err
	}
	policy.ProcessMinConfidence = procMinConf

	if len(c.Categories) > 0 {
		policy.Categories = make(map[dockerfile.AssertionKind]dockerfile.CategoryPolicy, len(c.Categories))
		for k, v := range c.Categories {
			kind, err := parseAssertionKind(k)
			if err != nil {
				return dockerfile.Policy{}, err
			}
			cp, err := parseCategoryPolicy(v)
			if err != nil {
				return dockerfile.Policy{}, err
			}
			policy.Categories[kind] = cp
		}
	}

	return policy, nil
}
