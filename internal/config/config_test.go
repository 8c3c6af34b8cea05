package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tinyrange/dgossgen/internal/dockerfile"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Profile != string(dockerfile.ProfileStandard) {
		t.Errorf("expected default profile standard, got %q", cfg.Profile)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".dgossgen.yml")
	content := "profile: strict\nignore_paths:\n  - /tmp\n  - /var/cache\nprimary_port: 9090\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Profile != "strict" {
		t.Errorf("expected profile strict, got %q", cfg.Profile)
	}
	if len(cfg.IgnorePaths) != 2 {
		t.Errorf("expected 2 ignore paths, got %v", cfg.IgnorePaths)
	}
	if cfg.PrimaryPort != 9090 {
		t.Errorf("expected primary port 9090, got %d", cfg.PrimaryPort)
	}
}

func TestToPolicyTranslatesFields(t *testing.T) {
	cfg := Config{
		Profile:              "strict",
		MinConfidence:        "medium",
		ProcessMinConfidence: "high",
		Categories:           map[string]string{"port": "required", "command": "off"},
		IgnorePaths:          []string{"/tmp"},
	}

	policy, err := cfg.ToPolicy()
	if err != nil {
		t.Fatalf("ToPolicy failed: %v", err)
	}
	if policy.Profile != dockerfile.ProfileStrict {
		t.Errorf("expected profile strict, got %q", policy.Profile)
	}
	if policy.MinConfidence == nil || *policy.MinConfidence != dockerfile.ConfidenceMedium {
		t.Errorf("expected MinConfidence Medium, got %v", policy.MinConfidence)
	}
	if policy.ProcessMinConfidence == nil || *policy.ProcessMinConfidence != dockerfile.ConfidenceHigh {
		t.Errorf("expected ProcessMinConfidence High, got %v", policy.ProcessMinConfidence)
	}
	if policy.Categories[dockerfile.KindPort] != dockerfile.CategoryRequired {
		t.Errorf("expected port category required, got %v", policy.Categories[dockerfile.KindPort])
	}
	if policy.Categories[dockerfile.KindCommand] != dockerfile.CategoryOff {
		t.Errorf("expected command category off, got %v", policy.Categories[dockerfile.KindCommand])
	}
}

func TestToPolicyTranslatesServicePatterns(t *testing.T) {
	cfg := Config{
		ServicePatterns: []ServicePattern{
			{ImageSubstring: "acme", Hint: "Acme service", Process: "acmed", VersionCommand: "acmed --version"},
		},
	}
	policy, err := cfg.ToPolicy()
	if err != nil {
		t.Fatalf("ToPolicy failed: %v", err)
	}
	if len(policy.ServicePatterns) != 1 {
		t.Fatalf("expected 1 service pattern, got %d", len(policy.ServicePatterns))
	}
	got := policy.ServicePatterns[0]
	if got.ImageSubstring != "acme" || got.Process != "acmed" || got.VersionCommand != "acmed --version" {
		t.Errorf("unexpected translated service pattern: %+v", got)
	}
}

func TestToPolicyRejectsUnknownConfidence(t *testing.T) {
	cfg := Config{MinConfidence: "extreme"}
	if _, err := cfg.ToPolicy(); err == nil {
		t.Error("expected an error for an unknown confidence level")
	}
}

func TestWriteTemplateProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".dgossgen.yml")
	if err := WriteTemplate(path); err != nil {
		t.Fatalf("WriteTemplate failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written template failed: %v", err)
	}
	if cfg.Profile != string(dockerfile.ProfileStandard) {
		t.Errorf("expected template profile standard, got %q", cfg.Profile)
	}
}
