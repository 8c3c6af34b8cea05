package dockerfile

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LintFinding is a single structural implausibility found in a hand-authored
// or previously-generated goss document. Lint never inspects the underlying
// system; it only flags shapes that could not have come from a working
// extraction, grounded in original_source's cli/lint.rs.
type LintFinding struct {
	Section string
	Key     string
	Message string
}

func (f LintFinding) String() string {
	return fmt.Sprintf("%s.%s: %s", f.Section, f.Key, f.Message)
}

// Lint parses doc as a goss.yml/goss_wait.yml document and reports entries
// that are syntactically valid YAML but structurally implausible: an empty
// exec, a zero timeout, or a file entry with no fields at all. It never
// fails on a document that merely lacks the sections dgossgen would have
// emitted; that's a valid hand-authored document, not a lint finding.
func Lint(doc []byte) ([]LintFinding, error) {
	var parsed map[string]map[string]map[string]any
	if err := yaml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("lint: document is not valid YAML: %w", err)
	}

	var findings []LintFinding
	for section, entries := range parsed {
		for key, fields := range entries {
			findings = append(findings, lintEntry(section, key, fields)...)
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Section != findings[j].Section {
			return findings[i].Section < findings[j].Section
		}
		return findings[i].Key < findings[j].Key
	})
	return findings, nil
}

func lintEntry(section, key string, fields map[string]any) []LintFinding {
	var findings []LintFinding
	add := func(msg string) {
		findings = append(findings, LintFinding{Section: section, Key: key, Message: msg})
	}

	if len(fields) == 0 {
		add("entry has no fields")
		return findings
	}

	switch section {
	case "file":
		if _, ok := fields["exists"]; !ok {
			add("file entry has no exists field")
		}
	case "command":
		exec, _ := fields["exec"].(string)
		if strings.TrimSpace(exec) == "" {
			add("empty exec")
		}
		if v, ok := fields["timeout"]; ok && isZeroNumber(v) {
			add("zero timeout")
		}
	case "port":
		if _, ok := fields["listening"]; !ok {
			add("port entry has no listening field")
		}
	case "process":
		if _, ok := fields["running"]; !ok {
			add("process entry has no running field")
		}
	}
	return findings
}

func isZeroNumber(v any) bool {
	switch n := v.(type) {
	case int:
		return n == 0
	case int64:
		return n == 0
	case float64:
		return n == 0
	default:
		return false
	}
}
