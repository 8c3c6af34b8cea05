package dockerfile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// EmitGoss renders the primary goss.yml document from rcm, per spec.md
// §4.7: sections appear in the fixed order file, port, process, command,
// user; keys within a section are lexicographic; every entry is preceded
// by a "# derived from ..." provenance comment. The writer is hand-rolled
// rather than routed through yaml.Marshal because Marshal has no hook for
// interleaving per-entry comments with structured output; emit_test.go
// exercises gopkg.in/yaml.v3 to parse this function's output back and
// assert on structure, which is the round-trip guarantee spec.md §8 asks
// for without giving up the comment requirement.
func EmitGoss(rcm *RuntimeContractModel) string {
	var b strings.Builder
	emitFileSection(&b, rcm)
	emitPortSection(&b, rcm)
	emitProcessSection(&b, rcm)
	emitCommandSection(&b, rcm)
	emitUserSection(&b, rcm)
	if b.Len() == 0 {
		return "{}\n"
	}
	return b.String()
}

func emitFileSection(b *strings.Builder, rcm *RuntimeContractModel) {
	entries := rcm.AssertionsByKind(KindFile)
	if len(entries) == 0 {
		return
	}
	b.WriteString("file:\n")
	for _, a := range entries {
		writeProvenanceComment(b, 1, a)
		fmt.Fprintf(b, "  %s:\n", yamlKey(a.Path))
		fmt.Fprintf(b, "    exists: %t\n", a.Exists)
		if a.FileType != "" {
			fmt.Fprintf(b, "    filetype: %s\n", a.FileType)
		}
		if a.Mode != "" {
			fmt.Fprintf(b, "    mode: %s\n", yamlScalar(a.Mode))
		}
		if a.Owner != "" {
			fmt.Fprintf(b, "    owner: %s\n", yamlScalar(a.Owner))
		}
		if a.Group != "" {
			fmt.Fprintf(b, "    group: %s\n", yamlScalar(a.Group))
		}
	}
}

func emitPortSection(b *strings.Builder, rcm *RuntimeContractModel) {
	entries := rcm.AssertionsByKind(KindPort)
	if len(entries) == 0 {
		return
	}
	b.WriteString("port:\n")
	for _, a := range entries {
		writeProvenanceComment(b, 1, a)
		fmt.Fprintf(b, "  %s:\n", yamlKey(a.Key.Identity))
		fmt.Fprintf(b, "    listening: %t\n", a.Listening)
	}
}

func emitProcessSection(b *strings.Builder, rcm *RuntimeContractModel) {
	entries := rcm.AssertionsByKind(KindProcess)
	if len(entries) == 0 {
		return
	}
	b.WriteString("process:\n")
	for _, a := range entries {
		writeProvenanceComment(b, 1, a)
		fmt.Fprintf(b, "  %s:\n", yamlKey(a.ProcessName))
		fmt.Fprintf(b, "    running: %t\n", a.Running)
	}
}

func emitCommandSection(b *strings.Builder, rcm *RuntimeContractModel) {
	entries := rcm.AssertionsByKind(KindCommand)
	if len(entries) == 0 {
		return
	}
	b.WriteString("command:\n")
	for _, a := range entries {
		writeProvenanceComment(b, 1, a)
		fmt.Fprintf(b, "  %s:\n", yamlKey(a.Label))
		fmt.Fprintf(b, "    exec: %s\n", yamlScalar(a.Exec))
		fmt.Fprintf(b, "    exit-status: %d\n", a.ExpectedExit)
		if a.TimeoutMs > 0 {
			fmt.Fprintf(b, "    timeout: %d\n", a.TimeoutMs)
		}
	}
}

func emitUserSection(b *strings.Builder, rcm *RuntimeContractModel) {
	entries := rcm.AssertionsByKind(KindUser)
	if len(entries) == 0 {
		return
	}
	b.WriteString("user:\n")
	for _, a := range entries {
		writeProvenanceComment(b, 1, a)
		fmt.Fprintf(b, "  %s:\n", yamlKey(a.UserSpec))
		b.WriteString("    exists: true\n")
	}
}

func writeProvenanceComment(b *strings.Builder, indent int, a *Assertion) {
	reason := a.Provenance.Render()
	if reason == "" {
		return
	}
	prefix := strings.Repeat("  ", indent)
	fmt.Fprintf(b, "%s# derived from %s; confidence: %s\n", prefix, reason, a.Confidence)
}

// yamlIdentifierPattern matches strings that never need quoting as a YAML
// scalar: no colon, no leading indicator character, not empty.
var yamlIdentifierPattern = regexp.MustCompile(`^[A-Za-z0-9_/.\-]+$`)

func yamlScalar(s string) string {
	if s != "" && yamlIdentifierPattern.MatchString(s) && !looksLikeYAMLLiteral(s) {
		return s
	}
	return strconv.Quote(s)
}

func yamlKey(s string) string {
	return yamlScalar(s)
}

func looksLikeYAMLLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "null", "yes", "no", "~":
		return true
	}
	if _, err := strconv.Atoi(s); err == nil {
		return true
	}
	return false
}

// deriveCommandLabel builds a goss command-test label from a free-text
// hint: lowercased, every run of non [a-z0-9] replaced one-for-one with a
// dash (no collapsing of consecutive dashes, per the resolved ambiguity
// recorded in SPEC_FULL.md §5), truncated to 64 bytes.
func deriveCommandLabel(raw string) string {
	lower := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	label := b.String()
	if len(label) > 64 {
		label = label[:64]
	}
	return label
}

// uniqueLabel appends a numeric suffix ("-2", "-3", ...) until base no
// longer collides with an already-used label, truncating to stay under the
// 64-byte limit even with the suffix attached.
func uniqueLabel(base string, used map[string]bool) string {
	label := base
	for n := 2; used[label]; n++ {
		suffix := fmt.Sprintf("-%d", n)
		trimmed := base
		if len(trimmed)+len(suffix) > 64 {
			trimmed = trimmed[:64-len(suffix)]
		}
		label = trimmed + suffix
	}
	used[label] = true
	return label
}

// primaryPort resolves the wait-file's port candidate: an explicit
// policy override wins, otherwise a single EXPOSEd port is unambiguous.
func primaryPort(rcm *RuntimeContractModel, policy Policy) (proto string, port int, ok bool) {
	if policy.PrimaryPort != 0 {
		proto = policy.PrimaryProto
		if proto == "" {
			proto = "tcp"
		}
		return proto, policy.PrimaryPort, true
	}
	if len(rcm.ExposedPorts) != 1 {
		return "", 0, false
	}
	spec := rcm.ExposedPorts[0]
	proto = "tcp"
	portPart := spec
	if idx := strings.Index(spec, "/"); idx != -1 {
		proto = spec[:idx]
		portPart = spec[idx+1:]
	}
	p, err := strconv.Atoi(portPart)
	if err != nil {
		return "", 0, false
	}
	return proto, p, true
}

// ShouldEmitWait reports whether goss_wait.yml should be generated at all,
// per spec.md §4.7: an active healthcheck, an unambiguous single exposed
// port, or an explicit force flag.
func ShouldEmitWait(rcm *RuntimeContractModel, policy Policy) bool {
	if rcm.Healthcheck != nil && !rcm.Healthcheck.Disabled {
		return true
	}
	if _, _, ok := primaryPort(rcm, policy); ok {
		return true
	}
	return policy.ForceWaitFile
}

// EmitWait renders goss_wait.yml's single readiness assertion, chosen by
// priority: healthcheck, then primary port, then primary process, then an
// empty document if none of those apply but emission was forced.
func EmitWait(rcm *RuntimeContractModel, policy Policy) string {
	if rcm.Healthcheck != nil && !rcm.Healthcheck.Disabled {
		var b strings.Builder
		b.WriteString("command:\n")
		fmt.Fprintf(&b, "  %s:\n", yamlKey("healthcheck"))
		fmt.Fprintf(&b, "    exec: %s\n", yamlScalar(rcm.Healthcheck.Exec))
		b.WriteString("    exit-status: 0\n")
		if rcm.Healthcheck.TimeoutMs > 0 {
			fmt.Fprintf(&b, "    timeout: %d\n", rcm.Healthcheck.TimeoutMs)
		}
		return b.String()
	}

	if proto, port, ok := primaryPort(rcm, policy); ok {
		var b strings.Builder
		b.WriteString("port:\n")
		fmt.Fprintf(&b, "  %s:\n", yamlKey(fmt.Sprintf("%s:%d", proto, port)))
		b.WriteString("    listening: true\n")
		return b.String()
	}

	if procs := rcm.AssertionsByKind(KindProcess); len(procs) > 0 {
		var b strings.Builder
		b.WriteString("process:\n")
		fmt.Fprintf(&b, "  %s:\n", yamlKey(procs[0].ProcessName))
		b.WriteString("    running: true\n")
		return b.String()
	}

	return "{}\n"
}
