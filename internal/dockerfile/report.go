package dockerfile

import (
	"fmt"
	"strings"
)

// RenderReport formats report as human-readable text grouped by assertion
// kind, each entry carrying its source line, confidence, and provenance.
// This is a pure formatting function; cmd/dgossgen's explain mode is the
// only caller that writes it anywhere, grounded in original_source's
// cli/explain.rs report renderer.
func RenderReport(report Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "base image: %s\n", report.RCM.BaseImage)
	if report.RCM.FinalWorkdir != "" {
		fmt.Fprintf(&b, "final workdir: %s\n", report.RCM.FinalWorkdir)
	}
	if report.RCM.FinalUser != "" {
		fmt.Fprintf(&b, "final user: %s\n", report.RCM.FinalUser)
	}
	if len(report.RCM.ServiceHints) > 0 {
		b.WriteString("service hints:\n")
		for _, h := range report.RCM.ServiceHints {
			fmt.Fprintf(&b, "  - %s\n", h)
		}
	}

	for _, kind := range []AssertionKind{KindFile, KindPort, KindProcess, KindCommand, KindUser} {
		entries := report.RCM.AssertionsByKind(kind)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", kind)
		for _, a := range entries {
			renderReportEntry(&b, a)
		}
	}

	if len(report.Warnings) > 0 {
		b.WriteString("\nwarnings:\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	return b.String()
}

func renderReportEntry(b *strings.Builder, a *Assertion) {
	line := "?"
	if a.Provenance.SourceLine > 0 {
		line = fmt.Sprintf("%d", a.Provenance.SourceLine)
	}
	fmt.Fprintf(b, "  %s [line %s, confidence %s]\n", a.Key.Identity, line, a.Confidence)
	if reason := a.Provenance.Render(); reason != "" {
		fmt.Fprintf(b, "    derived from: %s\n", reason)
	}
}
