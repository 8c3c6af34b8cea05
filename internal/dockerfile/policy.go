package dockerfile

import "strings"

// Profile selects a default confidence floor, per spec.md §4.6. "minimal"
// keeps only High-confidence assertions (probe-confirmed ones, numeric USER,
// HEALTHCHECK CMD); "strict" keeps every inference,
// including Low-confidence heuristic guesses, for maximal test coverage.
type Profile string

const (
	ProfileMinimal  Profile = "minimal"
	ProfileStandard Profile = "standard"
	ProfileStrict   Profile = "strict"
)

func (p Profile) defaultMinConfidence() Confidence {
	switch p {
	case ProfileMinimal:
		return ConfidenceHigh
	case ProfileStrict:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// CategoryPolicy controls whether an assertion kind is emitted at all.
type CategoryPolicy int

const (
	// CategoryOn is the default: the category is emitted subject to the
	// confidence threshold.
	CategoryOn CategoryPolicy = iota
	// CategoryOff drops every assertion of this kind unconditionally.
	CategoryOff
	// CategoryRequired behaves like CategoryOn but is fatal via
	// PolicyViolationError if nothing of this kind survives filtering.
	CategoryRequired
)

// Policy is the filter configuration the core consumes; internal/config
// loads the on-disk `.dgossgen.yml` representation into this type.
type Policy struct {
	Profile        Profile
	MinConfidence  *Confidence // nil defers to Profile.defaultMinConfidence()
	Categories     map[AssertionKind]CategoryPolicy
	IgnorePaths    []string
	EmitFileModes  bool
	// ProcessMinConfidence raises the bar for Process assertions above the
	// general MinConfidence, letting a profile keep Low-confidence file
	// guesses while dropping Low-confidence process guesses (a shell-form
	// CMD/ENTRYPOINT whose first word is an unexpanded variable).
	ProcessMinConfidence *Confidence
	PrimaryPort          int
	PrimaryProto         string
	HealthEndpoint       string
	ForceWaitFile        bool
	SecretPatterns       []string
	// ServicePatterns extends the built-in service-hint table (heuristics.go)
	// with caller-supplied entries, per spec.md §4.4's closing sentence.
	ServicePatterns []ServiceHint
}

// DefaultPolicy returns the "standard" profile with file modes emitted and
// no category overrides, matching spec.md §4.6's stated default.
func DefaultPolicy() Policy {
	return Policy{
		Profile:       ProfileStandard,
		EmitFileModes: true,
	}
}

func (p Policy) effectiveMinConfidence() Confidence {
	if p.MinConfidence != nil {
		return *p.MinConfidence
	}
	return p.Profile.defaultMinConfidence()
}

func (p Policy) categoryPolicy(kind AssertionKind) CategoryPolicy {
	if cp, ok := p.Categories[kind]; ok {
		return cp
	}
	return CategoryOn
}

func (p Policy) pathIgnored(path string) bool {
	for _, prefix := range p.IgnorePaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Filter applies the ordered rule pass from spec.md §4.6 to rcm's
// assertions: confidence threshold, then ignore_paths prefix match, then
// category on/off, then file-mode stripping, then the process-specific
// confidence floor. It returns a new RuntimeContractModel; rcm itself is
// left untouched so callers can re-filter under a different Policy without
// re-running extraction.
func Filter(rcm *RuntimeContractModel, policy Policy) (*RuntimeContractModel, error) {
	out := &RuntimeContractModel{
		BaseImage:    rcm.BaseImage,
		FinalWorkdir: rcm.FinalWorkdir,
		FinalUser:    rcm.FinalUser,
		EnvOrder:     rcm.EnvOrder,
		Env:          rcm.Env,
		Volumes:      rcm.Volumes,
		ExposedPorts: rcm.ExposedPorts,
		Entrypoint:   rcm.Entrypoint,
		Cmd:          rcm.Cmd,
		Healthcheck:  rcm.Healthcheck,
		CopyPaths:    rcm.CopyPaths,
		ServiceHints: rcm.ServiceHints,
		Assertions:   make(map[AssertionKey]*Assertion),
	}

	minConf := policy.effectiveMinConfidence()
	survivingByKind := make(map[AssertionKind]int)

	for key, a := range rcm.Assertions {
		if a.Confidence < minConf {
			continue
		}
		if a.Kind == KindFile && policy.pathIgnored(a.Path) {
			continue
		}
		if policy.categoryPolicy(a.Kind) == CategoryOff {
			continue
		}
		if a.Kind == KindProcess && policy.ProcessMinConfidence != nil && a.Confidence < *policy.ProcessMinConfidence {
			continue
		}

		clone := *a
		if a.Kind == KindFile && !policy.EmitFileModes {
			clone.Mode = ""
		}
		out.Assertions[key] = &clone
		survivingByKind[a.Kind]++
	}

	for kind, cp := range policy.Categories {
		if cp == CategoryRequired && survivingByKind[kind] == 0 {
			return nil, &PolicyViolationError{
				Category: kind.String(),
				Reason:   "no assertions of this category survived filtering",
			}
		}
	}

	return out, nil
}
