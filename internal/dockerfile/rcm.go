package dockerfile

import (
	"fmt"
	"path"
	"strings"
)

// Confidence is the trust level carried by every Assertion. It only rises
// under merging (spec.md §3 invariant), never falls except on an explicit
// evidence contradiction in the merger.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "Low"
	case ConfidenceMedium:
		return "Medium"
	case ConfidenceHigh:
		return "High"
	default:
		return "Low"
	}
}

// AssertionKind identifies which of the five Assertion variants a value is.
type AssertionKind int

const (
	KindFile AssertionKind = iota
	KindPort
	KindProcess
	KindCommand
	KindUser
)

func (k AssertionKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindPort:
		return "port"
	case KindProcess:
		return "process"
	case KindCommand:
		return "command"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// AssertionKey identifies an Assertion uniquely within an RCM: (kind,
// identity). Identity strings are normalised per spec.md §3 so that two
// instructions describing "the same" file/port/process collide on the same
// key regardless of surface spelling.
type AssertionKey struct {
	Kind     AssertionKind
	Identity string
}

func (k AssertionKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Identity)
}

// FileKey normalises a container path into a File AssertionKey.
func FileKey(p string) AssertionKey {
	return AssertionKey{Kind: KindFile, Identity: cleanContainerPath(p)}
}

// PortKey normalises a protocol/port pair into a Port AssertionKey.
func PortKey(proto string, port int) AssertionKey {
	if proto == "" {
		proto = "tcp"
	}
	return AssertionKey{Kind: KindPort, Identity: fmt.Sprintf("%s:%d", strings.ToLower(proto), port)}
}

// ProcessKey normalises a command name into a Process AssertionKey: the
// basename of argv[0], per spec.md §3.
func ProcessKey(name string) AssertionKey {
	base := path.Base(name)
	return AssertionKey{Kind: KindProcess, Identity: base}
}

// CommandKey identifies a Command assertion by its rendered label.
func CommandKey(label string) AssertionKey {
	return AssertionKey{Kind: KindCommand, Identity: label}
}

// UserKey identifies a User assertion by its normalised uid-or-name spec.
func UserKey(spec string) AssertionKey {
	return AssertionKey{Kind: KindUser, Identity: spec}
}

// Provenance is the ordered, deduplicated list of reasons an Assertion
// exists, rendered at emission time as "reason1; reason2; ...".
type Provenance struct {
	SourceLine int
	Reasons    []string
}

// Add appends reason if it isn't already present, preserving order.
func (p *Provenance) Add(reason string) {
	if reason == "" {
		return
	}
	for _, r := range p.Reasons {
		if r == reason {
			return
		}
	}
	p.Reasons = append(p.Reasons, reason)
}

// Merge folds another Provenance's reasons into this one, deduplicating.
func (p *Provenance) Merge(other Provenance) {
	for _, r := range other.Reasons {
		p.Add(r)
	}
	if p.SourceLine == 0 {
		p.SourceLine = other.SourceLine
	}
}

// Render joins the reasons for the "# derived from ..." emitter comment.
func (p Provenance) Render() string {
	return strings.Join(p.Reasons, "; ")
}

// Assertion is a single testable runtime claim. It is modelled as one flat
// struct with per-kind fields (mirroring Instruction in instruction.go)
// rather than five separate types, so the RCM's dedup map can hold a single
// value type and every stage of the pipeline (merger, filter, emitter) can
// switch on Kind without a type assertion.
type Assertion struct {
	Key        AssertionKey
	Kind       AssertionKind
	Confidence Confidence
	Provenance Provenance

	// FileAssertion
	Path     string
	Exists   bool
	FileType string // "file" | "dir", empty if unknown
	Mode     string
	Owner    string
	Group    string

	// PortAssertion
	Proto     string
	Port      int
	Listening bool

	// ProcessAssertion
	ProcessName string
	Running     bool

	// CommandAssertion
	Label        string
	Exec         string
	ExpectedExit int
	TimeoutMs    int

	// UserAssertion
	UserSpec string
}

// HealthcheckSpec is the RCM's single active healthcheck, cleared by a
// later HEALTHCHECK NONE per spec.md §4.4.
type HealthcheckSpec struct {
	Disabled    bool
	Exec        string
	IntervalMs  int
	TimeoutMs   int
	StartPeriod int
	Retries     int
	SourceLine  int
}

// RuntimeContractModel is the extractor's output: everything the emitter
// needs to render both YAML documents, per spec.md §3.
type RuntimeContractModel struct {
	BaseImage    string
	FinalWorkdir string
	FinalUser    string
	EnvOrder     []string
	Env          map[string]string
	Volumes      []string
	ExposedPorts []string
	Entrypoint   []string
	Cmd          []string
	Healthcheck  *HealthcheckSpec
	CopyPaths    []string
	ServiceHints []string

	Assertions map[AssertionKey]*Assertion
}

// NewRuntimeContractModel returns an empty RCM ready for the extractor.
func NewRuntimeContractModel() *RuntimeContractModel {
	return &RuntimeContractModel{
		Env:        make(map[string]string),
		Assertions: make(map[AssertionKey]*Assertion),
	}
}

// Put inserts a into the RCM, enforcing the dedup invariant: at most one
// assertion per key, highest confidence wins, and the losing entry's
// reasons are folded into the winner's provenance rather than discarded.
// Ties (equal confidence) go to the incoming assertion, matching spec.md
// §5's ordering guarantee that later assertions supersede earlier ones.
func (r *RuntimeContractModel) Put(a *Assertion) {
	existing, ok := r.Assertions[a.Key]
	if !ok {
		r.Assertions[a.Key] = a
		return
	}
	if a.Confidence >= existing.Confidence {
		a.Provenance.Merge(existing.Provenance)
		r.Assertions[a.Key] = a
		return
	}
	existing.Provenance.Merge(a.Provenance)
}

// SetEnv records an ENV assignment, redacting the value in place if key
// matches a secret pattern (spec.md §4.4). The unredacted value is never
// retained anywhere in the RCM.
func (r *RuntimeContractModel) SetEnv(key, value string, secretPatterns []string) {
	if _, exists := r.Env[key]; !exists {
		r.EnvOrder = append(r.EnvOrder, key)
	}
	if isSecretKey(key, secretPatterns) {
		r.Env[key] = redactedPlaceholder
		return
	}
	r.Env[key] = value
}

const redactedPlaceholder = "***REDACTED***"

var defaultSecretPatterns = []string{"SECRET", "TOKEN", "PASSWORD", "KEY", "PRIVATE", "CREDENTIAL", "AUTH"}

func isSecretKey(key string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = defaultSecretPatterns
	}
	upper := strings.ToUpper(key)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// AssertionsByKind returns every assertion of the given kind, in
// lexicographic order by identity — the ordering the emitter relies on for
// byte-reproducibility (spec.md §4.7, §8 "Ordering").
func (r *RuntimeContractModel) AssertionsByKind(kind AssertionKind) []*Assertion {
	var out []*Assertion
	for _, a := range r.Assertions {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	sortAssertionsByIdentity(out)
	return out
}

func sortAssertionsByIdentity(as []*Assertion) {
	for i := 1; i < len(as); i++ {
		for j := i; j > 0 && as[j].Key.Identity < as[j-1].Key.Identity; j-- {
			as[j], as[j-1] = as[j-1], as[j]
		}
	}
}
