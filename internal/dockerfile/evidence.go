package dockerfile

import (
	"context"
	"fmt"
)

// EvidenceBundle is what an EvidenceSource returns after probing a running
// (or ephemerally started) container built from the analyzed image, per
// spec.md §4.5. Every field is optional; a nil/empty slice means that
// category simply wasn't probed, not that nothing was found.
type EvidenceBundle struct {
	Files     []FileEvidence
	Ports     []PortEvidence
	Processes []ProcessEvidence
	Commands  []CommandEvidence
	Users     []UserEvidence
}

type FileEvidence struct {
	Path     string
	Exists   bool
	FileType string
}

type PortEvidence struct {
	Proto     string
	Port      int
	Listening bool
}

type ProcessEvidence struct {
	Name    string
	Running bool
}

type CommandEvidence struct {
	Label    string
	Exec     string
	ExitCode int
}

type UserEvidence struct {
	Spec    string
	Present bool
}

// EvidenceSource gathers an EvidenceBundle for an image or running
// container. internal/probe implements this by shelling out to a container
// runtime; spec.md §1 keeps that concern out of this package so the merge
// algorithm can be tested without a runtime available.
type EvidenceSource interface {
	Gather(ctx context.Context, image string) (EvidenceBundle, error)
}

// MergeEvidence reconciles bundle against rcm's existing assertions,
// per spec.md §4.5:
//   - hit, agree    -> confidence raised to High, provenance gains an
//     "observed" reason
//   - hit, disagree -> confidence lowered to Low, provenance records the
//     contradiction
//   - miss          -> a new Medium-confidence assertion is inserted with
//     "discovered via probe" provenance
//
// Every reason string is deterministic given (key, evidence value), so
// calling MergeEvidence twice with the same bundle is idempotent: Add
// dedupes on the exact reason text.
func MergeEvidence(rcm *RuntimeContractModel, bundle EvidenceBundle) []Warning {
	var warnings []Warning

	for _, f := range bundle.Files {
		key := FileKey(f.Path)
		if existing, ok := rcm.Assertions[key]; ok {
			mergeFileHit(existing, f, &warnings)
			continue
		}
		rcm.Put(&Assertion{
			Key:        key,
			Kind:       KindFile,
			Confidence: ConfidenceMedium,
			Provenance: Provenance{Reasons: []string{"discovered via probe"}},
			Path:       cleanContainerPath(f.Path),
			Exists:     f.Exists,
			FileType:   f.FileType,
		})
	}

	for _, p := range bundle.Ports {
		key := PortKey(p.Proto, p.Port)
		if existing, ok := rcm.Assertions[key]; ok {
			mergePortHit(existing, p, &warnings)
			continue
		}
		rcm.Put(&Assertion{
			Key:        key,
			Kind:       KindPort,
			Confidence: ConfidenceMedium,
			Provenance: Provenance{Reasons: []string{"discovered via probe"}},
			Proto:      p.Proto,
			Port:       p.Port,
			Listening:  p.Listening,
		})
	}

	for _, proc := range bundle.Processes {
		key := ProcessKey(proc.Name)
		if existing, ok := rcm.Assertions[key]; ok {
			mergeProcessHit(existing, proc, &warnings)
			continue
		}
		rcm.Put(&Assertion{
			Key:         key,
			Kind:        KindProcess,
			Confidence:  ConfidenceMedium,
			Provenance:  Provenance{Reasons: []string{"discovered via probe"}},
			ProcessName: proc.Name,
			Running:     proc.Running,
		})
	}

	for _, u := range bundle.Users {
		key := UserKey(u.Spec)
		if existing, ok := rcm.Assertions[key]; ok {
			mergeUserHit(existing, u, &warnings)
			continue
		}
		if !u.Present {
			continue
		}
		rcm.Put(&Assertion{
			Key:        key,
			Kind:       KindUser,
			Confidence: ConfidenceMedium,
			Provenance: Provenance{Reasons: []string{"discovered via probe"}},
			UserSpec:   u.Spec,
		})
	}

	for _, c := range bundle.Commands {
		key := CommandKey(c.Label)
		existing, ok := rcm.Assertions[key]
		if !ok {
			continue // commands are only ever declared statically (HEALTHCHECK), never probe-discovered
		}
		mergeCommandHit(existing, c, &warnings)
	}

	return warnings
}

func mergeFileHit(a *Assertion, ev FileEvidence, warnings *[]Warning) {
	if a.Exists == ev.Exists && (ev.FileType == "" || a.FileType == "" || a.FileType == ev.FileType) {
		a.Confidence = ConfidenceHigh
		a.Provenance.Add(fmt.Sprintf("observed: file %s exists=%t", a.Path, ev.Exists))
		if a.FileType == "" {
			a.FileType = ev.FileType
		}
		return
	}
	a.Confidence = ConfidenceLow
	a.Provenance.Add(fmt.Sprintf("contradicted by observed evidence: expected exists=%t, observed exists=%t", a.Exists, ev.Exists))
	*warnings = append(*warnings, Warning{Kind: WarnEvidenceUnavailable, Message: "file assertion " + a.Path + " contradicted by evidence"})
}

func mergePortHit(a *Assertion, ev PortEvidence, warnings *[]Warning) {
	if a.Listening == ev.Listening {
		a.Confidence = ConfidenceHigh
		a.Provenance.Add(fmt.Sprintf("observed: port %s/%d listening=%t", a.Proto, a.Port, ev.Listening))
		return
	}
	a.Confidence = ConfidenceLow
	a.Provenance.Add(fmt.Sprintf("contradicted by observed evidence: expected listening=%t, observed listening=%t", a.Listening, ev.Listening))
	*warnings = append(*warnings, Warning{Kind: WarnEvidenceUnavailable, Message: fmt.Sprintf("port assertion %s/%d contradicted by evidence", a.Proto, a.Port)})
}

func mergeProcessHit(a *Assertion, ev ProcessEvidence, warnings *[]Warning) {
	if a.Running == ev.Running {
		a.Confidence = ConfidenceHigh
		a.Provenance.Add(fmt.Sprintf("observed: process %s running=%t", a.ProcessName, ev.Running))
		return
	}
	a.Confidence = ConfidenceLow
	a.Provenance.Add(fmt.Sprintf("contradicted by observed evidence: expected running=%t, observed running=%t", a.Running, ev.Running))
	*warnings = append(*warnings, Warning{Kind: WarnEvidenceUnavailable, Message: "process assertion " + a.ProcessName + " contradicted by evidence"})
}

func mergeUserHit(a *Assertion, ev UserEvidence, warnings *[]Warning) {
	if ev.Present {
		a.Confidence = ConfidenceHigh
		a.Provenance.Add("observed: user " + a.UserSpec + " present")
		return
	}
	a.Confidence = ConfidenceLow
	a.Provenance.Add("contradicted by observed evidence: user " + a.UserSpec + " not present")
	*warnings = append(*warnings, Warning{Kind: WarnEvidenceUnavailable, Message: "user assertion " + a.UserSpec + " contradicted by evidence"})
}

func mergeCommandHit(a *Assertion, ev CommandEvidence, warnings *[]Warning) {
	if a.ExpectedExit == ev.ExitCode {
		a.Confidence = ConfidenceHigh
		a.Provenance.Add(fmt.Sprintf("observed: command %q exited %d", a.Label, ev.ExitCode))
		return
	}
	a.Confidence = ConfidenceLow
	a.Provenance.Add(fmt.Sprintf("contradicted by observed evidence: expected exit %d, observed exit %d", a.ExpectedExit, ev.ExitCode))
	*warnings = append(*warnings, Warning{Kind: WarnEvidenceUnavailable, Message: "command assertion " + a.Label + " contradicted by evidence"})
}
