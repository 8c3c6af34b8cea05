package dockerfile

import "context"

// Report is the pipeline's complete output: the filtered contract, the two
// rendered YAML documents, and every warning collected along the way.
type Report struct {
	RCM      *RuntimeContractModel
	GossYAML string
	WaitYAML string
	HasWait  bool
	Warnings []Warning
}

// Pipeline configures a single Parse -> Extract -> merge -> filter -> emit
// run, per spec.md §2's eight-stage overview (lex/parse and stage-resolve
// happen inside Parse/Extract; this type owns everything downstream of
// them). Evidence is optional: a nil Evidence source skips §4.5 entirely
// and the report reflects static analysis alone.
type Pipeline struct {
	Target         string
	Policy         Policy
	Evidence       EvidenceSource
	EvidenceImage  string
	SecretPatterns []string
	// EvidenceRequired makes a failed Evidence.Gather fatal instead of a
	// Warning, per spec.md §6's EvidenceSource contract ("unless the caller
	// declared evidence required, in which case the failure is propagated").
	EvidenceRequired bool
}

// Run executes the pipeline against a Dockerfile's raw bytes. Only a
// malformed Dockerfile, an unresolvable stage graph, a required-category
// policy violation, or a failed evidence gather with EvidenceRequired set
// are fatal; everything else accumulates as a Warning on the returned
// Report. ENV redaction uses SecretPatterns, else Policy.SecretPatterns,
// else the built-in list.
func (p Pipeline) Run(ctx context.Context, data []byte) (*Report, error) {
	df, err := Parse(data)
	if err != nil {
		return nil, err
	}

	secretPatterns := p.SecretPatterns
	if len(secretPatterns) == 0 {
		secretPatterns = p.Policy.SecretPatterns
	}
	rcm, extractWarnings, err := Extract(df, ExtractOptions{
		Target:         p.Target,
		SecretPatterns: secretPatterns,
	})
	if err != nil {
		return nil, err
	}

	policy := p.Policy
	if policy.Profile == "" {
		policy = DefaultPolicy()
	}

	ApplyServiceHints(rcm, policy.ServicePatterns)

	warnings := make([]Warning, 0, len(df.Warnings)+len(extractWarnings))
	warnings = append(warnings, df.Warnings...)
	warnings = append(warnings, extractWarnings...)

	if p.Evidence != nil {
		bundle, err := p.Evidence.Gather(ctx, p.EvidenceImage)
		if err != nil {
			if p.EvidenceRequired {
				return nil, &EvidenceUnavailableError{Err: err}
			}
			warnings = append(warnings, Warning{
				Kind:    WarnEvidenceUnavailable,
				Message: "evidence gathering failed: " + err.Error(),
			})
		} else {
			warnings = append(warnings, MergeEvidence(rcm, bundle)...)
		}
	}

	filtered, err := Filter(rcm, policy)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RCM:      filtered,
		GossYAML: EmitGoss(filtered),
		Warnings: warnings,
	}
	if ShouldEmitWait(filtered, policy) {
		report.WaitYAML = EmitWait(filtered, policy)
		report.HasWait = true
	}

	return report, nil
}
