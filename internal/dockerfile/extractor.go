package dockerfile

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ExtractOptions configures a single Extract call.
type ExtractOptions struct {
	// Target selects the build stage to analyze: an alias, a numeric index,
	// or "" for the last stage, per spec.md §4.2.
	Target string
	// SecretPatterns overrides the default ENV-key substrings redacted from
	// the RCM (spec.md §4.4). Nil uses the built-in list.
	SecretPatterns []string
}

// extractor walks a single stage's instruction list, folding it into a
// RuntimeContractModel. It mirrors the teacher's builder.go dispatch shape
// (a mutable running-state struct walked instruction by instruction) but
// produces Assertions instead of filesystem operations.
type extractor struct {
	rcm            *RuntimeContractModel
	warnings       []Warning
	secretPatterns []string
	workdir        string
	user           string
}

// Extract resolves opts.Target and reduces that stage's instructions (and
// its own FROM image) into a RuntimeContractModel; other stages are only
// checked for a cycle, not walked. Fatal
// errors are limited to an unresolvable stage graph; everything else about
// a well-formed Dockerfile parse is total.
func Extract(df *Dockerfile, opts ExtractOptions) (*RuntimeContractModel, []Warning, error) {
	if _, err := BuildStageGraph(df); err != nil {
		return nil, nil, err
	}

	stage, err := TargetStage(df, opts.Target)
	if err != nil {
		return nil, nil, err
	}

	ex := &extractor{
		rcm:            NewRuntimeContractModel(),
		secretPatterns: opts.SecretPatterns,
		workdir:        "/",
	}
	ex.rcm.BaseImage = stage.From.Image
	ex.rcm.FinalWorkdir = "/"

	for _, instr := range stage.Instructions {
		ex.step(instr)
	}
	ex.rcm.FinalWorkdir = ex.workdir
	ex.rcm.FinalUser = ex.user

	return ex.rcm, ex.warnings, nil
}

func (e *extractor) warn(kind WarningKind, coord Coord, message string) {
	e.warnings = append(e.warnings, Warning{Kind: kind, Coord: coord, Message: message})
}

func (e *extractor) coord(instr Instruction) Coord {
	return Coord{Line: instr.Line}
}

// step reduces a single instruction into the RCM. Every branch is
// independent; there's no shared "unhandled" fallthrough because
// InstructionUnknown and the metadata-only instructions (LABEL, ARG, SHELL,
// STOPSIGNAL, ONBUILD, MAINTAINER) are handled explicitly with a no-op body,
// documenting the decision rather than leaving it implicit.
func (e *extractor) step(instr Instruction) {
	switch instr.Kind {
	case InstructionCopy:
		e.stepCopyOrAdd(instr, "COPY")
	case InstructionAdd:
		e.stepCopyOrAdd(instr, "ADD")
	case InstructionWorkDir:
		e.stepWorkdir(instr)
	case InstructionEnv:
		e.stepEnv(instr)
	case InstructionUser:
		e.stepUser(instr)
	case InstructionExpose:
		e.stepExpose(instr)
	case InstructionVolume:
		e.stepVolume(instr)
	case InstructionRun:
		e.stepRun(instr)
	case InstructionCmd:
		e.rcm.Cmd = instr.Args
		e.stepProcess(instr, "CMD")
	case InstructionEntrypoint:
		e.rcm.Entrypoint = instr.Args
		e.stepProcess(instr, "ENTRYPOINT")
	case InstructionHealthcheck:
		e.stepHealthcheck(instr)
	case InstructionStopSignal, InstructionLabel, InstructionArg, InstructionShell,
		InstructionOnbuild, InstructionMaintainer, InstructionUnknown:
		// Metadata that doesn't translate into a testable runtime assertion.
	}
}

func (e *extractor) stepCopyOrAdd(instr Instruction, verb string) {
	if len(instr.Args) < 2 {
		return // heredoc-sourced COPY with no literal dest: no file assertion
	}
	sources := instr.Args[:len(instr.Args)-1]
	dest := instr.Args[len(instr.Args)-1]

	resolvedDest := e.resolvePath(dest)
	isDir := strings.HasSuffix(dest, "/") || len(sources) > 1
	fileType := "file"
	if isDir {
		fileType = "dir"
	}

	reason := fmt.Sprintf("copied by %s from %s", verb, strings.Join(sources, ", "))
	a := &Assertion{
		Key:        FileKey(resolvedDest),
		Kind:       KindFile,
		Confidence: ConfidenceMedium,
		Provenance: Provenance{SourceLine: instr.Line, Reasons: []string{reason}},
		Path:       cleanContainerPath(resolvedDest),
		Exists:     true,
		FileType:   fileType,
	}
	if owner, group, ok := parseChown(instr.Flags["chown"]); ok {
		a.Owner, a.Group = owner, group
	}
	if mode, ok := instr.Flags["chmod"]; ok {
		a.Mode = mode
	}
	e.rcm.Put(a)
	e.rcm.CopyPaths = append(e.rcm.CopyPaths, resolvedDest)
}

func parseChown(chown string) (owner, group string, ok bool) {
	if chown == "" {
		return "", "", false
	}
	if idx := strings.Index(chown, ":"); idx != -1 {
		return chown[:idx], chown[idx+1:], true
	}
	return chown, "", true
}

// stepWorkdir only updates current_workdir; WORKDIR produces no assertion of
// its own, per spec.md §4.4's table.
func (e *extractor) stepWorkdir(instr Instruction) {
	if len(instr.Args) == 0 {
		return
	}
	e.workdir = e.resolvePath(instr.Args[0])
}

func (e *extractor) stepEnv(instr Instruction) {
	for _, arg := range instr.Args {
		eq := strings.Index(arg, "=")
		if eq == -1 {
			continue
		}
		key, val := arg[:eq], arg[eq+1:]
		if isSecretKey(key, e.secretPatterns) {
			e.warn(WarnSecretLeak, e.coord(instr), "ENV "+key+" looks like a secret; value redacted")
		}
		e.rcm.SetEnv(key, val, e.secretPatterns)
	}
}

// stepUser records a UserAssertion at High confidence when spec is numeric
// (a uid is directly checkable without name resolution) and Medium
// otherwise, plus a "id -u | grep -q <uid>" CommandAssertion for the numeric
// case, per spec.md §4.4's table and §8 scenario 3.
func (e *extractor) stepUser(instr Instruction) {
	if len(instr.Args) == 0 {
		return
	}
	e.user = instr.Args[0]
	uid, numeric := parseNumericUser(e.user)

	confidence := ConfidenceMedium
	if numeric {
		confidence = ConfidenceHigh
	}
	e.rcm.Put(&Assertion{
		Key:        UserKey(e.user),
		Kind:       KindUser,
		Confidence: confidence,
		Provenance: Provenance{SourceLine: instr.Line, Reasons: []string{"declared by USER"}},
		UserSpec:   e.user,
	})

	if !numeric {
		return
	}
	exec := fmt.Sprintf("id -u | grep -q %d", uid)
	label := deriveCommandLabel(exec)
	e.rcm.Put(&Assertion{
		Key:          CommandKey(label),
		Kind:         KindCommand,
		Confidence:   ConfidenceHigh,
		Provenance:   Provenance{SourceLine: instr.Line, Reasons: []string{"declared by USER"}},
		Label:        label,
		Exec:         exec,
		ExpectedExit: 0,
		TimeoutMs:    10000,
	})
}

// parseNumericUser reports whether spec's user portion (before any ":group")
// is a bare numeric uid.
func parseNumericUser(spec string) (uid int, ok bool) {
	userPart := spec
	if idx := strings.Index(spec, ":"); idx != -1 {
		userPart = spec[:idx]
	}
	n, err := strconv.Atoi(userPart)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *extractor) stepExpose(instr Instruction) {
	for _, spec := range instr.Args {
		proto := "tcp"
		portPart := spec
		if idx := strings.Index(spec, "/"); idx != -1 {
			portPart = spec[:idx]
			proto = strings.ToLower(spec[idx+1:])
		}
		port, err := strconv.Atoi(portPart)
		if err != nil {
			e.warn(WarnUnsupportedFeature, e.coord(instr), "EXPOSE has non-numeric port: "+spec)
			continue
		}
		e.rcm.ExposedPorts = append(e.rcm.ExposedPorts, fmt.Sprintf("%s/%d", proto, port))
		e.rcm.Put(&Assertion{
			Key:        PortKey(proto, port),
			Kind:       KindPort,
			Confidence: ConfidenceMedium,
			Provenance: Provenance{SourceLine: instr.Line, Reasons: []string{"declared by EXPOSE"}},
			Proto:      proto,
			Port:       port,
			Listening:  true,
		})
	}
}

func (e *extractor) stepVolume(instr Instruction) {
	for _, v := range instr.Args {
		resolved := e.resolvePath(v)
		e.rcm.Volumes = append(e.rcm.Volumes, resolved)
		e.rcm.Put(&Assertion{
			Key:        FileKey(resolved),
			Kind:       KindFile,
			Confidence: ConfidenceLow,
			Provenance: Provenance{SourceLine: instr.Line, Reasons: []string{"declared by VOLUME"}},
			Path:       cleanContainerPath(resolved),
			Exists:     true,
			FileType:   "dir",
		})
	}
}

// stepRun hands RUN's argv (already shell-expanded at parse time) to the
// package-manager and user-creation heuristics; RUN itself never produces
// an assertion directly.
func (e *extractor) stepRun(instr Instruction) {
	if len(instr.Args) == 0 {
		return
	}
	applyRunHeuristics(e.rcm, instr)
}

// stepProcess derives the primary running process from a CMD/ENTRYPOINT
// instruction. Exec form gives a literal argv[0]; shell form is tokenised
// with firstShellWord to find the command actually invoked, per spec.md
// §4.4's process-derivation rule and §9's tokeniser design note. Shell form
// drops to Low confidence when the source text still carries an unresolved
// $VAR/${VAR} reference (parser.go's ExpandPreserve leaves those literal),
// since the actual process name then depends on a value never seen.
func (e *extractor) stepProcess(instr Instruction, via string) {
	if len(instr.Args) == 0 {
		return
	}
	var procName string
	confidence := ConfidenceMedium
	if instr.Form == FormExec {
		procName = instr.Args[0]
	} else {
		procName = firstShellWord(instr.Args[0])
		if hasUnresolvedVar(instr.Args[0]) {
			confidence = ConfidenceLow
		}
	}
	if procName == "" {
		return
	}
	e.rcm.Put(&Assertion{
		Key:         ProcessKey(procName),
		Kind:        KindProcess,
		Confidence:  confidence,
		Provenance:  Provenance{SourceLine: instr.Line, Reasons: []string{"process started by " + via}},
		ProcessName: path.Base(procName),
		Running:     true,
	})
}

// unresolvedVarPattern matches a shell-style $VAR or ${VAR} reference left
// literal by ExpandPreserve because no build-arg/env value was in scope.
var unresolvedVarPattern = regexp.MustCompile(`\$\{?[A-Za-z_][A-Za-z0-9_]*\}?`)

func hasUnresolvedVar(text string) bool {
	return unresolvedVarPattern.MatchString(text)
}

func (e *extractor) stepHealthcheck(instr Instruction) {
	if instr.HealthcheckDisabled {
		e.rcm.Healthcheck = &HealthcheckSpec{Disabled: true, SourceLine: instr.Line}
		// A later HEALTHCHECK NONE cancels any earlier declared check
		// entirely, per spec.md §5's HEALTHCHECK NONE resolution.
		delete(e.rcm.Assertions, CommandKey(deriveCommandLabel("healthcheck")))
		return
	}
	if len(instr.Args) == 0 {
		return
	}

	exec := renderExec(instr.Args, instr.Form)
	e.rcm.Healthcheck = &HealthcheckSpec{
		Exec:        exec,
		IntervalMs:  parseGoDuration(instr.Interval),
		TimeoutMs:   parseGoDuration(instr.Timeout),
		StartPeriod: parseGoDuration(instr.StartPeriod),
		Retries:     instr.Retries,
		SourceLine:  instr.Line,
	}

	label := deriveCommandLabel("healthcheck")
	e.rcm.Put(&Assertion{
		Key:          CommandKey(label),
		Kind:         KindCommand,
		Confidence:   ConfidenceHigh,
		Provenance:   Provenance{SourceLine: instr.Line, Reasons: []string{"declared by HEALTHCHECK"}},
		Label:        label,
		Exec:         exec,
		ExpectedExit: 0,
		TimeoutMs:    e.rcm.Healthcheck.TimeoutMs,
	})
}

// resolvePath resolves a possibly-relative path against the current
// workdir, matching how COPY/WORKDIR/VOLUME destinations behave in a real
// build.
func (e *extractor) resolvePath(p string) string {
	if p == "" {
		return e.workdir
	}
	if strings.HasPrefix(p, "/") {
		return cleanContainerPath(p)
	}
	return cleanContainerPath(path.Join(e.workdir, p))
}

// firstShellWord extracts the first whitespace-delimited token from a shell
// command string, honoring simple single/double quoting only. Per spec.md
// §9's design note, this is a minimal POSIX-ish tokeniser sufficient to
// name the process a shell-form CMD/ENTRYPOINT actually runs; it does not
// attempt redirection, substitution, or full shell semantics.
func firstShellWord(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	var quote rune
	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			if b.Len() > 0 {
				return b.String()
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// renderExec flattens a HEALTHCHECK/CMD argv back into a single shell
// string for the CommandAssertion's exec field, per spec.md §4.7 ("exec is
// the literal string goss will run").
func renderExec(args []string, form CommandForm) string {
	if form == FormShell {
		return strings.Join(args, " ")
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'") {
			quoted[i] = strconv.Quote(a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}

// parseGoDuration parses a Docker-style duration flag value ("10s", "1m30s")
// into milliseconds, returning 0 for an empty or unparseable value rather
// than failing extraction over a cosmetic flag.
func parseGoDuration(s string) int {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return int(d.Milliseconds())
}
