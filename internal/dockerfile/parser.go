package dockerfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Parse parses a Dockerfile from its byte content. Fatal errors halt
// parsing; everything else is recorded as a Warning on the returned
// Dockerfile and parsing continues, per spec.md §5/§7.
func Parse(data []byte) (*Dockerfile, error) {
	if err := ValidateDockerfileSize(data); err != nil {
		return nil, err
	}

	p := &parser{
		globalScope:  NewScope(),
		result:       &Dockerfile{},
		stageAliases: make(map[string]int),
		escapeChar:   '\\',
	}
	p.scanDirectives(data)

	return p.parse(data)
}

// parser holds state during parsing.
type parser struct {
	globalScope      *Scope // ARGs declared before the first FROM
	currentScope     *Scope // clone of globalScope, mutated by ENV/ARG within the active stage
	result           *Dockerfile
	currentStage     *Stage
	stageAliases     map[string]int // alias -> stage index, for dup-alias and COPY --from resolution
	instructionCount int
	escapeChar       byte // '\\' unless overridden by a leading "# escape=" directive
}

// directivePattern matches a leading "# key=value" parser directive.
var directivePattern = regexp.MustCompile(`^#\s*([a-zA-Z][a-zA-Z0-9_]*)\s*=\s*(\S+)\s*$`)

// scanDirectives reads the leading run of blank/comment lines looking for
// "# escape=" (the only directive that changes lexing behavior; "# syntax="
// is recognized but has no effect since dgossgen doesn't dispatch to a
// build frontend).
func (p *parser) scanDirectives(data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, MaxLineLength), MaxLineLength)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			return
		}
		m := directivePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "escape":
			if m[2] == "`" {
				p.escapeChar = '`'
			}
		}
	}
}

// heredocPattern matches heredoc markers: <<EOF, <<'EOF', <<"EOF", <<-EOF
var heredocPattern = regexp.MustCompile(`<<(-)?(['"]?)(\w+)['"]?`)

type heredocMarker struct {
	delimiter string
	quoted    bool
	chomp     bool
}

func (p *parser) parse(data []byte) (*Dockerfile, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, MaxLineLength), MaxLineLength)

	lineNum := 0
	var continuation strings.Builder
	continuationStartLine := 0

	var pendingHeredocs []heredocMarker
	var heredocs []Heredoc
	var heredocBody strings.Builder
	inHeredoc := false
	pendingInstrLine := ""

	flushHeredocInstruction := func() error {
		if err := p.parseInstruction(pendingInstrLine, continuationStartLine, heredocs); err != nil {
			return err
		}
		heredocs = nil
		pendingInstrLine = ""
		return nil
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if len(line) > MaxLineLength {
			return nil, &LexError{Coord: Coord{Line: lineNum}, Message: "line exceeds maximum length"}
		}

		if inHeredoc {
			trimmedLine := strings.TrimRight(line, "\r")
			bodyLine := trimmedLine
			if pendingHeredocs[0].chomp {
				bodyLine = strings.TrimLeft(bodyLine, "\t")
			}
			if strings.TrimSpace(trimmedLine) == pendingHeredocs[0].delimiter {
				heredocs = append(heredocs, Heredoc{
					Delimiter: pendingHeredocs[0].delimiter,
					Body:      heredocBody.String(),
					Quoted:    pendingHeredocs[0].quoted,
					Chomp:     pendingHeredocs[0].chomp,
				})
				pendingHeredocs = pendingHeredocs[1:]
				heredocBody.Reset()
				if len(pendingHeredocs) == 0 {
					inHeredoc = false
					if err := flushHeredocInstruction(); err != nil {
						return nil, err
					}
				}
			} else {
				heredocBody.WriteString(bodyLine)
				heredocBody.WriteByte('\n')
			}
			continue
		}

		trimmed := strings.TrimRightFunc(line, unicode.IsSpace)

		// A comment line outside a continuation is dropped whole, so one that
		// ends in the escape character (e.g. "# escape=`") never folds forward.
		if continuation.Len() == 0 && strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}

		if continuation.Len() > 0 {
			stripped := strings.TrimSpace(trimmed)
			if !strings.HasSuffix(trimmed, string(p.escapeChar)) {
				if stripped == "" || strings.HasPrefix(stripped, "#") {
					continue
				}
			}
		}

		if strings.HasSuffix(trimmed, string(p.escapeChar)) {
			if continuation.Len() == 0 {
				continuationStartLine = lineNum
			}
			continuation.WriteString(strings.TrimSuffix(trimmed, string(p.escapeChar)))
			continuation.WriteByte(' ')
			continue
		}

		var fullLine string
		var effectiveLine int
		if continuation.Len() > 0 {
			continuation.WriteString(trimmed)
			fullLine = continuation.String()
			effectiveLine = continuationStartLine
			continuation.Reset()
		} else {
			fullLine = trimmed
			effectiveLine = lineNum
		}

		stripped := strings.TrimSpace(fullLine)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}

		if markers := findHeredocMarkers(stripped); len(markers) > 0 {
			pendingHeredocs = markers
			inHeredoc = true
			heredocBody.Reset()
			pendingInstrLine = stripped
			continuationStartLine = effectiveLine
			continue
		}

		if err := p.parseInstruction(stripped, effectiveLine, nil); err != nil {
			return nil, err
		}

		if p.instructionCount > MaxInstructionCount {
			return nil, ErrTooManyInstructions
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &LexError{Message: "read error: " + err.Error()}
	}

	if inHeredoc {
		// Unterminated heredoc at EOF: treat what we have as the body.
		if len(pendingHeredocs) > 0 {
			heredocs = append(heredocs, Heredoc{
				Delimiter: pendingHeredocs[0].delimiter,
				Body:      heredocBody.String(),
				Quoted:    pendingHeredocs[0].quoted,
				Chomp:     pendingHeredocs[0].chomp,
			})
		}
		if err := flushHeredocInstruction(); err != nil {
			return nil, err
		}
	}

	if continuation.Len() > 0 {
		stripped := strings.TrimSpace(continuation.String())
		if stripped != "" && !strings.HasPrefix(stripped, "#") {
			if err := p.parseInstruction(stripped, continuationStartLine, nil); err != nil {
				return nil, err
			}
		}
	}

	if p.currentStage != nil {
		p.result.Stages = append(p.result.Stages, *p.currentStage)
	}

	if len(p.result.Stages) == 0 {
		return nil, ErrMissingFrom
	}

	return p.result, nil
}

// findHeredocMarkers extracts heredoc marker(s) from a line, in the order
// they appear (a COPY can carry multiple heredoc sources).
func findHeredocMarkers(line string) []heredocMarker {
	matches := heredocPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}

	markers := make([]heredocMarker, 0, len(matches))
	for _, m := range matches {
		if len(m) < 4 {
			continue
		}
		markers = append(markers, heredocMarker{
			delimiter: m[3],
			quoted:    m[2] != "",
			chomp:     m[1] == "-",
		})
	}
	if len(markers) > MaxHeredocs {
		markers = markers[:MaxHeredocs]
	}
	return markers
}

func (p *parser) warn(kind WarningKind, coord Coord, message string) {
	p.result.Warnings = append(p.result.Warnings, Warning{Kind: kind, Coord: coord, Message: message})
}

func (p *parser) parseInstruction(line string, lineNum int, heredocs []Heredoc) error {
	p.instructionCount++
	coord := Coord{Line: lineNum}

	spaceIdx := strings.IndexFunc(line, unicode.IsSpace)
	var keyword, rest string
	if spaceIdx == -1 {
		keyword = line
		rest = ""
	} else {
		keyword = line[:spaceIdx]
		rest = strings.TrimSpace(line[spaceIdx+1:])
	}
	keyword = strings.ToUpper(keyword)

	switch keyword {
	case "FROM":
		return p.parseFrom(rest, coord, line)
	case "RUN":
		return p.parseRun(rest, coord, line, heredocs)
	case "COPY":
		return p.parseCopy(rest, coord, line, heredocs)
	case "ADD":
		return p.parseAdd(rest, coord, line)
	case "ENV":
		return p.parseEnv(rest, coord, line)
	case "WORKDIR":
		return p.parseWorkdir(rest, coord, line)
	case "ARG":
		return p.parseArg(rest, coord, line)
	case "LABEL":
		return p.parseLabel(rest, coord, line)
	case "USER":
		return p.parseUser(rest, coord, line)
	case "EXPOSE":
		return p.parseExpose(rest, coord, line)
	case "VOLUME":
		return p.parseVolume(rest, coord, line)
	case "CMD":
		return p.parseCmd(rest, coord, line)
	case "ENTRYPOINT":
		return p.parseEntrypoint(rest, coord, line)
	case "SHELL":
		return p.parseShell(rest, coord, line)
	case "HEALTHCHECK":
		return p.parseHealthcheck(rest, coord, line)
	case "STOPSIGNAL":
		return p.parseStopSignal(rest, coord, line)
	case "ONBUILD":
		return p.parseOnbuild(rest, coord, line)
	case "MAINTAINER":
		return p.parseMaintainer(rest, coord, line)
	default:
		p.warn(WarnUnknownInstruction, coord, "unrecognized instruction: "+keyword)
		instr := Instruction{
			Kind:        InstructionUnknown,
			Line:        lineNum,
			Original:    line,
			UnknownName: keyword,
			Args:        []string{rest},
		}
		if p.currentStage != nil {
			p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
		}
		return nil
	}
}

func (p *parser) requireStage(kind string, coord Coord) error {
	if p.currentStage == nil {
		return &ParseError{Coord: coord, Message: kind + " must come after FROM"}
	}
	return nil
}

func (p *parser) parseFrom(rest string, coord Coord, _ string) error {
	if p.currentStage != nil {
		p.result.Stages = append(p.result.Stages, *p.currentStage)
	}

	flags := make(map[string]string)
	rest = parseFlags(rest, flags)

	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return &ParseError{Coord: coord, Message: "FROM requires an image argument"}
	}

	imageTemplate := parts[0]
	imageRef := p.globalScope.Expand(imageTemplate, coord, &p.result.Warnings)

	var alias string
	if len(parts) >= 3 && strings.ToUpper(parts[1]) == "AS" {
		alias = parts[2]
	}

	stageIndex := len(p.result.Stages)
	if alias != "" {
		if _, exists := p.stageAliases[alias]; exists {
			return &DuplicateStageAliasError{Alias: alias, Coord: coord}
		}
		p.stageAliases[alias] = stageIndex
	}

	var digest string
	if at := strings.Index(imageRef, "@"); at != -1 {
		digest = imageRef[at+1:]
	}

	from := FromInstruction{
		Image:         imageRef,
		ImageTemplate: imageTemplate,
		Digest:        digest,
		Alias:         alias,
		Platform:      p.globalScope.Expand(flags["platform"], coord, &p.result.Warnings),
	}

	p.currentStage = &Stage{Index: stageIndex, Name: alias, From: from}
	p.currentScope = p.globalScope.Clone()
	return nil
}

func (p *parser) parseRun(rest string, coord Coord, original string, heredocs []Heredoc) error {
	if err := p.requireStage("RUN", coord); err != nil {
		return err
	}

	args, form := p.parseExecOrShellForm(rest, coord)
	for i, a := range args {
		args[i] = p.currentScope.ExpandPreserve(a)
	}

	instr := Instruction{
		Kind:     InstructionRun,
		Line:     coord.Line,
		Original: original,
		Args:     args,
		Form:     form,
		Heredocs: heredocs,
	}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseCopy(rest string, coord Coord, original string, heredocs []Heredoc) error {
	if err := p.requireStage("COPY", coord); err != nil {
		return err
	}

	flags := make(map[string]string)
	rest = parseFlags(rest, flags)
	for k, v := range flags {
		flags[k] = p.currentScope.Expand(v, coord, &p.result.Warnings)
	}

	if from, ok := flags["from"]; ok {
		if _, isNamed := p.stageAliases[from]; !isNamed {
			if idx, err := strconv.Atoi(from); err != nil || idx < 0 {
				// Not a known alias and not a numeric index: recorded as a
				// warning rather than fatal, since the referenced stage may
				// be an external image (COPY --from=nginx:latest).
				p.warn(WarnUnsupportedFeature, coord, "COPY --from references unknown stage "+from)
			}
		}
	}

	args := parseSpaceSeparatedOrExec(rest)
	if len(args) < 2 && len(heredocs) == 0 {
		return &ParseError{Coord: coord, Message: "COPY requires source and destination"}
	}
	for i, arg := range args {
		args[i] = p.currentScope.Expand(arg, coord, &p.result.Warnings)
	}

	instr := Instruction{
		Kind:     InstructionCopy,
		Line:     coord.Line,
		Original: original,
		Args:     args,
		Flags:    flags,
		Heredocs: heredocs,
	}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseAdd(rest string, coord Coord, original string) error {
	if err := p.requireStage("ADD", coord); err != nil {
		return err
	}

	flags := make(map[string]string)
	rest = parseFlags(rest, flags)

	args := parseSpaceSeparatedOrExec(rest)
	if len(args) < 2 {
		return &ParseError{Coord: coord, Message: "ADD requires source and destination"}
	}
	for i, arg := range args {
		args[i] = p.currentScope.Expand(arg, coord, &p.result.Warnings)
	}

	instr := Instruction{
		Kind:     InstructionAdd,
		Line:     coord.Line,
		Original: original,
		Args:     args,
		Flags:    flags,
	}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseEnv(rest string, coord Coord, original string) error {
	kvs, err := parseKeyValues(rest)
	if err != nil {
		return &ParseError{Coord: coord, Message: err.Error()}
	}

	if p.currentStage == nil {
		// ENV before any FROM: Docker itself rejects this, but we accept it
		// as if it were declared in the (not-yet-seen) first stage's scope
		// by folding it into globalScope, keeping extraction total.
		for _, kv := range kvs {
			if len(p.globalScope.env) > MaxVariableCount {
				return ErrTooManyVariables
			}
			p.globalScope.SetEnv(kv.Key, p.globalScope.Expand(kv.Value, coord, &p.result.Warnings))
		}
		return nil
	}

	var args []string
	for _, kv := range kvs {
		if len(p.currentScope.env) > MaxVariableCount {
			return ErrTooManyVariables
		}
		val := p.currentScope.Expand(kv.Value, coord, &p.result.Warnings)
		p.currentScope.SetEnv(kv.Key, val)
		args = append(args, kv.Key+"="+val)
	}

	instr := Instruction{Kind: InstructionEnv, Line: coord.Line, Original: original, Args: args}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseWorkdir(rest string, coord Coord, original string) error {
	if err := p.requireStage("WORKDIR", coord); err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParseError{Coord: coord, Message: "WORKDIR requires a path"}
	}
	expanded := p.currentScope.Expand(rest, coord, &p.result.Warnings)

	instr := Instruction{Kind: InstructionWorkDir, Line: coord.Line, Original: original, Args: []string{expanded}}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseArg(rest string, coord Coord, original string) error {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParseError{Coord: coord, Message: "ARG requires a name"}
	}

	var name, defaultVal string
	if eqIdx := strings.Index(rest, "="); eqIdx != -1 {
		name = rest[:eqIdx]
		defaultVal = rest[eqIdx+1:]
	} else {
		name = rest
	}

	if p.currentStage == nil {
		if len(p.globalScope.args) > MaxVariableCount {
			return ErrTooManyVariables
		}
		p.globalScope.DeclareArg(name, p.globalScope.Expand(defaultVal, coord, &p.result.Warnings))
		p.result.Args = append(p.result.Args, KeyValue{Key: name, Value: defaultVal})
		return nil
	}

	if len(p.currentScope.args) > MaxVariableCount {
		return ErrTooManyVariables
	}
	expanded := p.currentScope.Expand(defaultVal, coord, &p.result.Warnings)
	p.currentScope.DeclareArg(name, expanded)

	instr := Instruction{Kind: InstructionArg, Line: coord.Line, Original: original, Args: []string{name, expanded}}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseLabel(rest string, coord Coord, original string) error {
	if err := p.requireStage("LABEL", coord); err != nil {
		return err
	}
	kvs, err := parseKeyValues(rest)
	if err != nil {
		return &ParseError{Coord: coord, Message: err.Error()}
	}

	var args []string
	for _, kv := range kvs {
		val := p.currentScope.Expand(kv.Value, coord, &p.result.Warnings)
		args = append(args, kv.Key+"="+val)
	}

	instr := Instruction{Kind: InstructionLabel, Line: coord.Line, Original: original, Args: args}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseUser(rest string, coord Coord, original string) error {
	if err := p.requireStage("USER", coord); err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParseError{Coord: coord, Message: "USER requires a username"}
	}
	expanded := p.currentScope.Expand(rest, coord, &p.result.Warnings)

	instr := Instruction{Kind: InstructionUser, Line: coord.Line, Original: original, Args: []string{expanded}}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseExpose(rest string, coord Coord, original string) error {
	if err := p.requireStage("EXPOSE", coord); err != nil {
		return err
	}
	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return &ParseError{Coord: coord, Message: "EXPOSE requires at least one port"}
	}
	for i, port := range parts {
		parts[i] = p.currentScope.Expand(port, coord, &p.result.Warnings)
	}

	instr := Instruction{Kind: InstructionExpose, Line: coord.Line, Original: original, Args: parts}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseVolume(rest string, coord Coord, original string) error {
	if err := p.requireStage("VOLUME", coord); err != nil {
		return err
	}
	args := parseSpaceSeparatedOrExec(rest)
	if len(args) == 0 {
		return &ParseError{Coord: coord, Message: "VOLUME requires at least one path"}
	}
	for i, a := range args {
		args[i] = p.currentScope.Expand(a, coord, &p.result.Warnings)
	}

	instr := Instruction{Kind: InstructionVolume, Line: coord.Line, Original: original, Args: args}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseCmd(rest string, coord Coord, original string) error {
	if err := p.requireStage("CMD", coord); err != nil {
		return err
	}
	args, form := p.parseExecOrShellForm(rest, coord)
	for i, a := range args {
		args[i] = p.currentScope.ExpandPreserve(a)
	}

	instr := Instruction{Kind: InstructionCmd, Line: coord.Line, Original: original, Args: args, Form: form}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseEntrypoint(rest string, coord Coord, original string) error {
	if err := p.requireStage("ENTRYPOINT", coord); err != nil {
		return err
	}
	args, form := p.parseExecOrShellForm(rest, coord)
	for i, a := range args {
		args[i] = p.currentScope.ExpandPreserve(a)
	}

	instr := Instruction{Kind: InstructionEntrypoint, Line: coord.Line, Original: original, Args: args, Form: form}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseShell(rest string, coord Coord, original string) error {
	if err := p.requireStage("SHELL", coord); err != nil {
		return err
	}
	args, form := p.parseExecOrShellForm(rest, coord)
	if form != FormExec {
		return &ParseError{Coord: coord, Message: "SHELL must use exec form (\"executable\", \"arg\", ...)"}
	}

	instr := Instruction{Kind: InstructionShell, Line: coord.Line, Original: original, Args: args, Form: form}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseHealthcheck(rest string, coord Coord, original string) error {
	if err := p.requireStage("HEALTHCHECK", coord); err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)

	if strings.EqualFold(rest, "NONE") {
		instr := Instruction{
			Kind:                InstructionHealthcheck,
			Line:                coord.Line,
			Original:            original,
			HealthcheckDisabled: true,
		}
		p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
		return nil
	}

	flags := make(map[string]string)
	rest = parseFlags(rest, flags)

	upper := strings.ToUpper(rest)
	if !strings.HasPrefix(upper, "CMD") {
		return &ParseError{Coord: coord, Message: "HEALTHCHECK requires CMD or NONE"}
	}
	cmdRest := strings.TrimSpace(rest[len("CMD"):])
	args, form := p.parseExecOrShellForm(cmdRest, coord)
	for i, a := range args {
		args[i] = p.currentScope.ExpandPreserve(a)
	}

	retries := 0
	if r, ok := flags["retries"]; ok {
		if n, err := strconv.Atoi(r); err == nil {
			retries = n
		}
	}

	instr := Instruction{
		Kind:        InstructionHealthcheck,
		Line:        coord.Line,
		Original:    original,
		Args:        args,
		Form:        form,
		Interval:    flags["interval"],
		Timeout:     flags["timeout"],
		StartPeriod: flags["start-period"],
		Retries:     retries,
	}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseStopSignal(rest string, coord Coord, original string) error {
	if err := p.requireStage("STOPSIGNAL", coord); err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParseError{Coord: coord, Message: "STOPSIGNAL requires a signal"}
	}
	expanded := p.currentScope.Expand(rest, coord, &p.result.Warnings)

	instr := Instruction{Kind: InstructionStopSignal, Line: coord.Line, Original: original, Args: []string{expanded}}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

// parseOnbuild retains the ONBUILD trigger as an opaque passthrough:
// Args[0] is the triggered instruction's keyword, Args[1] its raw
// (unexpanded) remainder. Modelling ONBUILD's deferred-execution semantics
// against a downstream FROM is out of scope; it's captured for provenance
// only, per spec.md's Non-goals around build-time execution.
func (p *parser) parseOnbuild(rest string, coord Coord, original string) error {
	if err := p.requireStage("ONBUILD", coord); err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return &ParseError{Coord: coord, Message: "ONBUILD requires a triggered instruction"}
	}
	spaceIdx := strings.IndexFunc(rest, unicode.IsSpace)
	var sub, subRest string
	if spaceIdx == -1 {
		sub = strings.ToUpper(rest)
	} else {
		sub = strings.ToUpper(rest[:spaceIdx])
		subRest = strings.TrimSpace(rest[spaceIdx+1:])
	}

	instr := Instruction{Kind: InstructionOnbuild, Line: coord.Line, Original: original, Args: []string{sub, subRest}}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

func (p *parser) parseMaintainer(rest string, coord Coord, original string) error {
	if err := p.requireStage("MAINTAINER", coord); err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	expanded := p.currentScope.Expand(rest, coord, &p.result.Warnings)

	instr := Instruction{Kind: InstructionMaintainer, Line: coord.Line, Original: original, Args: []string{expanded}}
	p.currentStage.Instructions = append(p.currentStage.Instructions, instr)
	return nil
}

// parseFlags extracts --key=value flags from the beginning of a string.
func parseFlags(s string, flags map[string]string) string {
	for {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "--") {
			break
		}

		spaceIdx := strings.IndexFunc(s, unicode.IsSpace)
		var flag string
		if spaceIdx == -1 {
			flag = s
			s = ""
		} else {
			flag = s[:spaceIdx]
			s = s[spaceIdx+1:]
		}

		flag = strings.TrimPrefix(flag, "--")
		if eqIdx := strings.Index(flag, "="); eqIdx != -1 {
			flags[flag[:eqIdx]] = flag[eqIdx+1:]
		} else {
			flags[flag] = ""
		}
	}
	return s
}

// parseExecOrShellForm parses either JSON exec form or shell-form free text.
// Invalid JSON that merely looks like exec form falls back to shell form
// with a recorded Warning, per spec.md §4.1.
func (p *parser) parseExecOrShellForm(s string, coord Coord) ([]string, CommandForm) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		var args []string
		if err := json.Unmarshal([]byte(s), &args); err == nil {
			return args, FormExec
		}
		p.warn(WarnInvalidExecForm, coord, "malformed JSON exec form, falling back to shell form: "+s)
	}

	if s != "" {
		return []string{s}, FormShell
	}
	return nil, FormShell
}

// parseSpaceSeparatedOrExec parses either exec form ["a", "b"] or
// space-separated "a b c". Used for COPY/ADD, which never wrap in a shell.
func parseSpaceSeparatedOrExec(s string) []string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "[") {
		var args []string
		if err := json.Unmarshal([]byte(s), &args); err == nil {
			return args
		}
	}
	return strings.Fields(s)
}

// parseKeyValues parses KEY=VALUE pairs (for ENV, LABEL), supporting both
// the legacy "KEY VALUE" form and "KEY=VALUE KEY2=VALUE2".
func parseKeyValues(s string) ([]KeyValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	firstSpace := strings.IndexFunc(s, unicode.IsSpace)
	firstEq := strings.Index(s, "=")

	if firstEq == -1 || (firstSpace != -1 && firstSpace < firstEq) {
		parts := strings.SplitN(s, " ", 2)
		if len(parts) == 2 {
			return []KeyValue{{Key: parts[0], Value: strings.TrimSpace(parts[1])}}, nil
		}
		return []KeyValue{{Key: s, Value: ""}}, nil
	}

	var result []KeyValue
	for s != "" {
		s = strings.TrimSpace(s)
		if s == "" {
			break
		}

		eqIdx := strings.Index(s, "=")
		if eqIdx == -1 {
			break
		}

		key := s[:eqIdx]
		s = s[eqIdx+1:]

		var value string
		switch {
		case strings.HasPrefix(s, "\""):
			endQuote := findClosingQuote(s[1:])
			if endQuote == -1 {
				value = s[1:]
				s = ""
			} else {
				value = s[1 : endQuote+1]
				s = s[endQuote+2:]
			}
		case strings.HasPrefix(s, "'"):
			endQuote := strings.Index(s[1:], "'")
			if endQuote == -1 {
				value = s[1:]
				s = ""
			} else {
				value = s[1 : endQuote+1]
				s = s[endQuote+2:]
			}
		default:
			spaceIdx := strings.IndexFunc(s, unicode.IsSpace)
			if spaceIdx == -1 {
				value = s
				s = ""
			} else {
				value = s[:spaceIdx]
				s = s[spaceIdx+1:]
			}
		}

		result = append(result, KeyValue{Key: key, Value: value})
	}

	return result, nil
}

// findClosingQuote finds the index of the closing " in a string, respecting backslash escapes.
func findClosingQuote(s string) int {
	escaped := false
	for i := 0; i < len(s); i++ {
		if escaped {
			escaped = false
			continue
		}
		if s[i] == '\\' {
			escaped = true
			continue
		}
		if s[i] == '"' {
			return i
		}
	}
	return -1
}
