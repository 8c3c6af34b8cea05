package dockerfile

import "strings"

// Scope is the two-tier ARG/ENV expansion environment described in spec.md
// §3/§4.3: env shadows args, both preserve first-definition order. A name
// with no entry in either map expands to empty and produces an
// UnresolvedVar Warning.
type Scope struct {
	argOrder []string
	args     map[string]string
	envOrder []string
	env      map[string]string
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{
		args: make(map[string]string),
		env:  make(map[string]string),
	}
}

// DeclareArg records an ARG declaration. It becomes visible to expansion
// only from this point in the scope's construction onward, and only if not
// already declared (first declaration wins, matching Docker's own
// ARG-redeclaration behavior and original_source's
// VariableResolver::load_global_args / process_stage).
func (s *Scope) DeclareArg(name, value string) {
	if _, exists := s.args[name]; exists {
		return
	}
	s.argOrder = append(s.argOrder, name)
	s.args[name] = value
}

// SetEnv records an ENV assignment, overwriting any prior value for the
// same key while preserving its original position in envOrder.
func (s *Scope) SetEnv(key, value string) {
	if _, exists := s.env[key]; !exists {
		s.envOrder = append(s.envOrder, key)
	}
	s.env[key] = value
}

// Lookup resolves a name against env first, then args, per spec.md §4.3
// ("env shadows args").
func (s *Scope) Lookup(name string) (string, bool) {
	if v, ok := s.env[name]; ok {
		return v, true
	}
	if v, ok := s.args[name]; ok {
		return v, true
	}
	return "", false
}

// EnvPairs returns the env map's entries in first-definition order.
func (s *Scope) EnvPairs() []KeyValue {
	out := make([]KeyValue, 0, len(s.envOrder))
	for _, k := range s.envOrder {
		out = append(out, KeyValue{Key: k, Value: s.env[k]})
	}
	return out
}

// Clone produces an independent copy, used when a stage's scope must be
// forked without mutating the parent (e.g. speculative re-extraction).
func (s *Scope) Clone() *Scope {
	c := NewScope()
	c.argOrder = append([]string(nil), s.argOrder...)
	c.envOrder = append([]string(nil), s.envOrder...)
	for k, v := range s.args {
		c.args[k] = v
	}
	for k, v := range s.env {
		c.env[k] = v
	}
	return c
}

// Expand resolves $NAME / ${NAME} / ${NAME:-default} / ${NAME:+alt} /
// ${NAME-default} / ${NAME+alt} references in s against the scope,
// appending an UnresolvedVar Warning at coord for every unresolved
// reference it encounters (a name referenced twice warns twice). $$ is a
// literal $.
func (sc *Scope) Expand(input string, coord Coord, warnings *[]Warning) string {
	out, _ := expandScoped(input, sc, coord, warnings, false, 0)
	return out
}

// ExpandPreserve resolves known ARG/ENV references but leaves unresolved
// names as literal text, with no warning collection. RUN command bodies are
// shell text passed through this instead of Expand, so a shell-local
// variable assigned earlier in the same command isn't mistaken for an
// unresolved Dockerfile variable and blanked out.
func (sc *Scope) ExpandPreserve(input string) string {
	out, _ := expandScoped(input, sc, Coord{}, nil, true, 0)
	return out
}

func expandScoped(s string, sc *Scope, coord Coord, warnings *[]Warning, preserve bool, depth int) (string, error) {
	if depth > MaxVariableExpansion {
		return "", ErrVariableExpansionLoop
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		if s[i] != '$' {
			result.WriteByte(s[i])
			i++
			continue
		}

		if i+1 >= len(s) {
			result.WriteByte('$')
			i++
			continue
		}

		next := s[i+1]

		if next == '$' {
			result.WriteByte('$')
			i += 2
			continue
		}

		if next == '{' {
			end := strings.IndexByte(s[i:], '}')
			if end == -1 {
				result.WriteByte('$')
				i++
				continue
			}
			end += i

			expr := s[i+2 : end]
			expanded, err := expandBraceExprScoped(expr, sc, coord, warnings, preserve, depth)
			if err != nil {
				return "", err
			}
			if preserve && expanded == unresolvedMarker {
				result.WriteString(s[i : end+1])
			} else {
				result.WriteString(expanded)
			}
			i = end + 1
			continue
		}

		j := i + 1
		for j < len(s) && isVarChar(s[j]) {
			j++
		}

		if j == i+1 {
			result.WriteByte('$')
			i++
			continue
		}

		varName := s[i+1 : j]
		if val, ok := sc.Lookup(varName); ok {
			expanded, err := expandScoped(val, sc, coord, warnings, preserve, depth+1)
			if err != nil {
				return "", err
			}
			result.WriteString(expanded)
		} else if preserve {
			result.WriteString(s[i:j])
		} else {
			recordUnresolved(warnings, coord, varName)
		}
		i = j
	}

	return result.String(), nil
}

// unresolvedMarker is returned by expandBraceExprScoped in preserve mode to
// signal the caller to substitute the original "${...}" text verbatim,
// distinguishing "unresolved" from a legitimately empty expansion.
const unresolvedMarker = "\x00unresolved\x00"

// expandBraceExprScoped expands a ${...} expression body (without the
// surrounding ${ }).
func expandBraceExprScoped(expr string, sc *Scope, coord Coord, warnings *[]Warning, preserve bool, depth int) (string, error) {
	nameEnd := 0
	for nameEnd < len(expr) && isVarChar(expr[nameEnd]) {
		nameEnd++
	}
	varName := expr[:nameEnd]
	rest := expr[nameEnd:]

	val, isSet := sc.Lookup(varName)
	isEmpty := !isSet || val == ""

	switch {
	case rest == "":
		if !isSet {
			if preserve {
				return unresolvedMarker, nil
			}
			recordUnresolved(warnings, coord, varName)
			return "", nil
		}
		return expandScoped(val, sc, coord, warnings, preserve, depth+1)

	case strings.HasPrefix(rest, ":-"):
		if isEmpty {
			return expandScoped(rest[2:], sc, coord, warnings, preserve, depth+1)
		}
		return expandScoped(val, sc, coord, warnings, preserve, depth+1)

	case strings.HasPrefix(rest, ":+"):
		if !isEmpty {
			return expandScoped(rest[2:], sc, coord, warnings, preserve, depth+1)
		}
		return "", nil

	case strings.HasPrefix(rest, "-"):
		if !isSet {
			return expandScoped(rest[1:], sc, coord, warnings, preserve, depth+1)
		}
		return expandScoped(val, sc, coord, warnings, preserve, depth+1)

	case strings.HasPrefix(rest, "+"):
		if isSet {
			return expandScoped(rest[1:], sc, coord, warnings, preserve, depth+1)
		}
		return "", nil

	default:
		// Unrecognized modifier syntax: treat the whole expr as a literal name lookup.
		if v, ok := sc.Lookup(expr); ok {
			return expandScoped(v, sc, coord, warnings, preserve, depth+1)
		}
		if preserve {
			return unresolvedMarker, nil
		}
		recordUnresolved(warnings, coord, expr)
		return "", nil
	}
}

func recordUnresolved(warnings *[]Warning, coord Coord, name string) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, Warning{
		Kind:    WarnUnresolvedVar,
		Coord:   coord,
		Message: "unresolved variable reference: $" + name,
	})
}

// isVarChar returns true if c is valid in a variable name.
func isVarChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}

// ExpandVariables expands variables in s using a flat map, with no warning
// collection. The parser does not use it (FROM image references go through
// the global Scope's Expand); it is a flat-map helper over the same
// expansion rules.
func ExpandVariables(s string, vars map[string]string) (string, error) {
	sc := NewScope()
	for k, v := range vars {
		sc.SetEnv(k, v)
	}
	var discard []Warning
	out, err := expandScoped(s, sc, Coord{}, &discard, false, 0)
	return out, err
}

// ExpandVariablesPreserve expands known ARG/ENV references but leaves any
// unresolved $NAME / ${NAME} reference in the input untouched rather than
// collapsing it to empty. RUN command bodies are shell text, not Dockerfile
// syntax: a name the Dockerfile scope doesn't know about is very often a
// shell variable meant to be assigned and read back within that same shell
// invocation ("conda_installer=... && curl -o \"$conda_installer\" ..."),
// so treating it as an unresolved Dockerfile variable and blanking it would
// silently corrupt the command. Only literal ARG/ENV substitution is
// modelled here; general shell expansion is out of scope.
func ExpandVariablesPreserve(s string, vars map[string]string) (string, error) {
	sc := NewScope()
	for k, v := range vars {
		sc.SetEnv(k, v)
	}
	out, err := expandScoped(s, sc, Coord{}, nil, true, 0)
	return out, err
}
