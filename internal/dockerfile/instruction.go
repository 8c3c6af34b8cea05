package dockerfile

// InstructionKind identifies the type of Dockerfile instruction.
type InstructionKind int

const (
	InstructionFrom InstructionKind = iota
	InstructionRun
	InstructionCopy
	InstructionAdd
	InstructionEnv
	InstructionWorkDir
	InstructionArg
	InstructionLabel
	InstructionUser
	InstructionExpose
	InstructionVolume
	InstructionCmd
	InstructionEntrypoint
	InstructionShell
	InstructionHealthcheck
	InstructionStopSignal
	InstructionOnbuild
	InstructionMaintainer
	InstructionUnknown
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionFrom:
		return "FROM"
	case InstructionRun:
		return "RUN"
	case InstructionCopy:
		return "COPY"
	case InstructionAdd:
		return "ADD"
	case InstructionEnv:
		return "ENV"
	case InstructionWorkDir:
		return "WORKDIR"
	case InstructionArg:
		return "ARG"
	case InstructionLabel:
		return "LABEL"
	case InstructionUser:
		return "USER"
	case InstructionExpose:
		return "EXPOSE"
	case InstructionVolume:
		return "VOLUME"
	case InstructionCmd:
		return "CMD"
	case InstructionEntrypoint:
		return "ENTRYPOINT"
	case InstructionShell:
		return "SHELL"
	case InstructionHealthcheck:
		return "HEALTHCHECK"
	case InstructionStopSignal:
		return "STOPSIGNAL"
	case InstructionOnbuild:
		return "ONBUILD"
	case InstructionMaintainer:
		return "MAINTAINER"
	case InstructionUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// CommandForm distinguishes shell-form free text from JSON exec-form arrays.
type CommandForm int

const (
	// FormShell is a free-text command interpreted by SHELL (default /bin/sh -c).
	FormShell CommandForm = iota
	// FormExec is a JSON array of literal argv words.
	FormExec
)

// Instruction represents a single parsed Dockerfile instruction.
//
// Args holds the argument words for the instruction, already expanded at
// parse time against the active stage's Scope (RUN/CMD/ENTRYPOINT/
// HEALTHCHECK text via ExpandPreserve, which keeps unresolved references).
type Instruction struct {
	Kind     InstructionKind
	Line     int               // 1-indexed source line, start of the logical line
	Original string            // Original instruction text (post continuation-fold, pre-expansion)
	Args     []string          // Parsed arguments
	Flags    map[string]string // Flags like --from, --chown, --chmod, --platform
	Form     CommandForm       // Meaningful for RUN/CMD/ENTRYPOINT/SHELL/HEALTHCHECK CMD
	Heredocs []Heredoc         // Attached heredoc bodies, in source order

	// Healthcheck-specific fields (only populated when Kind == InstructionHealthcheck).
	HealthcheckDisabled bool
	Interval            string
	Timeout             string
	StartPeriod         string
	Retries             int

	// UnknownName is the raw instruction keyword as written, for Kind == InstructionUnknown.
	UnknownName string
}

// Heredoc is a single `<<DELIM ... DELIM` body attached to an instruction.
type Heredoc struct {
	Delimiter string
	Body      string
	Quoted    bool // single- or double-quoted delimiter: disables interpolation downstream
	Chomp     bool // dash form (<<-EOF): strip leading tabs
}

// FromInstruction holds parsed FROM instruction details.
type FromInstruction struct {
	Image         string // Image reference after variable expansion
	ImageTemplate string // Original image reference before expansion (may contain $VAR)
	Digest        string
	Alias         string // Stage alias from "AS name"
	Platform      string // Platform from --platform flag
}

// KeyValue represents a key-value pair (for ARG, ENV, LABEL).
type KeyValue struct {
	Key   string
	Value string
}

// Stage represents a build stage in a Dockerfile.
type Stage struct {
	Index        int    // 0-based position among all stages
	Name         string // Stage alias from "AS name" (empty if unnamed)
	From         FromInstruction
	Instructions []Instruction
}

// Dockerfile represents a complete parsed Dockerfile.
type Dockerfile struct {
	Stages   []Stage    // Build stages (at least one)
	Args     []KeyValue // Global ARGs declared before the first FROM
	Warnings []Warning  // Warnings accumulated during lexing/parsing
}

// StageByName returns the stage with the given alias, or nil.
func (d *Dockerfile) StageByName(name string) *Stage {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i]
		}
	}
	return nil
}

// RuntimeConfig holds metadata from CMD, ENTRYPOINT, USER, EXPOSE, LABEL, SHELL, STOPSIGNAL.
type RuntimeConfig struct {
	Cmd         []string
	Entrypoint  []string
	User        string
	ExposePorts []string
	Labels      map[string]string
	Shell       []string
	StopSignal  string
}

// DefaultShell returns the default shell used for shell-form RUN/CMD/ENTRYPOINT commands.
func DefaultShell() []string {
	return []string{"/bin/sh", "-c"}
}
