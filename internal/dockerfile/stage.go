package dockerfile

import (
	"sort"
	"strconv"
)

// StageGraph is the inter-stage dependency graph derived from `FROM ... AS`
// base-image references and `COPY --from=` references, per spec.md §4.2.
// Only edges to other stages *within this Dockerfile* are recorded; a FROM
// or COPY --from referencing an external image is not a graph edge.
type StageGraph struct {
	df    *Dockerfile
	edges map[int][]int // stage index -> indices it depends on, in first-seen order
}

// BuildStageGraph resolves every stage's dependencies and rejects a cyclic
// graph. A cycle can only arise from COPY --from referencing a later stage,
// since FROM can only reference stages already declared.
func BuildStageGraph(df *Dockerfile) (*StageGraph, error) {
	g := &StageGraph{df: df, edges: make(map[int][]int)}

	for i := range df.Stages {
		stage := &df.Stages[i]

		if idx, ok := resolveStageRef(df, stage.From.ImageTemplate); ok && idx != i {
			g.addEdge(i, idx)
		}

		for _, instr := range stage.Instructions {
			if instr.Kind != InstructionCopy {
				continue
			}
			from, ok := instr.Flags["from"]
			if !ok {
				continue
			}
			idx, ok := resolveStageRef(df, from)
			if !ok {
				continue // external image reference or build context, not a stage
			}
			if idx != i {
				g.addEdge(i, idx)
			}
		}
	}

	if cycle, ok := g.findCycle(); ok {
		names := make([]string, len(cycle))
		for i, idx := range cycle {
			names[i] = stageLabel(df, idx)
		}
		return nil, &StageCycleError{Cycle: names}
	}

	return g, nil
}

func (g *StageGraph) addEdge(from, to int) {
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// resolveStageRef resolves a FROM/--from value to a stage index: either a
// numeric position or a declared alias. Returns ok=false for anything else
// (an external image reference), which is not an error at this layer.
func resolveStageRef(df *Dockerfile, ref string) (int, bool) {
	if ref == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 0 && n < len(df.Stages) {
			return n, true
		}
		return 0, false
	}
	if stage := df.StageByName(ref); stage != nil {
		return stage.Index, true
	}
	return 0, false
}

func stageLabel(df *Dockerfile, idx int) string {
	if idx < 0 || idx >= len(df.Stages) {
		return strconv.Itoa(idx)
	}
	if name := df.Stages[idx].Name; name != "" {
		return name
	}
	return strconv.Itoa(idx)
}

// findCycle runs a colored DFS over the dependency graph and returns the
// first cycle found, as a path of stage indices.
func (g *StageGraph) findCycle() ([]int, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(g.df.Stages))
	var path []int

	var visit func(n int) ([]int, bool)
	visit = func(n int) ([]int, bool) {
		color[n] = gray
		path = append(path, n)
		for _, next := range g.edges[n] {
			switch color[next] {
			case white:
				if cyc, found := visit(next); found {
					return cyc, true
				}
			case gray:
				// Found the back edge; slice path from the first occurrence of next.
				for i, p := range path {
					if p == next {
						cyc := append([]int(nil), path[i:]...)
						return append(cyc, next), true
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return nil, false
	}

	for i := range g.df.Stages {
		if color[i] == white {
			if cyc, found := visit(i); found {
				return cyc, true
			}
		}
	}
	return nil, false
}

// TargetStage resolves a `--target` selector (name, numeric index, or empty
// for "last stage") to the Stage that should be treated as the build's
// final output, per spec.md §4.2.
func TargetStage(df *Dockerfile, target string) (*Stage, error) {
	if target == "" {
		return &df.Stages[len(df.Stages)-1], nil
	}
	if idx, ok := resolveStageRef(df, target); ok {
		return &df.Stages[idx], nil
	}
	return nil, ErrUnknownStage
}

// ReachableStages returns the indices of target and every stage it
// transitively depends on, sorted ascending. A multi-stage Dockerfile often
// contains build-only stages (a compiler toolchain stage, say) that never
// feed the final image; extraction only needs to walk the stages the target
// actually depends on.
func (g *StageGraph) ReachableStages(target int) []int {
	seen := map[int]bool{target: true}
	queue := []int{target}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dep := range g.edges[n] {
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
