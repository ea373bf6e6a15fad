package assistant

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// StageName identifies a node in the stage graph.
type StageName string

const (
	StageAnalyzeIntent StageName = "analyze_intent"
	StageDiscover      StageName = "discover_products"
	StageExecute       StageName = "execute_actions"
	StageRecommend     StageName = "generate_recommendations"
	StageRespond       StageName = "formulate_response"
	stageEnd           StageName = ""
)

// Stage is one node. Run receives its own copy of the state. When Run
// returns an error or panics, Fallback builds the stage's safe output from
// the state the stage was given.
type Stage struct {
	Name     StageName
	Run      func(ctx context.Context, s TurnState) (TurnState, error)
	Fallback func(s TurnState, cause error) TurnState
}

// Router picks the next stage from a state. It must not perform I/O.
type Router func(s TurnState) StageName

// Edge leaves From either unconditionally to To, or through Route to one
// of Targets.
type Edge struct {
	From    StageName
	To      StageName
	Route   Router
	Targets []StageName
}

func (e Edge) targets() []StageName {
	if e.Route != nil {
		return e.Targets
	}
	return []StageName{e.To}
}

// Graph is a validated acyclic stage graph with one entry and one terminal.
type Graph struct {
	entry    StageName
	terminal StageName
	stages   map[StageName]Stage
	edges    map[StageName]Edge
	logger   *zap.Logger
}

// NewGraph validates and builds a graph.
func NewGraph(entry StageName, stages []Stage, edges []Edge, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Graph{
		entry:  entry,
		stages: make(map[StageName]Stage, len(stages)),
		edges:  make(map[StageName]Edge, len(edges)),
		logger: logger,
	}
	for _, s := range stages {
		if s.Name == stageEnd {
			return nil, errors.New("assistant: stage name must not be empty")
		}
		if s.Run == nil {
			return nil, fmt.Errorf("assistant: stage %q has no run function", s.Name)
		}
		if _, dup := g.stages[s.Name]; dup {
			return nil, fmt.Errorf("assistant: duplicate stage %q", s.Name)
		}
		g.stages[s.Name] = s
	}
	if _, ok := g.stages[entry]; !ok {
		return nil, fmt.Errorf("assistant: entry stage %q not defined", entry)
	}
	for _, e := range edges {
		if _, ok := g.stages[e.From]; !ok {
			return nil, fmt.Errorf("assistant: edge from unknown stage %q", e.From)
		}
		if _, dup := g.edges[e.From]; dup {
			return nil, fmt.Errorf("assistant: stage %q has more than one outgoing edge", e.From)
		}
		if e.Route != nil && len(e.Targets) == 0 {
			return nil, fmt.Errorf("assistant: conditional edge from %q has no targets", e.From)
		}
		for _, to := range e.targets() {
			if _, ok := g.stages[to]; !ok {
				return nil, fmt.Errorf("assistant: edge from %q to unknown stage %q", e.From, to)
			}
			if to == entry {
				return nil, fmt.Errorf("assistant: edge from %q re-enters entry stage", e.From)
			}
		}
		g.edges[e.From] = e
	}

	for name := range g.stages {
		if _, ok := g.edges[name]; ok {
			continue
		}
		if g.terminal != stageEnd {
			return nil, fmt.Errorf("assistant: stages %q and %q are both terminal", g.terminal, name)
		}
		g.terminal = name
	}
	if g.terminal == stageEnd {
		return nil, errors.New("assistant: graph has no terminal stage")
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	if err := g.checkReachable(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[StageName]int, len(g.stages))
	var visit func(StageName) error
	visit = func(n StageName) error {
		switch mark[n] {
		case visiting:
			return fmt.Errorf("assistant: cycle through stage %q", n)
		case done:
			return nil
		}
		mark[n] = visiting
		if e, ok := g.edges[n]; ok {
			for _, to := range e.targets() {
				if err := visit(to); err != nil {
					return err
				}
			}
		}
		mark[n] = done
		return nil
	}
	for name := range g.stages {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) checkReachable() error {
	seen := map[StageName]bool{g.entry: true}
	queue := []StageName{g.entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		e, ok := g.edges[n]
		if !ok {
			continue
		}
		for _, to := range e.targets() {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	for name := range g.stages {
		if !seen[name] {
			return fmt.Errorf("assistant: stage %q is unreachable", name)
		}
	}
	return nil
}

// Run walks the graph from the entry stage to the terminal stage. Stage
// failures never stop the walk.
func (g *Graph) Run(ctx context.Context, s TurnState) TurnState {
	name := g.entry
	for {
		s = g.runStage(ctx, g.stages[name], s)
		if name == g.terminal {
			return s
		}
		name = g.next(name, &s)
	}
}

// next resolves the outgoing edge of a stage. A router answering outside
// its targets falls back to the first target.
func (g *Graph) next(from StageName, s *TurnState) StageName {
	e := g.edges[from]
	if e.Route == nil {
		return e.To
	}
	to := e.Route(*s)
	for _, t := range e.Targets {
		if t == to {
			return to
		}
	}
	s.think("Routing from %s chose unknown stage %q; continuing to %s", from, to, e.Targets[0])
	return e.Targets[0]
}

func (g *Graph) runStage(ctx context.Context, st Stage, in TurnState) (out TurnState) {
	fail := func(cause error) TurnState {
		g.logger.Warn("stage failed", zap.String("stage", string(st.Name)), zap.Error(cause))
		next := in.clone()
		if st.Fallback != nil {
			next = st.Fallback(next, cause)
		}
		next.think("Error in %s: %v", st.Name, cause)
		return next
	}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("stage panicked",
				zap.String("stage", string(st.Name)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out = fail(fmt.Errorf("panic: %v", r))
		}
	}()
	next, err := st.Run(ctx, in.clone())
	if err != nil {
		return fail(err)
	}
	return next
}
