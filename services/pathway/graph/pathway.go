// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/google/uuid"
)

// Pathway is a directed acyclic graph of nodes and edges describing how
// a root compound is progressively transformed. See the package
// documentation for the structural invariants.
//
// A pathway is deleted as a whole; individual nodes and edges are never
// removed.
type Pathway struct {
	id   string
	name string
	mode Mode

	// rootOnly forbids implicit node creation during AddEdge.
	rootOnly bool

	// predicting is true while a prediction job owning this pathway is
	// not terminal. Manual mutation is rejected during that window.
	predicting bool

	mu     sync.RWMutex
	rootID string
	nodes  map[string]*Node
	edges  map[string]*Edge
}

// PathwayOption customizes pathway construction.
type PathwayOption func(*Pathway)

// WithPathwayID keeps a caller-supplied identifier (typically the
// remote pathway identifier).
func WithPathwayID(id string) PathwayOption {
	return func(p *Pathway) { p.id = id }
}

// WithRootNodeOnly forbids AddEdge from creating nodes for unresolved
// structures; edges may then only connect pre-existing nodes.
func WithRootNodeOnly() PathwayOption {
	return func(p *Pathway) { p.rootOnly = true }
}

// NewPathway creates an empty manual-mode pathway. The first node added
// becomes the root.
func NewPathway(name string, opts ...PathwayOption) *Pathway {
	p := &Pathway{
		id:    uuid.NewString(),
		name:  name,
		mode:  ModeManual,
		nodes: map[string]*Node{},
		edges: map[string]*Edge{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPathwayWithRoot creates a manual-mode pathway seeded with a root
// node at depth 0.
func NewPathwayWithRoot(name string, root chem.Structure, opts ...PathwayOption) *Pathway {
	p := NewPathway(name, opts...)
	node := &Node{ID: uuid.NewString(), Structure: root, Name: root.Name}
	p.nodes[node.ID] = node
	p.rootID = node.ID
	return p
}

// NewPredictedPathway creates a predicted-mode pathway seeded with the
// root node. It stays closed to manual mutation until FinishPrediction
// is called by the orchestrator on a terminal job status.
func NewPredictedPathway(name string, root chem.Structure, opts ...PathwayOption) *Pathway {
	p := NewPathwayWithRoot(name, root, opts...)
	p.mode = ModePredicted
	p.predicting = true
	return p
}

// ID returns the pathway identifier.
func (p *Pathway) ID() string { return p.id }

// Name returns the display name.
func (p *Pathway) Name() string { return p.name }

// Mode returns how the pathway was created.
func (p *Pathway) Mode() Mode { return p.mode }

// FinishPrediction reopens a predicted pathway for manual mutation.
// Called by the prediction orchestrator once the owning job is
// terminal.
func (p *Pathway) FinishPrediction() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predicting = false
}

// Root returns the root node.
func (p *Pathway) Root() (Node, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	root, ok := p.nodes[p.rootID]
	if !ok {
		return Node{}, fmt.Errorf("%w: pathway %s has no root", ErrRoot, p.id)
	}
	return *root, nil
}

// Nodes returns a snapshot of all nodes ordered by depth, then
// identifier.
func (p *Pathway) Nodes() []Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Edges returns a snapshot of all edges ordered by identifier.
func (p *Pathway) Edges() []Edge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Edge, 0, len(p.edges))
	for _, e := range p.edges {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeCount returns the number of nodes.
func (p *Pathway) NodeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nodes)
}

// EdgeCount returns the number of edges.
func (p *Pathway) EdgeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.edges)
}

// FindNodeByStructure returns the node holding a structurally equal
// molecule, if any.
func (p *Pathway) FindNodeByStructure(s chem.Structure) (Node, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n := p.lookupLocked(s); n != nil {
		return *n, true
	}
	return Node{}, false
}

func (p *Pathway) lookupLocked(s chem.Structure) *Node {
	for _, n := range p.nodes {
		if n.Structure.Equal(s) {
			return n
		}
	}
	return nil
}

// AddNode adds a structure as a new node. The first node becomes the
// root at depth 0; later nodes start unconnected until an edge links
// them. Rejected with ErrValidation on a predicted pathway whose job is
// not terminal, or when the structure duplicates an existing node.
func (p *Pathway) AddNode(s chem.Structure, name string) (Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.manualMutationAllowedLocked("add_node"); err != nil {
		return Node{}, err
	}
	if existing := p.lookupLocked(s); existing != nil {
		return Node{}, fmt.Errorf("%w: add_node: pathway %s already contains structure %s",
			ErrValidation, p.id, s.SMILES)
	}

	node := &Node{ID: uuid.NewString(), Structure: s, Name: name}
	p.nodes[node.ID] = node
	if p.rootID == "" {
		p.rootID = node.ID
	}
	return *node, nil
}

// AddEdge resolves the request's start and end structures against
// existing nodes (creating missing ones unless the pathway is
// root-node-only), verifies the edge keeps the graph acyclic and the
// root unique, inserts it and recomputes depths.
func (p *Pathway) AddEdge(req EdgeRequest) (Edge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.manualMutationAllowedLocked("add_edge"); err != nil {
		return Edge{}, err
	}

	reaction := req.Reaction
	if reaction == nil {
		if req.SMIRKS == "" {
			return Edge{}, fmt.Errorf("%w: add_edge: neither reaction nor SMIRKS given", ErrValidation)
		}
		parsed, err := chem.ParseReactionSMIRKS(req.SMIRKS, func() []chem.ReactionOption {
			if req.Multistep {
				return []chem.ReactionOption{chem.WithMultistep()}
			}
			return nil
		}()...)
		if err != nil {
			return Edge{}, fmt.Errorf("%w: add_edge: %v", ErrValidation, err)
		}
		reaction = parsed
	}

	starts := req.Starts
	if len(starts) == 0 {
		starts = reaction.Substrates
	}
	ends := req.Ends
	if len(ends) == 0 {
		ends = reaction.Products
	}
	if len(starts) == 0 || len(ends) == 0 {
		return Edge{}, fmt.Errorf("%w: add_edge: empty endpoint set", ErrValidation)
	}

	startIDs, created, err := p.resolveEndpointsLocked(starts)
	if err != nil {
		return Edge{}, fmt.Errorf("add_edge starts: %w", err)
	}
	endIDs, createdEnds, err := p.resolveEndpointsLocked(ends)
	if err != nil {
		return Edge{}, fmt.Errorf("add_edge ends: %w", err)
	}
	created = append(created, createdEnds...)

	for _, sid := range startIDs {
		for _, eid := range endIDs {
			if sid == eid {
				return Edge{}, fmt.Errorf("%w: add_edge: node %s on both sides", ErrValidation, sid)
			}
		}
	}
	for _, eid := range endIDs {
		if eid == p.rootID {
			return Edge{}, fmt.Errorf("%w: add_edge: edge would point into root %s", ErrRoot, p.rootID)
		}
	}
	if p.reachesLocked(endIDs, startIDs) {
		return Edge{}, fmt.Errorf("add_edge: %w", ErrCycle)
	}

	for _, n := range created {
		p.nodes[n.ID] = n
	}
	edge := &Edge{
		ID:        uuid.NewString(),
		StartIDs:  startIDs,
		EndIDs:    endIDs,
		Reaction:  *reaction,
		Multistep: req.Multistep || reaction.Multistep,
	}
	p.edges[edge.ID] = edge
	p.recomputeDepthsLocked()
	return edge.clone(), nil
}

// Merge unions a remote snapshot into the pathway, keyed by
// identifier. Nodes and edges already present are left untouched, so
// merging the same snapshot twice is a no-op. The union is validated on
// a scratch copy first; a snapshot that would break acyclicity or root
// uniqueness is rejected with ErrInvariant and the pathway is left
// unchanged.
func (p *Pathway) Merge(nodes []Node, edges []Edge) (addedNodes, addedEdges int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	scratchNodes := make(map[string]*Node, len(p.nodes)+len(nodes))
	for id, n := range p.nodes {
		copied := *n
		scratchNodes[id] = &copied
	}
	scratchEdges := make(map[string]*Edge, len(p.edges)+len(edges))
	for id, e := range p.edges {
		copied := e.clone()
		scratchEdges[id] = &copied
	}

	for _, n := range nodes {
		if n.ID == "" {
			return 0, 0, fmt.Errorf("%w: merge: snapshot node without identifier", ErrInvariant)
		}
		if _, ok := scratchNodes[n.ID]; ok {
			continue
		}
		copied := n
		scratchNodes[n.ID] = &copied
		addedNodes++
	}
	for _, e := range edges {
		if e.ID == "" {
			return 0, 0, fmt.Errorf("%w: merge: snapshot edge without identifier", ErrInvariant)
		}
		if _, ok := scratchEdges[e.ID]; ok {
			continue
		}
		if len(e.StartIDs) == 0 || len(e.EndIDs) == 0 {
			return 0, 0, fmt.Errorf("%w: merge: edge %s has an empty endpoint set", ErrInvariant, e.ID)
		}
		for _, id := range append(append([]string(nil), e.StartIDs...), e.EndIDs...) {
			if _, ok := scratchNodes[id]; !ok {
				return 0, 0, fmt.Errorf("%w: merge: edge %s references unknown node %s",
					ErrInvariant, e.ID, id)
			}
		}
		copied := e.clone()
		scratchEdges[e.ID] = &copied
		addedEdges++
	}

	rootID, err := validateShape(scratchNodes, scratchEdges)
	if err != nil {
		return 0, 0, fmt.Errorf("merge: %w", err)
	}

	p.nodes = scratchNodes
	p.edges = scratchEdges
	p.rootID = rootID
	p.recomputeDepthsLocked()
	return addedNodes, addedEdges, nil
}

// Validate checks all structural invariants, including stored depths.
func (p *Pathway) Validate() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, err := validateShape(p.nodes, p.edges); err != nil {
		return err
	}
	for id, depth := range computeDepths(p.rootID, p.nodes, p.edges) {
		if p.nodes[id].Depth != depth {
			return fmt.Errorf("%w: node %s stored depth %d, shortest path %d",
				ErrInvariant, id, p.nodes[id].Depth, depth)
		}
	}
	return nil
}

// manualMutationAllowedLocked gates AddNode/AddEdge: a predicted
// pathway is closed while its job is running.
func (p *Pathway) manualMutationAllowedLocked(op string) error {
	if p.mode == ModePredicted && p.predicting {
		return fmt.Errorf("%w: %s: pathway %s is owned by a running prediction",
			ErrValidation, op, p.id)
	}
	return nil
}

// resolveEndpointsLocked maps structures to node identifiers, returning
// freshly created (not yet inserted) nodes for structures the pathway
// does not hold. Creation is rejected in root-node-only pathways.
func (p *Pathway) resolveEndpointsLocked(structures []chem.Structure) ([]string, []*Node, error) {
	ids := make([]string, 0, len(structures))
	var created []*Node
	seen := map[string]struct{}{}
	for _, s := range structures {
		var id string
		if n := p.lookupLocked(s); n != nil {
			id = n.ID
		} else {
			found := false
			for _, c := range created {
				if c.Structure.Equal(s) {
					id, found = c.ID, true
					break
				}
			}
			if !found {
				if p.rootOnly {
					return nil, nil, fmt.Errorf("%w: structure %s has no node and pathway is root-node-only",
						ErrValidation, s.SMILES)
				}
				n := &Node{ID: uuid.NewString(), Structure: s, Name: s.Name}
				created = append(created, n)
				id = n.ID
			}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, created, nil
}

// reachesLocked reports whether any target is reachable from any
// source through the current edges.
func (p *Pathway) reachesLocked(sources, targets []string) bool {
	targetSet := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		targetSet[t] = struct{}{}
	}
	succ := successors(p.edges)

	queue := append([]string(nil), sources...)
	visited := map[string]struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, hit := targetSet[cur]; hit {
			return true
		}
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		queue = append(queue, succ[cur]...)
	}
	return false
}

// recomputeDepthsLocked rewrites every node's depth as the shortest
// directed path from the root, in O(V+E). Nodes not reachable from the
// root (manually added, not yet connected) stay at depth 0.
func (p *Pathway) recomputeDepthsLocked() {
	for id, depth := range computeDepths(p.rootID, p.nodes, p.edges) {
		p.nodes[id].Depth = depth
	}
}

// computeDepths runs a breadth-first relaxation from the root and
// returns the depth for every reachable node; unreachable nodes map to
// depth 0.
func computeDepths(rootID string, nodes map[string]*Node, edges map[string]*Edge) map[string]int {
	depths := make(map[string]int, len(nodes))
	for id := range nodes {
		depths[id] = 0
	}
	if rootID == "" {
		return depths
	}
	succ := successors(edges)

	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range succ[cur] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			depths[next] = depths[cur] + 1
			queue = append(queue, next)
		}
	}
	return depths
}

// successors builds the node adjacency induced by the edges: every
// start node points at every end node of its edge.
func successors(edges map[string]*Edge) map[string][]string {
	succ := map[string][]string{}
	for _, e := range edges {
		for _, sid := range e.StartIDs {
			succ[sid] = append(succ[sid], e.EndIDs...)
		}
	}
	return succ
}

// validateShape checks acyclicity, root uniqueness and incoming-edge
// coverage, returning the root identifier.
func validateShape(nodes map[string]*Node, edges map[string]*Edge) (string, error) {
	if len(nodes) == 0 {
		return "", nil
	}

	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		indegree[id] = 0
	}
	// Count start×end pairs so the totals line up with the successors
	// adjacency below.
	for _, e := range edges {
		for _, eid := range e.EndIDs {
			indegree[eid] += len(e.StartIDs)
		}
	}

	rootID := ""
	for id, deg := range indegree {
		if deg != 0 {
			continue
		}
		if rootID != "" {
			return "", fmt.Errorf("%w: nodes %s and %s both lack incoming edges", ErrRoot, rootID, id)
		}
		rootID = id
	}
	if rootID == "" {
		return "", fmt.Errorf("%w: no node without incoming edges", ErrCycle)
	}

	// Kahn's algorithm: all nodes must drain or a cycle remains.
	succ := successors(edges)
	pending := make(map[string]int, len(indegree))
	for id, deg := range indegree {
		pending[id] = deg
	}
	queue := []string{rootID}
	drained := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		drained++
		counted := map[string]int{}
		for _, next := range succ[cur] {
			counted[next]++
		}
		for next, n := range counted {
			pending[next] -= n
			if pending[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if drained != len(nodes) {
		return "", fmt.Errorf("%w: %d of %d nodes unreachable or cyclic",
			ErrCycle, len(nodes)-drained, len(nodes))
	}
	return rootID, nil
}
