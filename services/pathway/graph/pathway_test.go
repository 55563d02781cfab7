// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parentSMILES = "C1=CC=C(C=C1)C(C2=CC=C(C=C2)Cl)N3CCNCC3"

func smirks(from, to string) string {
	return from + chem.ReactionSeparator + to
}

func depthsBySMILES(p *Pathway) map[string]int {
	out := map[string]int{}
	for _, n := range p.Nodes() {
		out[n.Structure.SMILES] = n.Depth
	}
	return out
}

func TestPathway_ManualBuild(t *testing.T) {
	root := chem.MustStructure(parentSMILES)
	tp1 := "C1=CC=C(C=C1)C(O)C2=CC=C(C=C2)Cl"
	tp2 := "C1CNCCN1"

	p := NewPathwayWithRoot("cetirizine degradation", root)

	e1, err := p.AddEdge(EdgeRequest{SMIRKS: smirks(parentSMILES, tp1)})
	require.NoError(t, err)
	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks(parentSMILES, tp2)})
	require.NoError(t, err)

	require.NoError(t, p.Validate())
	assert.Equal(t, 3, p.NodeCount())
	assert.Equal(t, 2, p.EdgeCount())
	assert.Len(t, e1.StartIDs, 1)
	assert.Len(t, e1.EndIDs, 1)

	got, err := p.Root()
	require.NoError(t, err)
	assert.True(t, got.Structure.Equal(root))
	assert.Equal(t, 0, got.Depth)

	want := map[string]int{
		chem.MustStructure(parentSMILES).SMILES: 0,
		chem.MustStructure(tp1).SMILES:          1,
		chem.MustStructure(tp2).SMILES:          1,
	}
	assert.Equal(t, want, depthsBySMILES(p))
}

func TestPathway_AddNodeRejectsDuplicateStructure(t *testing.T) {
	p := NewPathway("dups")
	_, err := p.AddNode(chem.MustStructure("CCO"), "ethanol")
	require.NoError(t, err)

	_, err = p.AddNode(chem.MustStructure("CCO"), "again")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, p.NodeCount())
}

func TestPathway_FirstNodeBecomesRoot(t *testing.T) {
	p := NewPathway("implicit root")
	n, err := p.AddNode(chem.MustStructure("CCO"), "ethanol")
	require.NoError(t, err)

	root, err := p.Root()
	require.NoError(t, err)
	assert.Equal(t, n.ID, root.ID)
}

func TestPathway_DepthIsShortestPath(t *testing.T) {
	// Diamond plus a long detour: depth must follow the shortest route
	// from the root, not the insertion order.
	p := NewPathwayWithRoot("diamond", chem.MustStructure("C"))

	for _, s := range []string{
		smirks("C", "CC"),
		smirks("C", "CO"),
		smirks("CC", "CCC"),
		smirks("CO", "CCC"),
		smirks("CCC", "CCCC"),
	} {
		_, err := p.AddEdge(EdgeRequest{SMIRKS: s})
		require.NoError(t, err)
	}

	depths := depthsBySMILES(p)
	assert.Equal(t, map[string]int{
		"C": 0, "CC": 1, "CO": 1, "CCC": 2, "CCCC": 3,
	}, depths)

	// A direct shortcut from the root pulls the whole tail closer.
	_, err := p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CCC")})
	require.NoError(t, err)

	depths = depthsBySMILES(p)
	assert.Equal(t, 1, depths["CCC"])
	assert.Equal(t, 2, depths["CCCC"])
	require.NoError(t, p.Validate())
}

func TestPathway_AddEdgeRejectsCycle(t *testing.T) {
	p := NewPathwayWithRoot("cycle", chem.MustStructure("C"))

	_, err := p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	require.NoError(t, err)
	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("CC", "CCC")})
	require.NoError(t, err)

	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("CCC", "CC")})
	assert.ErrorIs(t, err, ErrCycle)
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, 2, p.EdgeCount())
	require.NoError(t, p.Validate())
}

func TestPathway_AddEdgeRejectsEdgeIntoRoot(t *testing.T) {
	p := NewPathwayWithRoot("root guard", chem.MustStructure("C"))
	_, err := p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	require.NoError(t, err)

	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("CC", "C")})
	assert.ErrorIs(t, err, ErrRoot)
}

func TestPathway_AddEdgeRejectsSharedEndpoint(t *testing.T) {
	p := NewPathwayWithRoot("loop", chem.MustStructure("C"))

	_, err := p.AddEdge(EdgeRequest{SMIRKS: smirks("CC", "CC")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPathway_RootNodeOnly(t *testing.T) {
	p := NewPathwayWithRoot("root only", chem.MustStructure("C"), WithRootNodeOnly())

	_, err := p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = p.AddNode(chem.MustStructure("CC"), "ethane")
	require.NoError(t, err)
	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	require.NoError(t, err)
}

func TestPathway_PredictedGatesManualMutation(t *testing.T) {
	p := NewPredictedPathway("predicted", chem.MustStructure("C"))

	_, err := p.AddNode(chem.MustStructure("CC"), "ethane")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	assert.ErrorIs(t, err, ErrValidation)

	p.FinishPrediction()

	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	require.NoError(t, err)
}

func snapshotFixture(t *testing.T, rootID string) ([]Node, []Edge) {
	t.Helper()
	n1 := Node{ID: "remote-n1", Structure: chem.MustStructure("CC")}
	n2 := Node{ID: "remote-n2", Structure: chem.MustStructure("CCO")}
	reaction, err := chem.ParseReactionSMIRKS(smirks("C", "CC"))
	require.NoError(t, err)
	e1 := Edge{ID: "remote-e1", StartIDs: []string{rootID}, EndIDs: []string{"remote-n1"}, Reaction: *reaction}
	e2 := Edge{ID: "remote-e2", StartIDs: []string{"remote-n1"}, EndIDs: []string{"remote-n2"}, Reaction: *reaction}
	return []Node{n1, n2}, []Edge{e1, e2}
}

func TestPathway_MergeIsIdempotent(t *testing.T) {
	p := NewPredictedPathway("merge", chem.MustStructure("C"))
	root, err := p.Root()
	require.NoError(t, err)
	nodes, edges := snapshotFixture(t, root.ID)

	addedN, addedE, err := p.Merge(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, 2, addedN)
	assert.Equal(t, 2, addedE)
	require.NoError(t, p.Validate())

	addedN, addedE, err = p.Merge(nodes, edges)
	require.NoError(t, err)
	assert.Zero(t, addedN)
	assert.Zero(t, addedE)
	assert.Equal(t, 3, p.NodeCount())
	assert.Equal(t, 2, p.EdgeCount())

	assert.Equal(t, map[string]int{"C": 0, "CC": 1, "CCO": 2}, depthsBySMILES(p))
}

func TestPathway_MergeRejectsDanglingEdge(t *testing.T) {
	p := NewPredictedPathway("dangling", chem.MustStructure("C"))
	root, err := p.Root()
	require.NoError(t, err)
	nodes, edges := snapshotFixture(t, root.ID)
	edges[1].EndIDs = []string{"remote-missing"}

	_, _, err = p.Merge(nodes, edges)
	assert.ErrorIs(t, err, ErrInvariant)
	// Rejected snapshots leave the pathway untouched.
	assert.Equal(t, 1, p.NodeCount())
	assert.Equal(t, 0, p.EdgeCount())
}

func TestPathway_MergeRejectsCyclicSnapshot(t *testing.T) {
	p := NewPredictedPathway("cyclic", chem.MustStructure("C"))
	root, err := p.Root()
	require.NoError(t, err)
	nodes, edges := snapshotFixture(t, root.ID)
	reaction, err := chem.ParseReactionSMIRKS(smirks("CCO", "CC"))
	require.NoError(t, err)
	edges = append(edges, Edge{
		ID:       "remote-e3",
		StartIDs: []string{"remote-n2"},
		EndIDs:   []string{"remote-n1"},
		Reaction: *reaction,
	})

	_, _, err = p.Merge(nodes, edges)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, 1, p.NodeCount())
}

func TestPathway_ValidateFlagsOrphanNode(t *testing.T) {
	p := NewPathwayWithRoot("orphan", chem.MustStructure("C"))
	_, err := p.AddNode(chem.MustStructure("CCO"), "ethanol")
	require.NoError(t, err)

	// Two nodes without incoming edges: the root is no longer unique.
	assert.ErrorIs(t, p.Validate(), ErrRoot)

	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CCO")})
	require.NoError(t, err)
	assert.NoError(t, p.Validate())
}

func TestPathway_DepthMatchesShortestPathOnRandomDAGs(t *testing.T) {
	reaction, err := chem.ParseReactionSMIRKS(smirks("C", "CC"))
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		p := NewPredictedPathway(fmt.Sprintf("random-%d", trial), chem.MustStructure("C"))
		root, err := p.Root()
		require.NoError(t, err)

		// Layered construction: every edge runs from a lower index to a
		// higher one, so the snapshot is acyclic and every non-root node
		// has an incoming edge.
		n := 2 + rng.Intn(14)
		ids := []string{root.ID}
		var nodes []Node
		var edges []Edge
		for i := 1; i <= n; i++ {
			id := fmt.Sprintf("n-%d", i)
			nodes = append(nodes, Node{ID: id, Structure: chem.MustStructure(strings.Repeat("C", i+1))})
			preds := []int{rng.Intn(i)}
			if extra := rng.Intn(i); i > 1 && extra != preds[0] && rng.Intn(2) == 0 {
				preds = append(preds, extra)
			}
			for _, j := range preds {
				edges = append(edges, Edge{
					ID:       fmt.Sprintf("e-%d-%d", j, i),
					StartIDs: []string{ids[j]},
					EndIDs:   []string{id},
					Reaction: *reaction,
				})
			}
			ids = append(ids, id)
		}

		_, _, err = p.Merge(nodes, edges)
		require.NoError(t, err)
		require.NoError(t, p.Validate())

		// Reference shortest-path depths computed independently.
		adj := map[string][]string{}
		for _, e := range p.Edges() {
			for _, start := range e.StartIDs {
				for _, end := range e.EndIDs {
					adj[start] = append(adj[start], end)
				}
			}
		}
		want := map[string]int{root.ID: 0}
		queue := []string{root.ID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adj[cur] {
				if _, seen := want[next]; seen {
					continue
				}
				want[next] = want[cur] + 1
				queue = append(queue, next)
			}
		}
		for _, node := range p.Nodes() {
			assert.Equal(t, want[node.ID], node.Depth, "trial %d node %s", trial, node.ID)
		}
	}
}

func TestPathway_NodesOrderedByDepth(t *testing.T) {
	p := NewPathwayWithRoot("order", chem.MustStructure("C"))
	_, err := p.AddEdge(EdgeRequest{SMIRKS: smirks("C", "CC")})
	require.NoError(t, err)
	_, err = p.AddEdge(EdgeRequest{SMIRKS: smirks("CC", "CCC")})
	require.NoError(t, err)

	nodes := p.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{nodes[0].Depth, nodes[1].Depth, nodes[2].Depth})
}
