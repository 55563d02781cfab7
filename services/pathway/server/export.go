// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"fmt"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/graph"
)

// PathwayJSON is the wire form of a pathway: nodes ordered by depth,
// edges by identifier.
type PathwayJSON struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Mode  string     `json:"mode"`
	Nodes []NodeJSON `json:"nodes"`
	Edges []EdgeJSON `json:"edges"`
}

// NodeJSON is the wire form of a node.
type NodeJSON struct {
	ID          string  `json:"id"`
	SMILES      string  `json:"smiles"`
	Name        string  `json:"name,omitempty"`
	Formula     string  `json:"formula"`
	AverageMass float64 `json:"averageMass"`
	Depth       int     `json:"depth"`
}

// EdgeJSON is the wire form of an edge.
type EdgeJSON struct {
	ID        string   `json:"id"`
	StartIDs  []string `json:"startNodeIds"`
	EndIDs    []string `json:"endNodeIds"`
	SMIRKS    string   `json:"smirks"`
	Multistep bool     `json:"multistep,omitempty"`
}

// ExportPathway lowers a pathway into its wire form. The CLI shares it
// for file export.
func ExportPathway(p *graph.Pathway) PathwayJSON {
	nodes := p.Nodes()
	edges := p.Edges()
	out := PathwayJSON{
		ID:    p.ID(),
		Name:  p.Name(),
		Mode:  p.Mode().String(),
		Nodes: make([]NodeJSON, len(nodes)),
		Edges: make([]EdgeJSON, len(edges)),
	}
	for i, n := range nodes {
		out.Nodes[i] = exportNode(n)
	}
	for i, e := range edges {
		out.Edges[i] = exportEdge(e)
	}
	return out
}

func exportNode(n graph.Node) NodeJSON {
	return NodeJSON{
		ID:          n.ID,
		SMILES:      n.Structure.SMILES,
		Name:        n.Name,
		Formula:     n.Structure.Formula,
		AverageMass: n.Structure.AverageMass,
		Depth:       n.Depth,
	}
}

func exportEdge(e graph.Edge) EdgeJSON {
	return EdgeJSON{
		ID:        e.ID,
		StartIDs:  e.StartIDs,
		EndIDs:    e.EndIDs,
		SMIRKS:    e.Reaction.SMIRKS,
		Multistep: e.Multistep,
	}
}

// ImportPathway rebuilds a pathway from its wire form, revalidating
// every structure, reaction and graph invariant on the way in.
func ImportPathway(in PathwayJSON) (*graph.Pathway, error) {
	nodes := make([]graph.Node, len(in.Nodes))
	for i, n := range in.Nodes {
		structure, err := chem.NewStructure(n.SMILES, chem.WithStructureName(n.Name))
		if err != nil {
			return nil, fmt.Errorf("import node %s: %w", n.ID, err)
		}
		nodes[i] = graph.Node{ID: n.ID, Structure: structure, Name: n.Name}
	}
	edges := make([]graph.Edge, len(in.Edges))
	for i, e := range in.Edges {
		var opts []chem.ReactionOption
		if e.Multistep {
			opts = append(opts, chem.WithMultistep())
		}
		reaction, err := chem.ParseReactionSMIRKS(e.SMIRKS, opts...)
		if err != nil {
			return nil, fmt.Errorf("import edge %s: %w", e.ID, err)
		}
		edges[i] = graph.Edge{
			ID:        e.ID,
			StartIDs:  e.StartIDs,
			EndIDs:    e.EndIDs,
			Reaction:  *reaction,
			Multistep: e.Multistep,
		}
	}
	p := graph.NewPathway(in.Name, graph.WithPathwayID(in.ID))
	if _, _, err := p.Merge(nodes, edges); err != nil {
		return nil, fmt.Errorf("import pathway %s: %w", in.ID, err)
	}
	return p, nil
}
