// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package predict

import (
	"fmt"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/graph"
)

// RemoteNode is a node as reported by the remote prediction engine.
// Pseudo nodes are layout artifacts of the engine and carry no chemistry.
type RemoteNode struct {
	ID     string `json:"id"`
	SMILES string `json:"smiles"`
	Name   string `json:"name,omitempty"`
	Depth  int    `json:"depth"`
	Pseudo bool   `json:"pseudo,omitempty"`
}

// RemoteEdge is an edge as reported by the remote prediction engine.
type RemoteEdge struct {
	ID        string   `json:"id"`
	StartIDs  []string `json:"startNodeIds"`
	EndIDs    []string `json:"endNodeIds"`
	SMIRKS    string   `json:"smirks"`
	RuleID    string   `json:"ruleId,omitempty"`
	Multistep bool     `json:"multistep,omitempty"`
	Pseudo    bool     `json:"pseudo,omitempty"`
}

// RemoteSnapshot is the state of a prediction job at one poll: the
// completed marker plus everything the engine has produced so far.
// Snapshots are cumulative; each one is a superset of the previous.
type RemoteSnapshot struct {
	Completed string       `json:"completed"`
	Revision  int          `json:"revision"`
	Nodes     []RemoteNode `json:"nodes"`
	Edges     []RemoteEdge `json:"edges"`
}

// convert lowers a remote snapshot into graph nodes and edges, dropping
// pseudo nodes, pseudo edges and edges that touch pseudo nodes. Every
// kept element is validated before any of it reaches a pathway, so a
// malformed snapshot cannot be half-applied.
func (s RemoteSnapshot) convert() ([]graph.Node, []graph.Edge, error) {
	pseudo := map[string]struct{}{}
	for _, n := range s.Nodes {
		if n.Pseudo {
			pseudo[n.ID] = struct{}{}
		}
	}

	nodes := make([]graph.Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Pseudo {
			continue
		}
		structure, err := chem.NewStructure(n.SMILES, chem.WithStructureName(n.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: snapshot node %s: %v", graph.ErrInvariant, n.ID, err)
		}
		nodes = append(nodes, graph.Node{ID: n.ID, Structure: structure, Name: n.Name, Depth: n.Depth})
	}

	edges := make([]graph.Edge, 0, len(s.Edges))
	for _, e := range s.Edges {
		if e.Pseudo || touchesPseudo(e, pseudo) {
			continue
		}
		opts := []chem.ReactionOption{chem.WithReactionID(e.ID)}
		if e.RuleID != "" {
			opts = append(opts, chem.WithRule(e.RuleID))
		}
		if e.Multistep {
			opts = append(opts, chem.WithMultistep())
		}
		reaction, err := chem.ParseReactionSMIRKS(e.SMIRKS, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: snapshot edge %s: %v", graph.ErrInvariant, e.ID, err)
		}
		edges = append(edges, graph.Edge{
			ID:        e.ID,
			StartIDs:  append([]string(nil), e.StartIDs...),
			EndIDs:    append([]string(nil), e.EndIDs...),
			Reaction:  *reaction,
			Multistep: e.Multistep,
		})
	}
	return nodes, edges, nil
}

func touchesPseudo(e RemoteEdge, pseudo map[string]struct{}) bool {
	for _, id := range e.StartIDs {
		if _, ok := pseudo[id]; ok {
			return true
		}
	}
	for _, id := range e.EndIDs {
		if _, ok := pseudo[id]; ok {
			return true
		}
	}
	return false
}
