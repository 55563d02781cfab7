// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"testing"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	p := graph.NewPathwayWithRoot("ethanol fate", chem.MustStructure("CCO"))
	_, err := p.AddEdge(graph.EdgeRequest{SMIRKS: "CCO>>CC=O"})
	require.NoError(t, err)
	_, err = p.AddEdge(graph.EdgeRequest{SMIRKS: "CC=O>>CC(=O)O"})
	require.NoError(t, err)

	exported := ExportPathway(p)
	require.Len(t, exported.Nodes, 3)
	require.Len(t, exported.Edges, 2)

	imported, err := ImportPathway(exported)
	require.NoError(t, err)
	require.NoError(t, imported.Validate())
	assert.Equal(t, p.ID(), imported.ID())
	assert.Equal(t, 3, imported.NodeCount())

	reExported := ExportPathway(imported)
	assert.Equal(t, exported.Nodes, reExported.Nodes)
	assert.Equal(t, exported.Edges, reExported.Edges)
}

func TestImportPathway_RejectsBrokenGraph(t *testing.T) {
	_, err := ImportPathway(PathwayJSON{
		ID:   "p-1",
		Name: "broken",
		Nodes: []NodeJSON{
			{ID: "n-1", SMILES: "CCO"},
			{ID: "n-2", SMILES: "CC=O"},
		},
		Edges: []EdgeJSON{{
			ID:       "e-1",
			StartIDs: []string{"n-1"},
			EndIDs:   []string{"n-missing"},
			SMIRKS:   "CCO>>CC=O",
		}},
	})
	assert.ErrorIs(t, err, graph.ErrInvariant)
}
