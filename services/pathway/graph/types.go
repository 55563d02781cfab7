// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"github.com/envitrace/envitrace/services/pathway/chem"
)

// Mode records how a pathway came into being.
type Mode int

const (
	// ModeManual pathways are built by explicit AddNode/AddEdge calls.
	ModeManual Mode = iota

	// ModePredicted pathways are materialized by merging remote
	// prediction snapshots. Manual mutation is rejected while the
	// prediction is still running.
	ModePredicted
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModePredicted:
		return "predicted"
	default:
		return "unknown"
	}
}

// Node is a structure at a position in the transformation tree. Nodes
// are owned by exactly one pathway; the pathway hands out copies.
type Node struct {
	// ID identifies the node inside its pathway.
	ID string

	// Structure is the molecule at this position.
	Structure chem.Structure

	// Name is an optional display name.
	Name string

	// Depth is the length of the shortest directed path from the root.
	// The root sits at depth 0.
	Depth int

	// Confidence is the prediction confidence score, zero for manual
	// nodes.
	Confidence float64
}

// Edge is a reaction connecting start nodes to end nodes inside one
// pathway. The start and end sets are non-empty and disjoint.
type Edge struct {
	// ID identifies the edge inside its pathway.
	ID string

	// StartIDs are the substrate-side node identifiers.
	StartIDs []string

	// EndIDs are the product-side node identifiers.
	EndIDs []string

	// Reaction is the transformation this edge represents.
	Reaction chem.Reaction

	// Multistep marks an edge known to summarize several reaction
	// steps.
	Multistep bool
}

// clone deep-copies an edge so callers cannot mutate pathway state
// through returned values.
func (e Edge) clone() Edge {
	e.StartIDs = append([]string(nil), e.StartIDs...)
	e.EndIDs = append([]string(nil), e.EndIDs...)
	return e
}

// EdgeRequest describes an edge to add to a pathway. Either SMIRKS or
// Reaction must be set; Starts and Ends default to the reaction's
// substrate and product structures.
type EdgeRequest struct {
	// SMIRKS is a concrete reaction encoding; parsed when Reaction is
	// nil.
	SMIRKS string

	// Reaction is the explicit reaction, taking precedence over SMIRKS.
	Reaction *chem.Reaction

	// Starts overrides the substrate-side structures used to resolve
	// start nodes.
	Starts []chem.Structure

	// Ends overrides the product-side structures used to resolve end
	// nodes.
	Ends []chem.Structure

	// Multistep marks the edge as multistep.
	Multistep bool
}
