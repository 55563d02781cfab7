// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph implements the pathway graph: a DAG whose nodes wrap
// chemical structures at a position in the transformation tree and
// whose edges wrap the reactions connecting them.
//
// # Invariants
//
// A valid pathway satisfies, at every observable moment:
//
//   - the induced graph is acyclic;
//   - exactly one node, the root, has no incoming edge and sits at
//     depth 0;
//   - every other node has at least one incoming edge;
//   - depth(n) is the length of the shortest directed path from the
//     root to n.
//
// Mutations either commit with all invariants intact or fail without
// touching the pathway; snapshot merges in particular are atomic.
//
// # Thread Safety
//
// Pathway is safe for concurrent use. Mutations serialize behind a
// write lock so readers never observe a partially applied merge.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for pathway operations.
var (
	// ErrValidation is returned for rejected mutations that are caller
	// mistakes: adding nodes to a pathway while its prediction is
	// running, duplicate structures, or unresolvable edge endpoints.
	ErrValidation = errors.New("pathway validation failed")

	// ErrInvariant is returned when an operation would leave the graph
	// violating a structural invariant. It signals a bug locally or in
	// the remote snapshot contract and is never silently dropped.
	ErrInvariant = errors.New("pathway invariant violated")
)

// Wrapped invariant violations, matchable via errors.Is against both
// the specific error and ErrInvariant.
var (
	// ErrCycle is returned when an edge insertion or merge would make
	// the graph cyclic.
	ErrCycle = fmt.Errorf("%w: edge would create a cycle", ErrInvariant)

	// ErrRoot is returned when a mutation would leave the graph without
	// a unique root.
	ErrRoot = fmt.Errorf("%w: root uniqueness violated", ErrInvariant)
)
