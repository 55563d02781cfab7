// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chem provides the molecular value types of the pathway core:
// Structure (an immutable SMILES encoding plus derived descriptors),
// Compound (a named group of structures with one default) and Reaction
// (substrate and product structures connected by a transformation).
//
// # Ownership Model
//
// Structure is a value type. Once created through NewStructure it must
// not be mutated; all containers in this module copy structures rather
// than aliasing them. Compound and Reaction validate their invariants
// at construction and reject later changes that would break them.
//
// # Encoding
//
// Structures are encoded as SMILES strings. The package derives the
// molecular formula, average mass and net charge from the encoding by
// parsing the SMILES atom by atom; it does not perform ring perception
// or stereochemistry beyond accepting the notation.
package chem

import "errors"

// Sentinel errors for molecular value construction.
var (
	// ErrInvalidStructure is returned when a SMILES encoding cannot be
	// parsed: unbalanced brackets, unknown elements, dangling ring
	// closures or illegal characters.
	ErrInvalidStructure = errors.New("invalid structure encoding")

	// ErrInvalidCompound is returned when a compound's structure set or
	// default-structure reference violates the ownership invariant.
	ErrInvalidCompound = errors.New("invalid compound")

	// ErrInvalidReaction is returned when a reaction's substrate or
	// product sets are empty or overlap.
	ErrInvalidReaction = errors.New("invalid reaction")
)
