// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chem

import (
	"fmt"

	"github.com/google/uuid"
)

// Structure is an immutable molecular structure: a canonical SMILES
// encoding plus descriptors derived from it at construction time.
//
// Structures are value types. Construct them with NewStructure and do
// not mutate the fields afterwards; containers in this module copy
// structures instead of sharing pointers.
type Structure struct {
	// ID identifies the structure. Locally created structures get a
	// fresh UUID; structures materialized from a remote object keep the
	// remote identifier.
	ID string

	// SMILES is the canonical encoding. Two structures are the same
	// molecule exactly when their SMILES fields are equal.
	SMILES string

	// Name is an optional display name.
	Name string

	// Formula is the molecular formula in Hill order, e.g. "C10H16O".
	Formula string

	// AverageMass is the molecular mass in g/mol from standard average
	// atomic masses.
	AverageMass float64

	// Charge is the net formal charge of the encoding.
	Charge int

	// ExternalReferences maps an external database name (e.g.
	// "pubchem") to reference identifiers in that database.
	ExternalReferences map[string][]string

	// IsDefault marks the default structure of its owning compound.
	IsDefault bool
}

// StructureOption customizes NewStructure.
type StructureOption func(*Structure)

// WithStructureID keeps a caller-supplied identifier (typically the
// identifier of a remote object) instead of minting a UUID.
func WithStructureID(id string) StructureOption {
	return func(s *Structure) { s.ID = id }
}

// WithStructureName sets the display name.
func WithStructureName(name string) StructureOption {
	return func(s *Structure) { s.Name = name }
}

// WithDefault marks the structure as its compound's default.
func WithDefault() StructureOption {
	return func(s *Structure) { s.IsDefault = true }
}

// WithExternalReference appends reference identifiers for an external
// database.
func WithExternalReference(database string, refs ...string) StructureOption {
	return func(s *Structure) {
		if s.ExternalReferences == nil {
			s.ExternalReferences = map[string][]string{}
		}
		s.ExternalReferences[database] = append(s.ExternalReferences[database], refs...)
	}
}

// NewStructure validates and canonicalizes a SMILES encoding and
// derives formula, mass and charge from it. A malformed encoding
// returns ErrInvalidStructure.
func NewStructure(smiles string, opts ...StructureOption) (Structure, error) {
	canonical, err := CanonicalSMILES(smiles)
	if err != nil {
		return Structure{}, err
	}
	mol, err := parseSMILES(canonical)
	if err != nil {
		return Structure{}, err
	}

	counts := mol.elementCounts()
	s := Structure{
		ID:          uuid.NewString(),
		SMILES:      canonical,
		Formula:     hillFormula(counts),
		AverageMass: averageMass(counts),
		Charge:      mol.charge,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}

// MustStructure is NewStructure for literals known to be valid. It
// panics on error and exists for tests and examples.
func MustStructure(smiles string, opts ...StructureOption) Structure {
	s, err := NewStructure(smiles, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Equal reports whether two structures encode the same molecule.
// Identity of the molecule is canonical-SMILES equality; identifiers
// and names do not participate.
func (s Structure) Equal(other Structure) bool {
	return s.SMILES == other.SMILES
}

// String renders the structure for logs and error messages.
func (s Structure) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.SMILES)
	}
	return s.SMILES
}

// dedupeStructures removes canonical-SMILES duplicates, preserving the
// first occurrence order.
func dedupeStructures(in []Structure) []Structure {
	seen := make(map[string]struct{}, len(in))
	out := make([]Structure, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s.SMILES]; ok {
			continue
		}
		seen[s.SMILES] = struct{}{}
		out = append(out, s)
	}
	return out
}
