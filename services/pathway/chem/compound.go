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

// Compound is a named chemical entity owning one or more structures,
// exactly one of which is the default. Structure order is preserved for
// display; it carries no semantics.
type Compound struct {
	// ID identifies the compound.
	ID string

	// Name is the display name.
	Name string

	structures []Structure
	defaultID  string
}

// CompoundOption customizes NewCompound.
type CompoundOption func(*Compound)

// WithCompoundID keeps a caller-supplied identifier.
func WithCompoundID(id string) CompoundOption {
	return func(c *Compound) { c.ID = id }
}

// NewCompound builds a compound from its structures. The default is the
// structure flagged IsDefault, or the first structure when none is
// flagged. More than one flagged default, an empty structure set or
// duplicate member structures return ErrInvalidCompound.
func NewCompound(name string, structures []Structure, opts ...CompoundOption) (*Compound, error) {
	if len(structures) == 0 {
		return nil, fmt.Errorf("%w: compound %q has no structures", ErrInvalidCompound, name)
	}
	if len(dedupeStructures(structures)) != len(structures) {
		return nil, fmt.Errorf("%w: compound %q has duplicate structures", ErrInvalidCompound, name)
	}

	defaultID := ""
	for _, s := range structures {
		if !s.IsDefault {
			continue
		}
		if defaultID != "" {
			return nil, fmt.Errorf("%w: compound %q has more than one default structure", ErrInvalidCompound, name)
		}
		defaultID = s.ID
	}

	owned := make([]Structure, len(structures))
	copy(owned, structures)
	if defaultID == "" {
		owned[0].IsDefault = true
		defaultID = owned[0].ID
	}

	c := &Compound{
		ID:         uuid.NewString(),
		Name:       name,
		structures: owned,
		defaultID:  defaultID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Structures returns the owned structures in insertion order.
func (c *Compound) Structures() []Structure {
	out := make([]Structure, len(c.structures))
	copy(out, c.structures)
	return out
}

// DefaultStructure returns the compound's default structure.
func (c *Compound) DefaultStructure() Structure {
	for _, s := range c.structures {
		if s.ID == c.defaultID {
			return s
		}
	}
	// Unreachable: the constructor guarantees the default is owned.
	return c.structures[0]
}

// AddStructure appends a structure to the compound. A duplicate of an
// owned structure is rejected. When makeDefault is set the new
// structure replaces the current default.
func (c *Compound) AddStructure(s Structure, makeDefault bool) error {
	for _, owned := range c.structures {
		if owned.Equal(s) {
			return fmt.Errorf("%w: compound %q already owns structure %s", ErrInvalidCompound, c.Name, s.SMILES)
		}
	}
	s.IsDefault = makeDefault
	if makeDefault {
		for i := range c.structures {
			c.structures[i].IsDefault = false
		}
		c.defaultID = s.ID
	}
	c.structures = append(c.structures, s)
	return nil
}
