// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chem

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ReactionSeparator splits substrates from products in a concrete
// reaction SMIRKS such as "CCO>>CC=O".
const ReactionSeparator = ">>"

// ECNumber annotates a reaction with an Enzyme Commission number.
type ECNumber struct {
	Number string
	Name   string
}

// Reaction connects non-empty, disjoint substrate and product structure
// sets, optionally annotated with the rule that predicts it.
type Reaction struct {
	// ID identifies the reaction.
	ID string

	// Name is the display name.
	Name string

	// SMIRKS is the concrete reaction encoding
	// "substrates>>products" with dot-separated components.
	SMIRKS string

	// Substrates are the consumed structures. Never empty.
	Substrates []Structure

	// Products are the produced structures. Never empty and disjoint
	// from Substrates.
	Products []Structure

	// RuleID references the rule explaining the reaction, if any.
	RuleID string

	// Multistep marks a reaction reported as one step but known to
	// proceed through unobserved intermediates.
	Multistep bool

	// ECNumbers are enzyme classification annotations.
	ECNumbers []ECNumber
}

// ReactionOption customizes NewReaction.
type ReactionOption func(*Reaction)

// WithReactionID keeps a caller-supplied identifier.
func WithReactionID(id string) ReactionOption {
	return func(r *Reaction) { r.ID = id }
}

// WithReactionName sets the display name.
func WithReactionName(name string) ReactionOption {
	return func(r *Reaction) { r.Name = name }
}

// WithRule references the rule explaining the reaction.
func WithRule(ruleID string) ReactionOption {
	return func(r *Reaction) { r.RuleID = ruleID }
}

// WithMultistep marks the reaction as multistep.
func WithMultistep() ReactionOption {
	return func(r *Reaction) { r.Multistep = true }
}

// WithECNumbers attaches enzyme classification annotations.
func WithECNumbers(numbers ...ECNumber) ReactionOption {
	return func(r *Reaction) { r.ECNumbers = append(r.ECNumbers, numbers...) }
}

// NewReaction builds a reaction from explicit substrate and product
// structures. Both sets must be non-empty and must not share a
// structure; violations return ErrInvalidReaction.
func NewReaction(substrates, products []Structure, opts ...ReactionOption) (*Reaction, error) {
	if len(substrates) == 0 {
		return nil, fmt.Errorf("%w: no substrates", ErrInvalidReaction)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: no products", ErrInvalidReaction)
	}
	for _, sub := range substrates {
		for _, prod := range products {
			if sub.Equal(prod) {
				return nil, fmt.Errorf("%w: structure %s is both substrate and product",
					ErrInvalidReaction, sub.SMILES)
			}
		}
	}

	r := &Reaction{
		ID:         uuid.NewString(),
		SMIRKS:     renderSMIRKS(substrates, products),
		Substrates: dedupeStructures(substrates),
		Products:   dedupeStructures(products),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ParseReactionSMIRKS builds a reaction from a concrete reaction
// SMIRKS: dot-separated substrate SMILES, ">>", dot-separated product
// SMILES. Every component must be a valid structure encoding.
func ParseReactionSMIRKS(smirks string, opts ...ReactionOption) (*Reaction, error) {
	parts := strings.Split(smirks, ReactionSeparator)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: SMIRKS %q must contain exactly one %q",
			ErrInvalidReaction, smirks, ReactionSeparator)
	}

	substrates, err := parseComponents(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: substrates of %q: %v", ErrInvalidReaction, smirks, err)
	}
	products, err := parseComponents(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: products of %q: %v", ErrInvalidReaction, smirks, err)
	}

	return NewReaction(substrates, products, opts...)
}

// parseComponents splits a dot-separated SMILES list into structures.
func parseComponents(list string) ([]Structure, error) {
	fields := strings.Split(list, ".")
	out := make([]Structure, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			return nil, fmt.Errorf("empty component")
		}
		s, err := NewStructure(f)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no components")
	}
	return out, nil
}

// renderSMIRKS serializes substrate and product encodings back into the
// canonical "a.b>>c" form.
func renderSMIRKS(substrates, products []Structure) string {
	left := make([]string, len(substrates))
	for i, s := range substrates {
		left[i] = s.SMILES
	}
	right := make([]string, len(products))
	for i, s := range products {
		right[i] = s.SMILES
	}
	return strings.Join(left, ".") + ReactionSeparator + strings.Join(right, ".")
}
