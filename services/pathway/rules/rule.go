// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rules implements the biotransformation rule hierarchy: a
// tagged union of simple rules (one site pattern) and sequential or
// parallel composites over them. Every rule answers two questions about
// a structure: does the rule match it, and which product structures
// does applying the rule yield.
//
// # Pattern Semantics
//
// A simple rule is written "lhs>>rhs". The rule matches a structure
// when lhs occurs in its canonical SMILES; each distinct occurrence is
// one reaction site, and applying the rule instantiates rhs at every
// site independently. Products are deduplicated by canonical-structure
// equality and returned sorted by encoding so callers see a stable
// order; the order carries no ranking.
//
// # Composition
//
//   - Sequential(r1..rn) models a multi-step mechanism reported as one
//     rule: a pipeline where stage i consumes the survivors of stage
//     i-1 and drops non-matching intermediates. Matching is gated by
//     the first stage only.
//   - Parallel(r1..rn) models independent alternative mechanisms on the
//     same functional group: the union of all matching children.
//
// Applying any rule to a non-matching structure returns an empty slice;
// it is a defined outcome, never an error.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/google/uuid"
)

// Kind discriminates the rule variants.
type Kind int

const (
	// KindSimple is a single site-pattern transformation.
	KindSimple Kind = iota

	// KindSequential is a pipeline of child rules.
	KindSequential

	// KindParallel is a set of independent alternative child rules.
	KindParallel
)

// String returns the wire name of the kind, matching the identifiers
// used by the remote object model.
func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple-rule"
	case KindSequential:
		return "sequential-rule"
	case KindParallel:
		return "parallel-rule"
	default:
		return "unknown"
	}
}

// Rule is one node of the rule hierarchy. Exactly one of the variant
// payloads is populated, according to Kind: simple rules carry a
// pattern, composites carry children.
//
// Rules are immutable after construction and safe for concurrent use.
type Rule struct {
	// ID identifies the rule.
	ID string

	// Name is the display name.
	Name string

	// Kind selects the variant.
	Kind Kind

	pattern  sitePattern
	children []*Rule
}

// sitePattern is the parsed "lhs>>rhs" payload of a simple rule.
type sitePattern struct {
	lhs string
	rhs string
}

// RuleOption customizes rule construction.
type RuleOption func(*Rule)

// WithRuleID keeps a caller-supplied identifier (typically a remote
// object identifier) instead of minting a UUID.
func WithRuleID(id string) RuleOption {
	return func(r *Rule) { r.ID = id }
}

// NewSimpleRule parses and validates a "lhs>>rhs" pattern. A pattern
// without exactly one separator, with an empty side, or with characters
// outside the SMILES alphabet fails fast with ErrInvalidPattern.
func NewSimpleRule(name, pattern string, opts ...RuleOption) (*Rule, error) {
	parts := strings.Split(pattern, chem.ReactionSeparator)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: pattern %q must contain exactly one %q",
			ErrInvalidPattern, pattern, chem.ReactionSeparator)
	}
	lhs := strings.TrimSpace(parts[0])
	rhs := strings.TrimSpace(parts[1])
	if lhs == "" {
		return nil, fmt.Errorf("%w: pattern %q has an empty substrate side", ErrInvalidPattern, pattern)
	}
	if rhs == "" {
		return nil, fmt.Errorf("%w: pattern %q has an empty product side", ErrInvalidPattern, pattern)
	}
	if err := validateFragment(lhs); err != nil {
		return nil, fmt.Errorf("%w: substrate side of %q: %v", ErrInvalidPattern, pattern, err)
	}
	if err := validateFragment(rhs); err != nil {
		return nil, fmt.Errorf("%w: product side of %q: %v", ErrInvalidPattern, pattern, err)
	}

	r := &Rule{
		ID:      uuid.NewString(),
		Name:    name,
		Kind:    KindSimple,
		pattern: sitePattern{lhs: lhs, rhs: rhs},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewSequentialRule composes child rules into a pipeline. At least one
// child is required and no child may be nil.
func NewSequentialRule(name string, children []*Rule, opts ...RuleOption) (*Rule, error) {
	if err := validateChildren(children); err != nil {
		return nil, err
	}
	r := &Rule{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     KindSequential,
		children: append([]*Rule(nil), children...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewParallelRule composes child rules into a set of independent
// alternatives. At least one child is required and no child may be nil.
func NewParallelRule(name string, children []*Rule, opts ...RuleOption) (*Rule, error) {
	if err := validateChildren(children); err != nil {
		return nil, err
	}
	r := &Rule{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     KindParallel,
		children: append([]*Rule(nil), children...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func validateChildren(children []*Rule) error {
	if len(children) == 0 {
		return fmt.Errorf("%w: composite rule needs at least one child", ErrInvalidPattern)
	}
	for i, c := range children {
		if c == nil {
			return fmt.Errorf("%w: composite child %d is nil", ErrInvalidPattern, i)
		}
	}
	return nil
}

// Children returns the composite's child rules, or nil for a simple
// rule. The returned slice is a copy.
func (r *Rule) Children() []*Rule {
	if len(r.children) == 0 {
		return nil
	}
	return append([]*Rule(nil), r.children...)
}

// Pattern returns the "lhs>>rhs" pattern of a simple rule, or "" for a
// composite.
func (r *Rule) Pattern() string {
	if r.Kind != KindSimple {
		return ""
	}
	return r.pattern.lhs + chem.ReactionSeparator + r.pattern.rhs
}

// Matches reports whether the rule applies to s.
//
// Simple rules match when their site pattern occurs in s. A sequential
// composite is gated by its first stage only; a parallel composite
// matches when any child matches.
func (r *Rule) Matches(s chem.Structure) bool {
	switch r.Kind {
	case KindSimple:
		return strings.Contains(s.SMILES, r.pattern.lhs)
	case KindSequential:
		return r.children[0].Matches(s)
	case KindParallel:
		for _, c := range r.children {
			if c.Matches(s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Apply transforms s into its product structures. A non-matching
// structure yields an empty result, never an error.
func (r *Rule) Apply(s chem.Structure) []chem.Structure {
	switch r.Kind {
	case KindSimple:
		return r.applySimple(s)
	case KindSequential:
		return r.applySequential(s)
	case KindParallel:
		return r.applyParallel(s)
	default:
		return nil
	}
}

// applySimple instantiates the pattern at every occurrence site of lhs
// in s, one product per site. Sites whose instantiation is not a valid
// structure encoding (ring bonds cut mid-pattern) contribute nothing.
func (r *Rule) applySimple(s chem.Structure) []chem.Structure {
	encoding := s.SMILES
	lhs, rhs := r.pattern.lhs, r.pattern.rhs

	var products []chem.Structure
	for at := 0; ; {
		idx := strings.Index(encoding[at:], lhs)
		if idx < 0 {
			break
		}
		site := at + idx
		candidate := encoding[:site] + rhs + encoding[site+len(lhs):]
		if p, err := chem.NewStructure(candidate); err == nil {
			products = append(products, p)
		}
		at = site + 1
	}
	return sortStructures(dedupe(products))
}

// applySequential pushes the working set through each stage in order,
// dropping members the stage does not match.
func (r *Rule) applySequential(s chem.Structure) []chem.Structure {
	working := []chem.Structure{s}
	for _, stage := range r.children {
		var next []chem.Structure
		for _, x := range working {
			if !stage.Matches(x) {
				continue
			}
			next = append(next, stage.Apply(x)...)
		}
		working = dedupe(next)
		if len(working) == 0 {
			return nil
		}
	}
	return sortStructures(working)
}

// applyParallel unions the products of every matching child.
func (r *Rule) applyParallel(s chem.Structure) []chem.Structure {
	var products []chem.Structure
	for _, c := range r.children {
		if !c.Matches(s) {
			continue
		}
		products = append(products, c.Apply(s)...)
	}
	return sortStructures(dedupe(products))
}

// dedupe removes canonical-equality duplicates preserving first
// occurrence.
func dedupe(in []chem.Structure) []chem.Structure {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s.SMILES]; ok {
			continue
		}
		seen[s.SMILES] = struct{}{}
		out = append(out, s)
	}
	return out
}

// sortStructures orders products by encoding for reproducible output.
func sortStructures(in []chem.Structure) []chem.Structure {
	sort.Slice(in, func(i, j int) bool { return in[i].SMILES < in[j].SMILES })
	return in
}

// validateFragment checks that a pattern side stays inside the SMILES
// alphabet. Fragments need not be complete molecules, so ring and
// branch balance is not required here.
func validateFragment(fragment string) error {
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case strings.IndexByte("[]()=#:+-@*%./\\", c) >= 0:
		default:
			return fmt.Errorf("illegal character %q at position %d", c, i)
		}
	}
	return nil
}
