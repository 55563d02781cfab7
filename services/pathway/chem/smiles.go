// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chem

import (
	"fmt"
	"sort"
	"strings"
)

// defaultValence holds the organic-subset valences used to derive
// implicit hydrogen counts for atoms written without brackets.
var defaultValence = map[string]int{
	"B": 3, "C": 4, "N": 3, "O": 2, "P": 3, "S": 2,
	"F": 1, "Cl": 1, "Br": 1, "I": 1,
}

// atomicMass holds standard average atomic masses (g/mol) for the
// elements this module accepts.
var atomicMass = map[string]float64{
	"H": 1.008, "B": 10.81, "C": 12.011, "N": 14.007, "O": 15.999,
	"F": 18.998, "Na": 22.990, "Mg": 24.305, "Si": 28.085, "P": 30.974,
	"S": 32.06, "Cl": 35.45, "K": 39.098, "Ca": 40.078, "Fe": 55.845,
	"Cu": 63.546, "Zn": 65.38, "Se": 78.971, "Br": 79.904, "I": 126.904,
}

// parsedAtom is one atom encountered while scanning a SMILES string.
type parsedAtom struct {
	symbol   string
	aromatic bool
	bracket  bool
	hydrogen int // explicit H count for bracket atoms
	charge   int
	bonds    int // sum of bond orders to this atom
}

// molecule is the result of parsing a SMILES encoding.
type molecule struct {
	atoms  []*parsedAtom
	charge int
}

// ringBond tracks an open ring-closure label.
type ringBond struct {
	atom  int
	order int
}

// parseSMILES scans a SMILES string and returns its atoms with bond
// order sums, explicit hydrogens and charges. The scan accepts the
// organic subset plus bracket atoms, ring closures (including %nn),
// branches, bond symbols and dot-separated components. It rejects
// unbalanced parentheses or brackets, unknown elements and dangling
// ring closures.
func parseSMILES(s string) (*molecule, error) {
	mol := &molecule{}
	prev := -1
	order := 1
	var stack []int
	rings := map[string]ringBond{}

	addAtom := func(a *parsedAtom) {
		mol.atoms = append(mol.atoms, a)
		idx := len(mol.atoms) - 1
		if prev >= 0 {
			mol.atoms[prev].bonds += order
			a.bonds += order
		}
		prev = idx
		order = 1
	}

	closeRing := func(label string) error {
		if prev < 0 {
			return fmt.Errorf("%w: ring closure %q before any atom", ErrInvalidStructure, label)
		}
		if open, ok := rings[label]; ok {
			bondOrder := order
			if open.order > bondOrder {
				bondOrder = open.order
			}
			mol.atoms[open.atom].bonds += bondOrder
			mol.atoms[prev].bonds += bondOrder
			delete(rings, label)
		} else {
			rings[label] = ringBond{atom: prev, order: order}
		}
		order = 1
		return nil
	}

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '(':
			if prev < 0 {
				return nil, fmt.Errorf("%w: branch opened before any atom", ErrInvalidStructure)
			}
			stack = append(stack, prev)
			i++
		case c == ')':
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unbalanced ')'", ErrInvalidStructure)
			}
			prev = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			i++
		case c == '-' || c == '/' || c == '\\':
			order = 1
			i++
		case c == '=':
			order = 2
			i++
		case c == '#':
			order = 3
			i++
		case c == ':':
			order = 1
			i++
		case c == '.':
			prev = -1
			order = 1
			i++
		case c >= '0' && c <= '9':
			if err := closeRing(string(c)); err != nil {
				return nil, err
			}
			i++
		case c == '%':
			if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
				return nil, fmt.Errorf("%w: malformed %%nn ring closure", ErrInvalidStructure)
			}
			if err := closeRing(s[i+1 : i+3]); err != nil {
				return nil, err
			}
			i += 3
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket atom", ErrInvalidStructure)
			}
			a, err := parseBracketAtom(s[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			mol.charge += a.charge
			addAtom(a)
			i += end + 1
		case c >= 'A' && c <= 'Z':
			symbol := string(c)
			if i+1 < len(s) && (s[i+1] == 'l' || s[i+1] == 'r') {
				two := s[i : i+2]
				if two == "Cl" || two == "Br" {
					symbol = two
				}
			}
			if _, ok := defaultValence[symbol]; !ok {
				return nil, fmt.Errorf("%w: element %q must be written in brackets", ErrInvalidStructure, symbol)
			}
			addAtom(&parsedAtom{symbol: symbol})
			i += len(symbol)
		case c == 'b' || c == 'c' || c == 'n' || c == 'o' || c == 'p' || c == 's':
			addAtom(&parsedAtom{symbol: strings.ToUpper(string(c)), aromatic: true})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidStructure, c, i)
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unbalanced '('", ErrInvalidStructure)
	}
	if len(rings) != 0 {
		labels := make([]string, 0, len(rings))
		for l := range rings {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		return nil, fmt.Errorf("%w: dangling ring closure %s", ErrInvalidStructure, strings.Join(labels, ","))
	}
	if len(mol.atoms) == 0 {
		return nil, fmt.Errorf("%w: no atoms", ErrInvalidStructure)
	}
	return mol, nil
}

// parseBracketAtom parses the inside of a [...] atom: optional isotope,
// element symbol, chirality markers, explicit hydrogen count, charge and
// atom map. Example inputs: "NH3+", "13C", "O-", "nH".
func parseBracketAtom(body string) (*parsedAtom, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: empty bracket atom", ErrInvalidStructure)
	}
	i := 0
	for i < len(body) && isDigit(body[i]) { // isotope, ignored
		i++
	}
	if i >= len(body) {
		return nil, fmt.Errorf("%w: bracket atom %q has no element", ErrInvalidStructure, body)
	}

	a := &parsedAtom{bracket: true}
	c := body[i]
	switch {
	case c == '*':
		a.symbol = "*"
		i++
	case c >= 'A' && c <= 'Z':
		a.symbol = string(c)
		i++
		if i < len(body) && body[i] >= 'a' && body[i] <= 'z' {
			// Two-letter element, but a trailing 'H' count must not be eaten.
			cand := a.symbol + string(body[i])
			if _, ok := atomicMass[cand]; ok {
				a.symbol = cand
				i++
			}
		}
	case c == 'b' || c == 'c' || c == 'n' || c == 'o' || c == 'p' || c == 's':
		a.symbol = strings.ToUpper(string(c))
		a.aromatic = true
		i++
	default:
		return nil, fmt.Errorf("%w: bracket atom %q has no element", ErrInvalidStructure, body)
	}

	for i < len(body) {
		switch body[i] {
		case '@':
			i++
		case 'H':
			a.hydrogen = 1
			i++
			n := 0
			for i < len(body) && isDigit(body[i]) {
				n = n*10 + int(body[i]-'0')
				i++
			}
			if n > 0 {
				a.hydrogen = n
			}
		case '+', '-':
			sign := 1
			if body[i] == '-' {
				sign = -1
			}
			i++
			n := 0
			for i < len(body) && isDigit(body[i]) {
				n = n*10 + int(body[i]-'0')
				i++
			}
			if n == 0 {
				n = 1
				for i < len(body) && (body[i] == '+' || body[i] == '-') {
					n++
					i++
				}
			}
			a.charge = sign * n
		case ':':
			i = len(body) // atom map, ignored
		default:
			return nil, fmt.Errorf("%w: unexpected %q in bracket atom %q", ErrInvalidStructure, body[i], body)
		}
	}

	if a.symbol != "*" {
		if _, ok := atomicMass[a.symbol]; !ok {
			return nil, fmt.Errorf("%w: unknown element %q", ErrInvalidStructure, a.symbol)
		}
	}
	return a, nil
}

// implicitHydrogens returns the implicit hydrogen count for an atom.
// Bracket atoms state their hydrogens explicitly. For organic-subset
// atoms the count is valence minus bonded order, with one unit consumed
// by aromatic delocalization for aromatic atoms.
func implicitHydrogens(a *parsedAtom) int {
	if a.bracket {
		return a.hydrogen
	}
	v, ok := defaultValence[a.symbol]
	if !ok {
		return 0
	}
	h := v - a.bonds
	if a.aromatic {
		h--
	}
	if h < 0 {
		return 0
	}
	return h
}

// elementCounts returns the element histogram of a molecule, hydrogens
// included.
func (m *molecule) elementCounts() map[string]int {
	counts := map[string]int{}
	for _, a := range m.atoms {
		if a.symbol != "*" {
			counts[a.symbol]++
		}
		if h := implicitHydrogens(a); h > 0 {
			counts["H"] += h
		}
	}
	return counts
}

// hillFormula renders element counts in Hill order: carbon first, then
// hydrogen, then all other elements alphabetically. Without carbon all
// elements sort alphabetically.
func hillFormula(counts map[string]int) string {
	var b strings.Builder
	write := func(symbol string) {
		n, ok := counts[symbol]
		if !ok || n == 0 {
			return
		}
		b.WriteString(symbol)
		if n > 1 {
			fmt.Fprintf(&b, "%d", n)
		}
	}

	rest := make([]string, 0, len(counts))
	_, hasCarbon := counts["C"]
	for symbol := range counts {
		if hasCarbon && (symbol == "C" || symbol == "H") {
			continue
		}
		rest = append(rest, symbol)
	}
	sort.Strings(rest)

	if hasCarbon {
		write("C")
		write("H")
	}
	for _, symbol := range rest {
		write(symbol)
	}
	return b.String()
}

// averageMass sums standard atomic masses over the element counts.
func averageMass(counts map[string]int) float64 {
	var mass float64
	for symbol, n := range counts {
		mass += atomicMass[symbol] * float64(n)
	}
	return mass
}

// CanonicalSMILES validates an encoding and returns its canonical form.
// Canonicalization strips whitespace; structural equality throughout the
// module is equality of this form.
func CanonicalSMILES(s string) (string, error) {
	trimmed := strings.Join(strings.Fields(s), "")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty encoding", ErrInvalidStructure)
	}
	if _, err := parseSMILES(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
