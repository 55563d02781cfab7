// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStructure_Descriptors(t *testing.T) {
	cases := []struct {
		name    string
		smiles  string
		formula string
		mass    float64
	}{
		{"ethanol", "CCO", "C2H6O", 46.069},
		{"benzene kekule", "C1=CC=CC=C1", "C6H6", 78.114},
		{"benzene aromatic", "c1ccccc1", "C6H6", 78.114},
		{"pyridine", "n1ccccc1", "C5H5N", 79.102},
		{"camphor", "CC1(C)C2CCC1(C)C(=O)C2", "C10H16O", 152.237},
		{"chlorobenzhydryl piperazine", "C1=CC=C(C=C1)C(C2=CC=C(C=C2)Cl)N3CCNCC3", "C17H19ClN2", 286.803},
		{"acetate anion", "CC(=O)[O-]", "C2H3O2", 59.044},
		{"ammonium", "[NH4+]", "H4N", 18.039},
		{"water bracket", "[OH2]", "H2O", 18.015},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewStructure(tc.smiles)
			require.NoError(t, err)
			assert.Equal(t, tc.formula, s.Formula)
			assert.InDelta(t, tc.mass, s.AverageMass, 0.05)
			assert.NotEmpty(t, s.ID)
		})
	}
}

func TestNewStructure_Charge(t *testing.T) {
	s, err := NewStructure("CC(=O)[O-]")
	require.NoError(t, err)
	assert.Equal(t, -1, s.Charge)

	s, err = NewStructure("[NH4+]")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Charge)

	s, err = NewStructure("CCO")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Charge)
}

func TestNewStructure_Invalid(t *testing.T) {
	cases := []struct {
		name   string
		smiles string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"unbalanced paren", "CC(O"},
		{"unterminated bracket", "C[NH3"},
		{"dangling ring closure", "C1CC"},
		{"unknown bare element", "CXC"},
		{"unknown bracket element", "[Xx]"},
		{"branch before atom", "(CC)O"},
		{"garbage", "C!C"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStructure(tc.smiles)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidStructure), "want ErrInvalidStructure, got %v", err)
		})
	}
}

func TestStructureEqual(t *testing.T) {
	a := MustStructure("CCO")
	b := MustStructure(" CCO ")
	c := MustStructure("CCN")

	assert.True(t, a.Equal(b), "whitespace must not affect identity")
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.ID, b.ID, "identity is structural, IDs stay distinct")
}

func TestStructureOptions(t *testing.T) {
	s, err := NewStructure("CCO",
		WithStructureID("remote-17"),
		WithStructureName("ethanol"),
		WithDefault(),
		WithExternalReference("pubchem", "702"),
	)
	require.NoError(t, err)
	assert.Equal(t, "remote-17", s.ID)
	assert.Equal(t, "ethanol", s.Name)
	assert.True(t, s.IsDefault)
	assert.Equal(t, []string{"702"}, s.ExternalReferences["pubchem"])
	assert.Equal(t, "ethanol (CCO)", s.String())
}
