// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import (
	"sort"
	"testing"

	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSimple(t *testing.T, name, pattern string) *Rule {
	t.Helper()
	r, err := NewSimpleRule(name, pattern)
	require.NoError(t, err)
	return r
}

func smilesOf(structures []chem.Structure) []string {
	out := make([]string, len(structures))
	for i, s := range structures {
		out[i] = s.SMILES
	}
	sort.Strings(out)
	return out
}

func TestNewSimpleRule_Validation(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"valid", "CO>>C=O", false},
		{"valid with rings", "C1CCNCC1>>C1CCN(O)CC1", false},
		{"no separator", "CO=CO", true},
		{"two separators", "C>>O>>N", true},
		{"empty lhs", ">>CO", true},
		{"empty rhs", "CO>>", true},
		{"illegal character", "C!O>>CO", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSimpleRule(tc.name, tc.pattern)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPattern)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompositeConstruction(t *testing.T) {
	child := mustSimple(t, "child", "C>>N")

	t.Run("sequential needs children", func(t *testing.T) {
		_, err := NewSequentialRule("empty", nil)
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("parallel rejects nil child", func(t *testing.T) {
		_, err := NewParallelRule("nilchild", []*Rule{child, nil})
		assert.ErrorIs(t, err, ErrInvalidPattern)
	})

	t.Run("kinds and children", func(t *testing.T) {
		seq, err := NewSequentialRule("seq", []*Rule{child})
		require.NoError(t, err)
		assert.Equal(t, KindSequential, seq.Kind)
		assert.Equal(t, "sequential-rule", seq.Kind.String())
		assert.Len(t, seq.Children(), 1)
		assert.Empty(t, seq.Pattern())

		par, err := NewParallelRule("par", []*Rule{child})
		require.NoError(t, err)
		assert.Equal(t, KindParallel, par.Kind)
		assert.Equal(t, "C>>N", child.Pattern())
	})
}

func TestSimpleRule_Apply(t *testing.T) {
	t.Run("non-matching structure yields empty set", func(t *testing.T) {
		r := mustSimple(t, "hydroxylation", "N>>NO")
		products := r.Apply(chem.MustStructure("CCC"))
		assert.False(t, r.Matches(chem.MustStructure("CCC")))
		assert.Empty(t, products)
	})

	t.Run("every non-equivalent site yields a product", func(t *testing.T) {
		r := mustSimple(t, "oxidation", "C>>CO")
		products := r.Apply(chem.MustStructure("CCC"))
		assert.Equal(t, []string{"CCCO", "CCOC", "COCC"}, smilesOf(products))
	})

	t.Run("duplicate products collapse", func(t *testing.T) {
		r := mustSimple(t, "identity", "C>>C")
		products := r.Apply(chem.MustStructure("CC"))
		assert.Equal(t, []string{"CC"}, smilesOf(products))
	})

	t.Run("sites producing invalid encodings are dropped", func(t *testing.T) {
		// Replacing "C1" with "N" cuts the ring closure open.
		r := mustSimple(t, "ringcut", "C1>>N")
		products := r.Apply(chem.MustStructure("C1CC1"))
		assert.Empty(t, products)
	})
}

func TestSequentialRule_Law(t *testing.T) {
	r1 := mustSimple(t, "stage1", "CO>>C=O")
	r2 := mustSimple(t, "stage2", "C=O>>C(=O)O")
	seq, err := NewSequentialRule("oxidation chain", []*Rule{r1, r2})
	require.NoError(t, err)

	s := chem.MustStructure("CCO")

	// Law: Sequential(r1,r2).Apply(s) equals the union over x in
	// r1.Apply(s) with r2.Matches(x) of r2.Apply(x).
	var want []chem.Structure
	for _, x := range r1.Apply(s) {
		if r2.Matches(x) {
			want = append(want, r2.Apply(x)...)
		}
	}
	assert.Equal(t, smilesOf(want), smilesOf(seq.Apply(s)))
	assert.NotEmpty(t, seq.Apply(s))
}

func TestSequentialRule_GatedByFirstStage(t *testing.T) {
	r1 := mustSimple(t, "stage1", "N>>NO")
	r2 := mustSimple(t, "stage2", "C>>CO")
	seq, err := NewSequentialRule("gated", []*Rule{r1, r2})
	require.NoError(t, err)

	s := chem.MustStructure("CCC")
	assert.False(t, seq.Matches(s), "sequential matching is gated by the first stage")
	assert.Empty(t, seq.Apply(s))

	withAmine := chem.MustStructure("NCC")
	assert.True(t, seq.Matches(withAmine))
}

func TestSequentialRule_DropsUnmatchedIntermediates(t *testing.T) {
	r1 := mustSimple(t, "branch", "C>>N")
	r2 := mustSimple(t, "needs O", "O>>OC")
	seq, err := NewSequentialRule("deadend", []*Rule{r1, r2})
	require.NoError(t, err)

	// Stage 1 matches but none of its products carry the oxygen stage 2
	// needs, so the pipeline runs dry.
	assert.True(t, seq.Matches(chem.MustStructure("CC")))
	assert.Empty(t, seq.Apply(chem.MustStructure("CC")))
}

func TestParallelRule_Law(t *testing.T) {
	r1 := mustSimple(t, "alt1", "C>>CO")
	r2 := mustSimple(t, "alt2", "C>>CN")
	par, err := NewParallelRule("alternatives", []*Rule{r1, r2})
	require.NoError(t, err)

	s := chem.MustStructure("CC")

	// Law: Parallel(r1,r2).Apply(s) equals r1.Apply(s) union r2.Apply(s).
	want := append(r1.Apply(s), r2.Apply(s)...)
	assert.Equal(t, smilesOf(dedupe(want)), smilesOf(par.Apply(s)))
}

func TestParallelRule_MatchesIsOr(t *testing.T) {
	r1 := mustSimple(t, "needs N", "N>>NO")
	r2 := mustSimple(t, "needs S", "S>>SO")
	par, err := NewParallelRule("either", []*Rule{r1, r2})
	require.NoError(t, err)

	assert.True(t, par.Matches(chem.MustStructure("CSC")))
	assert.True(t, par.Matches(chem.MustStructure("CNC")))
	assert.False(t, par.Matches(chem.MustStructure("CCC")))
	assert.Empty(t, par.Apply(chem.MustStructure("CCC")))

	// Only the matching alternative contributes.
	products := par.Apply(chem.MustStructure("CSC"))
	assert.Equal(t, []string{"CSOC"}, smilesOf(products))
}
