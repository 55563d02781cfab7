// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reasoning ranks transformation rules for a structure using a
// remote relative reasoning model. The proxy owns ordering and input
// validation; the model itself lives behind the ModelSource interface.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/rules"
)

// ErrNoModel marks a classification request without a model.
var ErrNoModel = errors.New("no model selected")

// Model identifies a trained relative reasoning model.
type Model struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Threshold is the score below which the model considers a rule
	// inapplicable. Zero means the model reports everything.
	Threshold float64 `json:"threshold,omitempty"`
}

// Setting bundles the knobs a prediction job runs under: which model
// scores the rules, which rule packages are in scope and how far the
// expansion may grow.
type Setting struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ModelID    string   `json:"modelId,omitempty"`
	PackageIDs []string `json:"packageIds,omitempty"`
	DepthLimit int      `json:"depthLimit,omitempty"`
	NodeLimit  int      `json:"nodeLimit,omitempty"`
}

// ScoredRule is a rule with the model's applicability score. Priority
// is the rule author's tie-breaker: lower wins among equal scores.
// Products is filled in by the proxy from Rule.Apply on the classified
// structure.
type ScoredRule struct {
	Rule     *rules.Rule
	Score    float64
	Priority int
	Products []chem.Structure
}

// ModelSource produces raw rule scores for a structure. Order of the
// returned slice carries no meaning; the proxy sorts.
type ModelSource interface {
	Classify(ctx context.Context, modelID string, s chem.Structure) ([]ScoredRule, error)
}

// Proxy fronts a ModelSource with validation and deterministic
// ordering.
type Proxy struct {
	source ModelSource
	log    *logging.Logger
}

// NewProxy wires a proxy to a model source.
func NewProxy(source ModelSource, log *logging.Logger) *Proxy {
	if log == nil {
		log = logging.Discard()
	}
	return &Proxy{source: source, log: log}
}

// Classify returns the rules of the model that match the structure,
// each with its predicted products, ordered by score descending, then
// priority ascending, then rule identifier. A structure no rule applies
// to yields an empty slice, not an error. Nothing is persisted.
func (p *Proxy) Classify(ctx context.Context, modelID string, s chem.Structure) ([]ScoredRule, error) {
	if modelID == "" {
		return nil, fmt.Errorf("classify %s: %w", s.SMILES, ErrNoModel)
	}

	scored, err := p.source.Classify(ctx, modelID, s)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", s.SMILES, err)
	}

	out := make([]ScoredRule, 0, len(scored))
	for _, sr := range scored {
		if sr.Rule == nil || !sr.Rule.Matches(s) {
			continue
		}
		sr.Products = sr.Rule.Apply(s)
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Rule.ID < out[j].Rule.ID
	})

	p.log.Debug("structure classified",
		"model_id", modelID, "structure", s.SMILES, "rules", len(out))
	return out, nil
}
