// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/reasoning"
)

type classificationResponse struct {
	Scores []struct {
		RuleID   string  `json:"ruleId"`
		Score    float64 `json:"score"`
		Priority int     `json:"priority"`
	} `json:"scores"`
}

// RemoteModelSource scores rules through a server-hosted relative
// reasoning model, resolving each scored rule into its full definition.
// It satisfies reasoning.ModelSource.
type RemoteModelSource struct {
	transport *Transport
	resolver  *Resolver
	log       *logging.Logger
}

// NewModelSource wires a model source onto a transport and a resolver
// session for the rule definitions.
func NewModelSource(transport *Transport, resolver *Resolver, log *logging.Logger) *RemoteModelSource {
	if log == nil {
		log = logging.Discard()
	}
	return &RemoteModelSource{transport: transport, resolver: resolver, log: log}
}

// Classify asks the model to score its rules against the structure.
func (m *RemoteModelSource) Classify(ctx context.Context, modelID string, s chem.Structure) ([]reasoning.ScoredRule, error) {
	var resp classificationResponse
	query := url.Values{"smiles": {s.SMILES}}
	if err := m.transport.GetJSON(ctx, modelID+"/classify", query, &resp); err != nil {
		return nil, fmt.Errorf("classify against %s: %w", modelID, err)
	}

	scored := make([]reasoning.ScoredRule, 0, len(resp.Scores))
	for _, entry := range resp.Scores {
		rule, err := m.resolver.ResolveRule(ctx, entry.RuleID)
		if err != nil {
			return nil, fmt.Errorf("classify against %s: %w", modelID, err)
		}
		scored = append(scored, reasoning.ScoredRule{
			Rule:     rule,
			Score:    entry.Score,
			Priority: entry.Priority,
		})
	}
	return scored, nil
}

var _ reasoning.ModelSource = (*RemoteModelSource)(nil)
