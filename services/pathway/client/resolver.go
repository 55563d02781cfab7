// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/reasoning"
	"github.com/envitrace/envitrace/services/pathway/rules"
)

// Ref is a lightweight handle from a listing endpoint.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type listResponse struct {
	Objects []Ref `json:"objects"`
}

type structureDTO struct {
	ID     string `json:"id"`
	SMILES string `json:"smiles"`
	Name   string `json:"name,omitempty"`
}

type compoundDTO struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Structures []structureDTO `json:"structures"`
	DefaultID  string         `json:"defaultStructureId,omitempty"`
}

type ecNumberDTO struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type reactionDTO struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	SMIRKS    string        `json:"smirks"`
	Multistep bool          `json:"multistep,omitempty"`
	ECNumbers []ecNumberDTO `json:"ecNumbers,omitempty"`
}

type ruleDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Identifier string   `json:"identifier"`
	SMIRKS     string   `json:"smirks,omitempty"`
	ChildIDs   []string `json:"includedRuleIds,omitempty"`
}

// Resolver fetches server objects by identifier and hands out one
// shared instance per object per session. Concurrent resolutions of the
// same identifier collapse into a single fetch; an optional byte cache
// persists raw responses across sessions.
type Resolver struct {
	transport *Transport
	cache     *Cache
	log       *logging.Logger

	group singleflight.Group

	mu    sync.Mutex
	arena map[string]any
}

// NewResolver builds a resolver session. cache may be nil.
func NewResolver(transport *Transport, cache *Cache, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{
		transport: transport,
		cache:     cache,
		log:       log,
		arena:     map[string]any{},
	}
}

// NewSession returns a resolver with a fresh identity arena sharing
// this resolver's transport and cache. Objects resolved in different
// sessions are distinct instances.
func (r *Resolver) NewSession() *Resolver {
	return NewResolver(r.transport, r.cache, r.log)
}

// List fetches the refs of a kind under a parent collection, e.g.
// List(ctx, "package/abc", "rule"). An empty parent lists the
// server-wide collection. Order is the server's display order.
func (r *Resolver) List(ctx context.Context, parent, kind string) ([]Ref, error) {
	path := kind
	if parent != "" {
		path = parent + "/" + kind
	}
	var resp listResponse
	if err := r.transport.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return resp.Objects, nil
}

// ResolveStructure returns the structure with the given identifier.
// Repeated calls in one session return the same instance.
func (r *Resolver) ResolveStructure(ctx context.Context, id string) (*chem.Structure, error) {
	v, err := r.resolve(ctx, "structure", id, func(raw []byte) (any, error) {
		var dto structureDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("decode structure %s: %v", id, err)
		}
		return structureFromDTO(dto)
	})
	if err != nil {
		return nil, err
	}
	return v.(*chem.Structure), nil
}

// ResolveCompound returns the compound with the given identifier.
func (r *Resolver) ResolveCompound(ctx context.Context, id string) (*chem.Compound, error) {
	v, err := r.resolve(ctx, "compound", id, func(raw []byte) (any, error) {
		var dto compoundDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("decode compound %s: %v", id, err)
		}
		structures := make([]chem.Structure, 0, len(dto.Structures))
		for _, s := range dto.Structures {
			built, err := structureFromDTO(s)
			if err != nil {
				return nil, err
			}
			if s.ID == dto.DefaultID {
				built.IsDefault = true
			}
			structures = append(structures, *built)
		}
		return chem.NewCompound(dto.Name, structures, chem.WithCompoundID(dto.ID))
	})
	if err != nil {
		return nil, err
	}
	return v.(*chem.Compound), nil
}

// ResolveReaction returns the reaction with the given identifier.
func (r *Resolver) ResolveReaction(ctx context.Context, id string) (*chem.Reaction, error) {
	v, err := r.resolve(ctx, "reaction", id, func(raw []byte) (any, error) {
		var dto reactionDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("decode reaction %s: %v", id, err)
		}
		opts := []chem.ReactionOption{
			chem.WithReactionID(dto.ID),
			chem.WithReactionName(dto.Name),
		}
		if dto.Multistep {
			opts = append(opts, chem.WithMultistep())
		}
		if len(dto.ECNumbers) > 0 {
			numbers := make([]chem.ECNumber, len(dto.ECNumbers))
			for i, ec := range dto.ECNumbers {
				numbers[i] = chem.ECNumber{Number: ec.Number, Name: ec.Name}
			}
			opts = append(opts, chem.WithECNumbers(numbers...))
		}
		return chem.ParseReactionSMIRKS(dto.SMIRKS, opts...)
	})
	if err != nil {
		return nil, err
	}
	return v.(*chem.Reaction), nil
}

// ResolveRule returns the rule with the given identifier. Composite
// rules resolve their children recursively, reusing the session arena.
func (r *Resolver) ResolveRule(ctx context.Context, id string) (*rules.Rule, error) {
	v, err := r.resolve(ctx, "rule", id, func(raw []byte) (any, error) {
		var dto ruleDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return nil, fmt.Errorf("decode rule %s: %v", id, err)
		}
		switch dto.Identifier {
		case rules.KindSimple.String():
			return rules.NewSimpleRule(dto.Name, dto.SMIRKS, rules.WithRuleID(dto.ID))
		case rules.KindSequential.String(), rules.KindParallel.String():
			children := make([]*rules.Rule, 0, len(dto.ChildIDs))
			for _, childID := range dto.ChildIDs {
				child, err := r.ResolveRule(ctx, childID)
				if err != nil {
					return nil, fmt.Errorf("rule %s child: %w", dto.ID, err)
				}
				children = append(children, child)
			}
			if dto.Identifier == rules.KindSequential.String() {
				return rules.NewSequentialRule(dto.Name, children, rules.WithRuleID(dto.ID))
			}
			return rules.NewParallelRule(dto.Name, children, rules.WithRuleID(dto.ID))
		default:
			return nil, fmt.Errorf("rule %s: unknown identifier %q", dto.ID, dto.Identifier)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*rules.Rule), nil
}

// ResolveSetting returns the prediction setting with the given
// identifier.
func (r *Resolver) ResolveSetting(ctx context.Context, id string) (*reasoning.Setting, error) {
	v, err := r.resolve(ctx, "setting", id, func(raw []byte) (any, error) {
		var setting reasoning.Setting
		if err := json.Unmarshal(raw, &setting); err != nil {
			return nil, fmt.Errorf("decode setting %s: %v", id, err)
		}
		return &setting, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*reasoning.Setting), nil
}

// ResolveModel returns the relative reasoning model with the given
// identifier.
func (r *Resolver) ResolveModel(ctx context.Context, id string) (*reasoning.Model, error) {
	v, err := r.resolve(ctx, "model", id, func(raw []byte) (any, error) {
		var model reasoning.Model
		if err := json.Unmarshal(raw, &model); err != nil {
			return nil, fmt.Errorf("decode model %s: %v", id, err)
		}
		return &model, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*reasoning.Model), nil
}

// resolve implements the arena/singleflight/cache flow shared by all
// typed resolvers. Transient failures are never cached and leave the
// arena untouched, so the next call retries the fetch.
func (r *Resolver) resolve(ctx context.Context, kind, id string, decode func([]byte) (any, error)) (any, error) {
	if id == "" {
		return nil, fmt.Errorf("resolve %s: %w: empty identifier", kind, ErrNotFound)
	}
	key := kind + ":" + id

	r.mu.Lock()
	if v, ok := r.arena[key]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		// Re-check: a concurrent flight may have landed first.
		r.mu.Lock()
		if v, ok := r.arena[key]; ok {
			r.mu.Unlock()
			return v, nil
		}
		r.mu.Unlock()

		raw, fromCache := r.cachedBytes(key)
		if !fromCache {
			var err error
			raw, err = r.transport.GetRaw(ctx, id, nil)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", key, err)
			}
		}

		v, err := decode(raw)
		if err != nil {
			return nil, err
		}

		if !fromCache && r.cache != nil {
			if cerr := r.cache.Set(key, raw); cerr != nil {
				r.log.Warn("cache store failed", "key", key, "error", cerr.Error())
			}
		}
		r.mu.Lock()
		r.arena[key] = v
		r.mu.Unlock()
		return v, nil
	})
	return v, err
}

func (r *Resolver) cachedBytes(key string) ([]byte, bool) {
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key)
}

func structureFromDTO(dto structureDTO) (*chem.Structure, error) {
	opts := []chem.StructureOption{chem.WithStructureID(dto.ID)}
	if dto.Name != "" {
		opts = append(opts, chem.WithStructureName(dto.Name))
	}
	s, err := chem.NewStructure(dto.SMILES, opts...)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
