// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes pathways and prediction jobs over a local
// HTTP API.
package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/envitrace/envitrace/services/pathway/graph"
	"github.com/envitrace/envitrace/services/pathway/predict"
)

// ErrUnknownID marks a lookup for a pathway or job the registry does
// not hold.
var ErrUnknownID = errors.New("unknown identifier")

// TrackedJob pairs a prediction job with the local identifier the API
// hands out. The remote job identifier is a URL and unfit for routing.
type TrackedJob struct {
	LocalID string
	Job     *predict.Job
}

// Registry is the in-process store behind the API: every pathway and
// job the server knows about, keyed by identifier.
type Registry struct {
	mu       sync.RWMutex
	pathways map[string]*graph.Pathway
	jobs     map[string]*TrackedJob
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pathways: map[string]*graph.Pathway{},
		jobs:     map[string]*TrackedJob{},
	}
}

// AddPathway registers a pathway under its own identifier.
func (r *Registry) AddPathway(p *graph.Pathway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pathways[p.ID()] = p
}

// Pathway returns the pathway with the given identifier.
func (r *Registry) Pathway(id string) (*graph.Pathway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pathways[id]
	if !ok {
		return nil, ErrUnknownID
	}
	return p, nil
}

// Pathways returns all registered pathways ordered by identifier.
func (r *Registry) Pathways() []*graph.Pathway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*graph.Pathway, 0, len(r.pathways))
	for _, p := range r.pathways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// AddJob registers a job and its pathway, returning the local
// identifier for later polling.
func (r *Registry) AddJob(job *predict.Job) *TrackedJob {
	tracked := &TrackedJob{LocalID: uuid.NewString(), Job: job}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[tracked.LocalID] = tracked
	r.pathways[job.Pathway().ID()] = job.Pathway()
	return tracked
}

// Job returns the tracked job with the given local identifier.
func (r *Registry) Job(localID string) (*TrackedJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[localID]
	if !ok {
		return nil, ErrUnknownID
	}
	return j, nil
}

// RemoveJob drops a job from the registry. Its pathway stays.
func (r *Registry) RemoveJob(localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, localID)
}

// Counts returns how many pathways and jobs are registered.
func (r *Registry) Counts() (pathways, jobs int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pathways), len(r.jobs)
}
