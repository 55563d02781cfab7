// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package predict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() Backoff {
	return Backoff{Initial: time.Microsecond, Max: time.Millisecond, Multiplier: 2}
}

func TestBackoff_NextGrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 4 * time.Second, Multiplier: 2}
	d := b.initial()
	assert.Equal(t, time.Second, d)
	d = b.next(d)
	assert.Equal(t, 2*time.Second, d)
	d = b.next(d)
	assert.Equal(t, 4*time.Second, d)
	d = b.next(d)
	assert.Equal(t, 4*time.Second, d)
}

func TestAwait_RunsUntilDone(t *testing.T) {
	rootNode := RemoteNode{ID: "n-root", SMILES: camphorSMILES}
	ch := &scriptedChannel{
		jobID: "job-1",
		snapshots: []RemoteSnapshot{
			{Completed: "false", Revision: 1, Nodes: []RemoteNode{rootNode}},
			{Completed: "false", Revision: 2, Nodes: []RemoteNode{rootNode}},
			{
				Completed: "true",
				Revision:  3,
				Nodes:     []RemoteNode{rootNode, {ID: "n-tp1", SMILES: tp1SMILES, Depth: 1}},
				Edges: []RemoteEdge{
					remoteEdge("e-1", camphorSMILES, tp1SMILES, "n-root", "n-tp1"),
				},
			},
		},
	}
	o, job := submitCamphor(t, ch)

	result, err := Await(context.Background(), o, job, fastBackoff(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, result.Status)
	assert.Equal(t, 3, result.Revision)
	assert.Equal(t, 2, job.Pathway().NodeCount())
}

func TestAwait_RetriesTransientErrors(t *testing.T) {
	transient := errors.New("gateway hiccup")
	ch := &scriptedChannel{
		jobID: "job-1",
		errs:  []error{transient, transient},
		snapshots: []RemoteSnapshot{
			{Completed: "true", Revision: 1, Nodes: []RemoteNode{{ID: "n-root", SMILES: camphorSMILES}}},
		},
	}
	o, job := submitCamphor(t, ch)

	result, err := Await(context.Background(), o, job, fastBackoff(),
		func(err error) bool { return errors.Is(err, transient) })
	require.NoError(t, err)
	assert.Equal(t, StatusDone, result.Status)
	assert.Equal(t, 3, ch.fetches)
}

func TestAwait_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("gateway hiccup")
	ch := &scriptedChannel{
		jobID: "job-1",
		errs:  []error{transient, transient, transient, transient},
	}
	o, job := submitCamphor(t, ch)

	b := fastBackoff()
	b.MaxAttempts = 3
	_, err := Await(context.Background(), o, job, b,
		func(err error) bool { return errors.Is(err, transient) })
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, ch.fetches)
}

func TestAwait_FailedJobSurfacesImmediately(t *testing.T) {
	ch := &scriptedChannel{
		jobID: "job-1",
		snapshots: []RemoteSnapshot{
			{Completed: "error", Nodes: []RemoteNode{{ID: "n-root", SMILES: camphorSMILES}}},
		},
	}
	o, job := submitCamphor(t, ch)

	result, err := Await(context.Background(), o, job, fastBackoff(), nil)
	assert.ErrorIs(t, err, ErrPredictionFailed)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestAwait_HonorsContextCancellation(t *testing.T) {
	ch := &scriptedChannel{
		jobID: "job-1",
		snapshots: []RemoteSnapshot{
			{Completed: "false", Nodes: []RemoteNode{{ID: "n-root", SMILES: camphorSMILES}}},
		},
	}
	o, job := submitCamphor(t, ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := Backoff{Initial: time.Hour}
	_, err := Await(ctx, o, job, b, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
