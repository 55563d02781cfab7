// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package predict

import (
	"context"
	"fmt"
	"sync"

	"github.com/envitrace/envitrace/pkg/logging"
	"github.com/envitrace/envitrace/services/pathway/chem"
	"github.com/envitrace/envitrace/services/pathway/graph"
)

// JobChannel is the transport to a remote prediction engine. Transient
// failures (timeouts, 5xx, connection resets) must be reported as
// errors matching the caller's retryable classification so a poll loop
// can back off and try again without touching job state.
type JobChannel interface {
	// Submit starts a prediction job for the root structure under the
	// given setting and returns the remote job identifier.
	Submit(ctx context.Context, root chem.Structure, settingID string) (string, error)

	// FetchSnapshot returns the job's current status and cumulative
	// partial results.
	FetchSnapshot(ctx context.Context, jobID string) (RemoteSnapshot, error)

	// Delete removes a finished or abandoned job from the remote
	// engine.
	Delete(ctx context.Context, jobID string) error
}

// Job tracks one submitted prediction and the pathway it populates.
type Job struct {
	ID        string
	SettingID string

	mu       sync.Mutex
	pathway  *graph.Pathway
	status   Status
	revision int
}

// Pathway returns the pathway owned by this job.
func (j *Job) Pathway() *graph.Pathway { return j.pathway }

// Status returns the job's last observed status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Revision returns the snapshot revision last merged into the pathway.
func (j *Job) Revision() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.revision
}

// PollResult summarizes one poll: the status observed and how much of
// the snapshot was new.
type PollResult struct {
	Status     Status
	NodesAdded int
	EdgesAdded int
	Revision   int
}

// Orchestrator submits jobs and folds their snapshots into pathways.
// It owns the status lifecycle; the caller owns the poll cadence.
type Orchestrator struct {
	channel JobChannel
	log     *logging.Logger
}

// NewOrchestrator wires an orchestrator to a job channel.
func NewOrchestrator(channel JobChannel, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Discard()
	}
	return &Orchestrator{channel: channel, log: log}
}

// Submit starts a prediction for the root structure and returns the
// tracking job. The job's pathway is created in predicted mode and
// stays closed to manual mutation until the job is terminal.
func (o *Orchestrator) Submit(ctx context.Context, name string, root chem.Structure, settingID string) (*Job, error) {
	jobID, err := o.channel.Submit(ctx, root, settingID)
	if err != nil {
		return nil, fmt.Errorf("submit prediction: %w", err)
	}
	o.log.Info("prediction submitted", "job_id", jobID, "root", root.SMILES, "setting_id", settingID)
	return &Job{
		ID:        jobID,
		SettingID: settingID,
		pathway:   graph.NewPredictedPathway(name, root),
		status:    StatusPending,
	}, nil
}

// Poll fetches the job's current snapshot and merges it into the
// pathway. Terminal states latch: a done job returns immediately and a
// failed job returns ErrPredictionFailed on this and every later poll,
// keeping the partial results merged before the failure. A transport
// error leaves the job and its pathway exactly as they were.
func (o *Orchestrator) Poll(ctx context.Context, job *Job) (PollResult, error) {
	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status == StatusDone {
		return PollResult{Status: StatusDone, Revision: job.revision}, nil
	}
	if job.status == StatusFailed {
		return PollResult{Status: StatusFailed, Revision: job.revision},
			fmt.Errorf("poll job %s: %w", job.ID, ErrPredictionFailed)
	}

	snapshot, err := o.channel.FetchSnapshot(ctx, job.ID)
	if err != nil {
		return PollResult{Status: job.status, Revision: job.revision},
			fmt.Errorf("poll job %s: %w", job.ID, err)
	}

	status, err := statusFromWire(snapshot.Completed)
	if err != nil {
		return PollResult{Status: job.status, Revision: job.revision},
			fmt.Errorf("poll job %s: %w", job.ID, err)
	}

	nodes, edges, err := snapshot.convert()
	if err != nil {
		return PollResult{Status: job.status, Revision: job.revision},
			fmt.Errorf("poll job %s: %w", job.ID, err)
	}

	root, err := job.pathway.Root()
	if err != nil {
		return PollResult{Status: job.status, Revision: job.revision},
			fmt.Errorf("poll job %s: %w", job.ID, err)
	}
	nodes, edges = alignRoot(root, nodes, edges)

	addedNodes, addedEdges, err := job.pathway.Merge(nodes, edges)
	if err != nil {
		return PollResult{Status: job.status, Revision: job.revision},
			fmt.Errorf("poll job %s: %w", job.ID, err)
	}

	job.status = status
	if snapshot.Revision > job.revision {
		job.revision = snapshot.Revision
	}
	if status.Terminal() {
		job.pathway.FinishPrediction()
	}

	result := PollResult{
		Status:     status,
		NodesAdded: addedNodes,
		EdgesAdded: addedEdges,
		Revision:   job.revision,
	}
	o.log.Debug("prediction polled",
		"job_id", job.ID, "status", status.String(),
		"nodes_added", addedNodes, "edges_added", addedEdges)

	if status == StatusFailed {
		return result, fmt.Errorf("poll job %s: %w", job.ID, ErrPredictionFailed)
	}
	return result, nil
}

// Delete removes the job from the remote engine. Local state, the
// pathway included, is kept.
func (o *Orchestrator) Delete(ctx context.Context, job *Job) error {
	if err := o.channel.Delete(ctx, job.ID); err != nil {
		return fmt.Errorf("delete job %s: %w", job.ID, err)
	}
	o.log.Info("prediction deleted", "job_id", job.ID)
	return nil
}

// alignRoot rewrites the snapshot's own root node onto the pathway's
// root: the remote engine assigns its own identifier to the submitted
// structure, and keeping both would leave the graph with two roots.
func alignRoot(root graph.Node, nodes []graph.Node, edges []graph.Edge) ([]graph.Node, []graph.Edge) {
	remoteRootID := ""
	kept := nodes[:0]
	for _, n := range nodes {
		if remoteRootID == "" && n.Structure.Equal(root.Structure) {
			remoteRootID = n.ID
			continue
		}
		kept = append(kept, n)
	}
	if remoteRootID == "" {
		return kept, edges
	}
	for i := range edges {
		replaceID(edges[i].StartIDs, remoteRootID, root.ID)
		replaceID(edges[i].EndIDs, remoteRootID, root.ID)
	}
	return kept, edges
}

func replaceID(ids []string, from, to string) {
	for i, id := range ids {
		if id == from {
			ids[i] = to
		}
	}
}
