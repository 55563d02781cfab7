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
	"github.com/envitrace/envitrace/services/pathway/predict"
)

// RemoteJobChannel runs prediction jobs against a pathway server. It
// satisfies predict.JobChannel.
type RemoteJobChannel struct {
	transport *Transport
	log       *logging.Logger
}

// NewJobChannel wires a job channel onto a transport session.
func NewJobChannel(transport *Transport, log *logging.Logger) *RemoteJobChannel {
	if log == nil {
		log = logging.Discard()
	}
	return &RemoteJobChannel{transport: transport, log: log}
}

// Submit starts a prediction job. The server answers with the job
// identifier in the Location header.
func (c *RemoteJobChannel) Submit(ctx context.Context, root chem.Structure, settingID string) (string, error) {
	form := url.Values{
		"smiles": {root.SMILES},
	}
	if settingID != "" {
		form.Set("selectedSetting", settingID)
	}
	location, err := c.transport.PostForm(ctx, "pathway", form)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	if location == "" {
		return "", fmt.Errorf("submit job: server returned no Location header")
	}
	c.log.Debug("job submitted", "job_id", location, "root", root.SMILES)
	return location, nil
}

// FetchSnapshot polls the job's status endpoint for its completed
// marker and cumulative partial results.
func (c *RemoteJobChannel) FetchSnapshot(ctx context.Context, jobID string) (predict.RemoteSnapshot, error) {
	var snapshot predict.RemoteSnapshot
	// The status view is selected by a bare query marker.
	if err := c.transport.GetJSON(ctx, jobID+"?status", nil, &snapshot); err != nil {
		return predict.RemoteSnapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	return snapshot, nil
}

// Delete removes the job from the server.
func (c *RemoteJobChannel) Delete(ctx context.Context, jobID string) error {
	if err := c.transport.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

var _ predict.JobChannel = (*RemoteJobChannel)(nil)
