// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package predict drives asynchronous pathway prediction jobs.
//
// A job is submitted through a JobChannel, then polled. Every poll
// merges whatever partial snapshot the remote engine has produced so
// far into the job's pathway, so intermediate results are visible
// before the job finishes. Once a job reaches a terminal status the
// orchestrator latches it: no further snapshots are fetched, and a
// failed job keeps returning ErrPredictionFailed on every poll.
package predict

import "errors"

var (
	// ErrPredictionFailed marks a job whose remote engine reported a
	// terminal failure. The pathway keeps whatever partial results
	// were merged before the failure.
	ErrPredictionFailed = errors.New("prediction failed")

	// ErrUnknownStatus marks a remote status value outside the wire
	// contract.
	ErrUnknownStatus = errors.New("unknown job status")
)
