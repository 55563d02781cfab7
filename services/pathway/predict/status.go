// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package predict

import "fmt"

// Status is the lifecycle state of a prediction job.
type Status int

const (
	// StatusPending covers the window between submission and the first
	// successful poll.
	StatusPending Status = iota
	// StatusRunning means the remote engine is still expanding the
	// pathway.
	StatusRunning
	// StatusDone means the remote engine finished and the final
	// snapshot has been merged.
	StatusDone
	// StatusFailed means the remote engine reported an error; partial
	// results merged before the failure are kept.
	StatusFailed
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status is final. A terminal job is never
// polled against the remote engine again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// statusFromWire maps the remote completed marker onto a Status. The
// engine reports completion as the strings "true", "false" and "error".
func statusFromWire(completed string) (Status, error) {
	switch completed {
	case "false":
		return StatusRunning, nil
	case "true":
		return StatusDone, nil
	case "error":
		return StatusFailed, nil
	default:
		return StatusPending, fmt.Errorf("%w: %q", ErrUnknownStatus, completed)
	}
}
