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
	"time"
)

// Backoff shapes the delay between polls of a running job.
type Backoff struct {
	// Initial is the first delay. Zero means one second.
	Initial time.Duration

	// Max caps the delay. Zero means one minute.
	Max time.Duration

	// Multiplier grows the delay after each poll. Values below 1 are
	// treated as 1.
	Multiplier float64

	// MaxAttempts bounds consecutive retryable failures. Zero means
	// unlimited.
	MaxAttempts int
}

func (b Backoff) initial() time.Duration {
	if b.Initial <= 0 {
		return time.Second
	}
	return b.Initial
}

func (b Backoff) next(d time.Duration) time.Duration {
	m := b.Multiplier
	if m < 1 {
		m = 1
	}
	max := b.Max
	if max <= 0 {
		max = time.Minute
	}
	d = time.Duration(float64(d) * m)
	if d > max {
		return max
	}
	return d
}

// Await polls the job until it reaches a terminal status, sleeping
// with exponential backoff between polls. It is a convenience over the
// caller-owned submit/poll loop: the orchestrator itself never sleeps
// or retries, and callers with their own cadence policy can drive Poll
// directly instead. retryable decides whether a poll error is worth
// another attempt; a nil retryable treats every error as fatal. The
// backoff resets after each successful poll.
func Await(ctx context.Context, o *Orchestrator, job *Job, b Backoff, retryable func(error) bool) (PollResult, error) {
	delay := b.initial()
	failures := 0
	for {
		result, err := o.Poll(ctx, job)
		switch {
		case err == nil:
			if result.Status == StatusDone {
				return result, nil
			}
			failures = 0
			delay = b.initial()
		case errors.Is(err, ErrPredictionFailed):
			return result, err
		case retryable != nil && retryable(err):
			failures++
			if b.MaxAttempts > 0 && failures >= b.MaxAttempts {
				return result, err
			}
		default:
			return result, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
		delay = b.next(delay)
	}
}
