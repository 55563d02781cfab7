// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package client talks to a remote pathway server: typed object
// resolution with per-session identity, a byte-level cache tier and the
// job channel used by prediction.
//
// Errors are classified at the transport: anything worth retrying wraps
// ErrTransient, definitive misses wrap ErrNotFound. Callers branch with
// errors.Is and never inspect status codes.
package client

import "errors"

var (
	// ErrTransient marks failures a caller may retry: timeouts,
	// connection errors, 5xx responses and rate limiting.
	ErrTransient = errors.New("transient server error")

	// ErrNotFound marks a definitive miss for the requested object.
	ErrNotFound = errors.New("object not found")

	// ErrUnauthorized marks a rejected or missing login.
	ErrUnauthorized = errors.New("unauthorized")
)
