// Copyright (C) 2026 the envitrace authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import "errors"

// ErrInvalidPattern is returned when a rule definition is malformed: a
// site pattern without exactly one ">>", an empty pattern side, illegal
// characters, or a composite with no children. Construction fails fast;
// a successfully built rule never errors at application time.
var ErrInvalidPattern = errors.New("invalid rule pattern")
