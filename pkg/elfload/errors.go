// Copyright 2026 The Elfload Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package elfload

import "errors"

// Every loader failure wraps exactly one of these kinds; callers select with
// errors.Is. None of them is retried internally, and a failed load leaves any
// mappings established by earlier segments in place. The caller owns the
// target address space and is expected to destroy it wholesale on failure.
var (
	// ErrBadFormat marks a malformed or unsupported image: bad header
	// fields, truncated program header table, out-of-order PT_LOAD
	// segments, or size fields that violate format invariants.
	ErrBadFormat = errors.New("elfload: bad ELF format")

	// ErrNoMemory marks an allocation or address-space reservation
	// failure. The caller may free resources and retry the whole load.
	ErrNoMemory = errors.New("elfload: out of memory or address space")

	// ErrIO marks a short or failed transfer against the source image or
	// a freshly created object.
	ErrIO = errors.New("elfload: i/o error")
)
