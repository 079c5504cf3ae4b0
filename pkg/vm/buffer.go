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

package vm

import "fmt"

// Buffer is an in-memory Object backed by a zero-filled byte slice.
type Buffer struct {
	data     []byte
	readonly bool
}

func NewBuffer(size uint64) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// NewBufferBytes wraps b directly, without copying.
func NewBufferBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// ReadOnly returns a view of the same bytes that rejects writes.
func (b *Buffer) ReadOnly() *Buffer {
	return &Buffer{data: b.data, readonly: true}
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

// Bytes exposes the backing slice. Intended for tests and the CLI.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) ReadAt(p []byte, off uint64) (int, error) {
	if err := checkBounds(off, uint64(len(p)), uint64(len(b.data))); err != nil {
		return 0, err
	}
	return copy(p, b.data[off:]), nil
}

func (b *Buffer) WriteAt(p []byte, off uint64) (int, error) {
	if b.readonly {
		return 0, ErrAccessDenied
	}
	if err := checkBounds(off, uint64(len(p)), uint64(len(b.data))); err != nil {
		return 0, err
	}
	return copy(b.data[off:], p), nil
}

// checkBounds verifies [off, off+length) lies within size without the sum
// wrapping. Offsets and lengths come from untrusted file fields, so the
// arithmetic must not overflow silently.
func checkBounds(off, length, size uint64) error {
	if off > size || length > size-off {
		return fmt.Errorf("%w: [%#x, +%#x) exceeds size %#x", ErrOutOfRange, off, length, size)
	}
	return nil
}

// BufferAllocator creates zero-filled Buffers, rounding sizes up to whole
// pages the way a kernel object store would.
type BufferAllocator struct{}

func (BufferAllocator) Create(size uint64) (Object, error) {
	if size > ^uint64(0)-(PageSize-1) {
		return nil, fmt.Errorf("%w: object size %#x", ErrOutOfRange, size)
	}
	rounded := (size + PageSize - 1) &^ (PageSize - 1)
	return NewBuffer(rounded), nil
}
