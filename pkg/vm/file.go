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

import (
	"fmt"
	"math"
	"os"
)

// File is a read-only Object backed by an open file. The loader borrows it
// for the duration of a load and never writes through it.
type File struct {
	f    *os.File
	size uint64
}

func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	fo, err := NewFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return fo, nil
}

// NewFile wraps an already-open file. The File takes ownership of f.
func NewFile(f *os.File) (*File, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	return &File{f: f, size: uint64(st.Size())}, nil
}

func (f *File) Size() uint64 { return f.size }

// Fd exposes the underlying descriptor for regions that can map files
// directly.
func (f *File) Fd() uintptr { return f.f.Fd() }

func (f *File) Close() error { return f.f.Close() }

func (f *File) ReadAt(p []byte, off uint64) (int, error) {
	if err := checkBounds(off, uint64(len(p)), f.size); err != nil {
		return 0, err
	}
	if off > math.MaxInt64 {
		return 0, fmt.Errorf("%w: offset %#x", ErrOutOfRange, off)
	}
	n, err := f.f.ReadAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("failed to read image at %#x: %w", off, err)
	}
	return n, nil
}

func (f *File) WriteAt(p []byte, off uint64) (int, error) {
	return 0, ErrAccessDenied
}
