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

// Package vm models the two capabilities the loader works against: memory
// objects (linear, bounds-checked byte ranges, possibly file-backed) and
// address-space regions (mappable slices of a virtual address space). The
// loader core treats both as opaque; this package also provides concrete
// in-memory and mmap-backed implementations.
package vm

import (
	"errors"
	"os"
)

// PageSize is the granularity of all mapping arithmetic.
var PageSize = uint64(os.Getpagesize())

// Prot is a set of mapping permission and placement flags.
type Prot uint32

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec

	// MapSpecific asks Region.Map to place the mapping exactly at the
	// requested region offset instead of choosing an unused range.
	MapSpecific
)

// String renders the permission bits in ls -l style, e.g. "r-x".
func (p Prot) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

var (
	ErrOutOfRange    = errors.New("vm: access out of range")
	ErrAccessDenied  = errors.New("vm: access denied")
	ErrAlreadyMapped = errors.New("vm: address range already mapped")
	ErrNotMapped     = errors.New("vm: address range not mapped")
	ErrNoSpace       = errors.New("vm: no address space available")
	ErrBadAlignment  = errors.New("vm: address or length not page-aligned")
)

// Object is a memory object capability. Accesses are bounded: any read or
// write extending past Size must fail without partial effect.
type Object interface {
	Size() uint64
	ReadAt(p []byte, off uint64) (int, error)
	WriteAt(p []byte, off uint64) (int, error)
}

// Allocator creates fresh zero-filled memory objects. It is passed around
// explicitly rather than living in a package global so callers control which
// backing store anonymous objects come from.
type Allocator interface {
	Create(size uint64) (Object, error)
}

// Region is an address-space region capability.
//
// Map places length bytes of obj starting at objOff into the region. With
// MapSpecific the mapping lands exactly at the given region-relative offset;
// otherwise the region chooses an unused range and offset is ignored. The
// returned address is absolute.
type Region interface {
	Base() uintptr
	Len() uint64
	Map(offset uint64, obj Object, objOff, length uint64, prot Prot) (uintptr, error)
	Unmap(addr uintptr, length uint64) error
	Protect(addr uintptr, length uint64, prot Prot) error
}
