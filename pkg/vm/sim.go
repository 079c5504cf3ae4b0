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
	"sort"
)

// SimRegion is a deterministic, in-process Region. Mappings materialize a
// private copy of the object bytes at map time, so mapped memory can be read
// back byte-for-byte without any real page tables. It backs the tests and
// the inspection CLI.
type SimRegion struct {
	base     uintptr
	size     uint64
	mappings []*simMapping // sorted by addr, non-overlapping
}

type simMapping struct {
	addr uintptr
	size uint64
	prot Prot
	data []byte
}

// Mapping describes one established mapping, for reporting.
type Mapping struct {
	Addr uintptr
	Size uint64
	Prot Prot
}

func NewSimRegion(base uintptr, size uint64) (*SimRegion, error) {
	if uint64(base)%PageSize != 0 || size%PageSize != 0 || size == 0 {
		return nil, ErrBadAlignment
	}
	return &SimRegion{base: base, size: size}, nil
}

func (r *SimRegion) Base() uintptr { return r.base }
func (r *SimRegion) Len() uint64   { return r.size }

// Mappings returns the current mappings in ascending address order.
func (r *SimRegion) Mappings() []Mapping {
	out := make([]Mapping, len(r.mappings))
	for i, m := range r.mappings {
		out[i] = Mapping{Addr: m.addr, Size: m.size, Prot: m.prot &^ MapSpecific}
	}
	return out
}

func (r *SimRegion) Map(offset uint64, obj Object, objOff, length uint64, prot Prot) (uintptr, error) {
	if length == 0 || length%PageSize != 0 {
		return 0, ErrBadAlignment
	}
	if prot&MapSpecific != 0 {
		if offset%PageSize != 0 {
			return 0, ErrBadAlignment
		}
		if offset > r.size || length > r.size-offset {
			return 0, fmt.Errorf("%w: mapping [%#x, +%#x) exceeds region size %#x",
				ErrOutOfRange, offset, length, r.size)
		}
		if r.overlaps(offset, length) {
			return 0, ErrAlreadyMapped
		}
	} else {
		free, ok := r.findFree(length)
		if !ok {
			return 0, ErrNoSpace
		}
		offset = free
	}

	// Materialize the object bytes. Like a real pager, bytes past the end
	// of the object read back as zeros.
	data := make([]byte, length)
	if objOff < obj.Size() {
		avail := obj.Size() - objOff
		if avail > length {
			avail = length
		}
		if _, err := obj.ReadAt(data[:avail], objOff); err != nil {
			return 0, err
		}
	}

	m := &simMapping{addr: r.base + uintptr(offset), size: length, prot: prot, data: data}
	r.mappings = append(r.mappings, m)
	sort.Slice(r.mappings, func(i, j int) bool { return r.mappings[i].addr < r.mappings[j].addr })
	return m.addr, nil
}

func (r *SimRegion) Unmap(addr uintptr, length uint64) error {
	for i, m := range r.mappings {
		if m.addr == addr && m.size == length {
			r.mappings = append(r.mappings[:i], r.mappings[i+1:]...)
			return nil
		}
	}
	return ErrNotMapped
}

func (r *SimRegion) Protect(addr uintptr, length uint64, prot Prot) error {
	for _, m := range r.mappings {
		if m.addr == addr && m.size == length {
			m.prot = prot
			return nil
		}
	}
	return ErrNotMapped
}

// ReadAt reads mapped memory at an absolute address. The whole range must
// fall within a single mapping.
func (r *SimRegion) ReadAt(p []byte, addr uintptr) (int, error) {
	for _, m := range r.mappings {
		if addr >= m.addr && uint64(addr-m.addr)+uint64(len(p)) <= m.size {
			return copy(p, m.data[addr-m.addr:]), nil
		}
	}
	return 0, ErrNotMapped
}

func (r *SimRegion) overlaps(offset, length uint64) bool {
	start := r.base + uintptr(offset)
	for _, m := range r.mappings {
		if start < m.addr+uintptr(m.size) && m.addr < start+uintptr(length) {
			return true
		}
	}
	return false
}

// findFree returns the lowest region offset with length bytes unmapped.
func (r *SimRegion) findFree(length uint64) (uint64, bool) {
	next := r.base
	for _, m := range r.mappings {
		if uintptr(length) <= m.addr-next {
			return uint64(next - r.base), true
		}
		next = m.addr + uintptr(m.size)
	}
	if length <= r.size-uint64(next-r.base) {
		return uint64(next - r.base), true
	}
	return 0, false
}
