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

//go:build linux

package vm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapRegion is a Region backed by real process memory: a PROT_NONE
// reservation obtained once from the kernel, into which objects are placed
// with MAP_FIXED. File objects are mapped from their descriptor when the
// object offset is page-aligned; everything else is copied into a fresh
// anonymous mapping.
//
// Unmap restores the PROT_NONE reservation rather than punching a hole, so
// the range stays owned by this region.
type MmapRegion struct {
	base uintptr
	size uint64
	next uint64
}

func NewMmapRegion(size uint64) (*MmapRegion, error) {
	if size == 0 || size%PageSize != 0 {
		return nil, ErrBadAlignment
	}
	base, err := sysMmap(0, size, unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS, ^uintptr(0), 0)
	if err != nil {
		return nil, fmt.Errorf("%w: reserving %#x bytes: %v", ErrNoSpace, size, err)
	}
	return &MmapRegion{base: base, size: size}, nil
}

func (r *MmapRegion) Base() uintptr { return r.base }
func (r *MmapRegion) Len() uint64   { return r.size }

// Destroy releases the whole reservation and everything mapped inside it.
func (r *MmapRegion) Destroy() error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, r.base, uintptr(r.size), 0)
	if errno != 0 {
		return os.NewSyscallError("munmap", errno)
	}
	return nil
}

func (r *MmapRegion) Map(offset uint64, obj Object, objOff, length uint64, prot Prot) (uintptr, error) {
	if length == 0 || length%PageSize != 0 {
		return 0, ErrBadAlignment
	}
	if prot&MapSpecific == 0 {
		offset = r.next
	} else if offset%PageSize != 0 {
		return 0, ErrBadAlignment
	}
	if offset > r.size || length > r.size-offset {
		return 0, fmt.Errorf("%w: mapping [%#x, +%#x) exceeds region size %#x",
			ErrOutOfRange, offset, length, r.size)
	}
	target := r.base + uintptr(offset)

	if f, ok := obj.(*File); ok && objOff%PageSize == 0 && prot&ProtWrite == 0 {
		if _, err := sysMmap(target, length, sysProt(prot),
			unix.MAP_PRIVATE|unix.MAP_FIXED, f.Fd(), objOff); err != nil {
			return 0, fmt.Errorf("%w: mapping file at %#x: %v", ErrNoSpace, target, err)
		}
		r.advance(offset, length)
		return target, nil
	}

	// Copy path: anonymous pages, filled from the object, then protected.
	if _, err := sysMmap(target, length, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED, ^uintptr(0), 0); err != nil {
		return 0, fmt.Errorf("%w: mapping anonymous pages at %#x: %v", ErrNoSpace, target, err)
	}
	if objOff < obj.Size() {
		avail := obj.Size() - objOff
		if avail > length {
			avail = length
		}
		dst := unsafe.Slice((*byte)(unsafe.Pointer(target)), avail)
		if _, err := obj.ReadAt(dst, objOff); err != nil {
			return 0, err
		}
	}
	if err := r.Protect(target, length, prot); err != nil {
		return 0, err
	}
	r.advance(offset, length)
	return target, nil
}

// Unmap re-covers the range with PROT_NONE so it stays part of the
// reservation. No mapping table is kept, so unlike SimRegion any page-aligned
// in-region range is accepted, whether or not anything was mapped there.
func (r *MmapRegion) Unmap(addr uintptr, length uint64) error {
	if addr%uintptr(PageSize) != 0 || length%PageSize != 0 {
		return ErrBadAlignment
	}
	if addr < r.base || uint64(addr-r.base) > r.size || length > r.size-uint64(addr-r.base) {
		return ErrNotMapped
	}
	if _, err := sysMmap(addr, length, unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED, ^uintptr(0), 0); err != nil {
		return os.NewSyscallError("mmap", err)
	}
	return nil
}

func (r *MmapRegion) Protect(addr uintptr, length uint64, prot Prot) error {
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, addr, uintptr(length), uintptr(sysProt(prot)))
	if errno != 0 {
		return os.NewSyscallError("mprotect", errno)
	}
	return nil
}

// advance keeps the bump pointer for non-specific placements past the end of
// everything mapped so far.
func (r *MmapRegion) advance(offset, length uint64) {
	if end := offset + length; end > r.next {
		r.next = end
	}
}

func sysProt(p Prot) int {
	prot := 0
	if p&ProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

func sysMmap(addr uintptr, length uint64, prot, flags int, fd uintptr, off uint64) (uintptr, error) {
	p, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, uintptr(length),
		uintptr(prot), uintptr(flags), fd, uintptr(off))
	if errno != 0 {
		return 0, os.NewSyscallError("mmap", errno)
	}
	return p, nil
}
