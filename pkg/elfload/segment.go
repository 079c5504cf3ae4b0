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

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/capos-dev/elfload/pkg/vm"
)

type segStats struct {
	mappedBytes  uint64
	writableCopy bool
}

// Segment permission bits translate 1:1 to mapping permissions.
func protFor(f elf.ProgFlag) vm.Prot {
	var p vm.Prot
	if f&elf.PF_R != 0 {
		p |= vm.ProtRead
	}
	if f&elf.PF_W != 0 {
		p |= vm.ProtWrite
	}
	if f&elf.PF_X != 0 {
		p |= vm.ProtExec
	}
	return p
}

// loadSegment maps one PT_LOAD segment at its biased address. p_vaddr can
// start mid-page; the semantics are that all the whole pages containing
// [p_vaddr, p_vaddr+p_memsz) get mapped. Sums of file-supplied fields are
// overflow-checked; only the bias addition is allowed to wrap, since the
// bias is a modular displacement.
func loadSegment(target vm.Region, alloc vm.Allocator, src vm.Object, bias uint64, ph *elf.ProgHeader) (segStats, error) {
	var stats segStats

	if ph.Filesz > ph.Memsz {
		return stats, fmt.Errorf("%w: file size %#x exceeds memory size %#x", ErrBadFormat, ph.Filesz, ph.Memsz)
	}
	if _, ok := addU64(ph.Vaddr, ph.Memsz); !ok {
		return stats, fmt.Errorf("%w: segment end overflows", ErrBadFormat)
	}

	start := pageFloor(ph.Vaddr + bias)
	end, ok := pageCeil(ph.Vaddr + bias + ph.Memsz)
	if !ok {
		return stats, fmt.Errorf("%w: segment end overflows", ErrBadFormat)
	}
	size := end - start

	// Degenerate empty segment.
	if size == 0 {
		return stats, nil
	}

	fileEnd, ok := addU64(ph.Off, ph.Filesz)
	if !ok {
		return stats, fmt.Errorf("%w: segment file range overflows", ErrBadFormat)
	}
	partial := fileEnd & (vm.PageSize - 1)
	fileStart := pageFloor(ph.Off)
	fileEnd = pageFloor(fileEnd)

	dataEnd, ok := pageCeil(ph.Off + ph.Filesz)
	if !ok {
		return stats, fmt.Errorf("%w: segment file range overflows", ErrBadFormat)
	}
	dataSize := dataEnd - fileStart

	obj := src
	if ph.Flags&elf.PF_W != 0 && dataSize > 0 {
		// Writable segments get a private copy of their file bytes so the
		// mapping never dirties the borrowed source object. Offsets into
		// the copy are rebased to zero.
		copyObj, err := writableCopy(alloc, src, fileStart, dataSize)
		if err != nil {
			return stats, err
		}
		obj = copyObj
		fileEnd -= fileStart
		fileStart = 0
		stats.writableCopy = true
	}

	if err := finishLoadSegment(target, alloc, obj, ph, start, size, fileStart, fileEnd, partial); err != nil {
		return stats, err
	}
	stats.mappedBytes = size
	return stats, nil
}

// writableCopy builds a private object holding the page-rounded file byte
// span of a writable segment. The platform lacks copy-on-write file
// mappings; this copy is the stand-in, hidden behind the Object interface so
// the rest of the mapper does not know which strategy is active. Bytes past
// the end of the source within the final page read back as zeros, matching
// what a page-rounded file view would contain.
func writableCopy(alloc vm.Allocator, src vm.Object, fileStart, dataSize uint64) (vm.Object, error) {
	if fileStart >= src.Size() {
		return nil, fmt.Errorf("%w: segment data truncated", ErrBadFormat)
	}

	copyObj, err := alloc.Create(dataSize)
	if err != nil {
		return nil, fmt.Errorf("%w: creating writable copy: %v", ErrNoMemory, err)
	}

	avail := src.Size() - fileStart
	if avail > dataSize {
		avail = dataSize
	}

	buf := make([]byte, dataSize)
	n, err := src.ReadAt(buf[:avail], fileStart)
	if err != nil {
		return nil, fmt.Errorf("%w: reading segment data: %v", ErrIO, err)
	}
	if uint64(n) != avail {
		return nil, fmt.Errorf("%w: segment data truncated", ErrBadFormat)
	}
	written, err := copyObj.WriteAt(buf, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: writing segment copy: %v", ErrIO, err)
	}
	if written != len(buf) {
		return nil, fmt.Errorf("%w: short write filling segment copy", ErrIO)
	}
	return copyObj, nil
}

// finishLoadSegment performs the mapping calls for one segment whose
// geometry is already computed: a single call when file and memory sizes
// match, otherwise a file-backed mapping followed by an anonymous zero-fill
// mapping, with the partial page straddling the boundary fixed up by hand.
// Mapping failures abort the segment and propagate unchanged; mappings
// installed by earlier segments are left in place for the caller to tear
// down with the rest of the address space.
func finishLoadSegment(target vm.Region, alloc vm.Allocator, obj vm.Object, ph *elf.ProgHeader,
	start, size, fileStart, fileEnd, partial uint64,
) error {
	prot := protFor(ph.Flags) | vm.MapSpecific

	// Map offsets are relative to the region base. A start below the base
	// means the bias computation went wrong.
	base := uint64(target.Base())
	if start < base {
		return fmt.Errorf("%w: segment start %#x below region base %#x", ErrBadFormat, start, base)
	}
	startOffset := start - base

	if ph.Filesz == ph.Memsz {
		// Straightforward segment, map all the whole pages from the file.
		_, err := target.Map(startOffset, obj, fileStart, size, prot)
		return err
	}

	fileSize := fileEnd - fileStart

	// The segment has bss, so only the leading portion is mapped directly
	// from the file.
	if fileSize > 0 {
		addr, err := target.Map(startOffset, obj, fileStart, fileSize, prot)
		if err != nil {
			return err
		}
		startOffset = uint64(addr) - base + fileSize
		size -= fileSize
	}

	// The rest of the segment is backed by anonymous zero-filled memory.
	bss, err := alloc.Create(size)
	if err != nil {
		return fmt.Errorf("%w: creating bss object: %v", ErrNoMemory, err)
	}

	// The final partial page of initialized data falls into the region
	// backed by the anonymous object rather than the file, so those bytes
	// are read out of the file and copied in before the page goes live.
	if partial > 0 {
		buf := make([]byte, partial)
		if _, err := obj.ReadAt(buf, fileEnd); err != nil {
			if errors.Is(err, vm.ErrOutOfRange) {
				return fmt.Errorf("%w: segment data truncated", ErrBadFormat)
			}
			return fmt.Errorf("%w: reading partial page: %v", ErrIO, err)
		}
		if _, err := bss.WriteAt(buf, 0); err != nil {
			return fmt.Errorf("%w: writing partial page: %v", ErrIO, err)
		}
	}

	_, err = target.Map(startOffset, bss, 0, size, prot)
	return err
}
