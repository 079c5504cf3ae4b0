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
	"bytes"
	"debug/elf"
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capos-dev/elfload/pkg/vm"
)

// imageOpts are the header fields tests can bend to produce rejectable
// images. The on-disk layout always follows the native class; the ident
// bytes and header fields just claim whatever the test asks for.
type imageOpts struct {
	entry     uint64
	typ       elf.Type
	machine   elf.Machine
	class     elf.Class
	data      elf.Data
	version   uint8
	phentsize uint16
	phnum     uint16 // 0 means len(phdrs)
}

func defaultOpts() imageOpts {
	phent := uint16(phentSize64)
	if nativeClass[runtime.GOARCH] == elf.ELFCLASS32 {
		phent = phentSize32
	}
	return imageOpts{
		typ:       elf.ET_DYN,
		machine:   nativeMachine[runtime.GOARCH],
		class:     nativeClass[runtime.GOARCH],
		data:      nativeData,
		version:   uint8(elf.EV_CURRENT),
		phentsize: phent,
	}
}

// buildImage assembles a synthetic image: file header at offset 0, program
// header table right after it, and fileSize total bytes for the tests to
// fill with segment content.
func buildImage(tb testing.TB, o imageOpts, phdrs []elf.ProgHeader, fileSize uint64) *vm.Buffer {
	tb.Helper()

	class := nativeClass[runtime.GOARCH]
	ehSize := uint64(ehdrSize64)
	if class == elf.ELFCLASS32 {
		ehSize = ehdrSize32
	}

	phnum := uint16(len(phdrs))
	if o.phnum != 0 {
		phnum = o.phnum
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(o.class)
	ident[elf.EI_DATA] = byte(o.data)
	ident[elf.EI_VERSION] = o.version

	var w bytes.Buffer
	if class == elf.ELFCLASS64 {
		require.NoError(tb, binary.Write(&w, binary.LittleEndian, elf.Header64{
			Ident:     ident,
			Type:      uint16(o.typ),
			Machine:   uint16(o.machine),
			Version:   uint32(o.version),
			Entry:     o.entry,
			Phoff:     ehSize,
			Ehsize:    uint16(ehSize),
			Phentsize: o.phentsize,
			Phnum:     phnum,
		}))
		for _, ph := range phdrs {
			require.NoError(tb, binary.Write(&w, binary.LittleEndian, elf.Prog64{
				Type:   uint32(ph.Type),
				Flags:  uint32(ph.Flags),
				Off:    ph.Off,
				Vaddr:  ph.Vaddr,
				Paddr:  ph.Paddr,
				Filesz: ph.Filesz,
				Memsz:  ph.Memsz,
				Align:  ph.Align,
			}))
		}
	} else {
		require.NoError(tb, binary.Write(&w, binary.LittleEndian, elf.Header32{
			Ident:     ident,
			Type:      uint16(o.typ),
			Machine:   uint16(o.machine),
			Version:   uint32(o.version),
			Entry:     uint32(o.entry),
			Phoff:     uint32(ehSize),
			Ehsize:    uint16(ehSize),
			Phentsize: o.phentsize,
			Phnum:     phnum,
		}))
		for _, ph := range phdrs {
			require.NoError(tb, binary.Write(&w, binary.LittleEndian, elf.Prog32{
				Type:   uint32(ph.Type),
				Off:    uint32(ph.Off),
				Vaddr:  uint32(ph.Vaddr),
				Paddr:  uint32(ph.Paddr),
				Filesz: uint32(ph.Filesz),
				Memsz:  uint32(ph.Memsz),
				Flags:  uint32(ph.Flags),
				Align:  uint32(ph.Align),
			}))
		}
	}

	if fileSize < uint64(w.Len()) {
		fileSize = uint64(w.Len())
	}
	buf := vm.NewBuffer(fileSize)
	_, err := buf.WriteAt(w.Bytes(), 0)
	require.NoError(tb, err)
	return buf
}

// fillPattern writes a recognizable non-zero byte pattern at [off, off+n).
func fillPattern(tb testing.TB, buf *vm.Buffer, off, n uint64) []byte {
	tb.Helper()
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(0xa0 + i%89)
	}
	_, err := buf.WriteAt(p, off)
	require.NoError(tb, err)
	return p
}

func newTestRegion(tb testing.TB) *vm.SimRegion {
	tb.Helper()
	// 0x10000000 is a multiple of every page size in use.
	r, err := vm.NewSimRegion(0x10000000, 1024*vm.PageSize)
	require.NoError(tb, err)
	return r
}
