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
	"errors"
	"fmt"
	"runtime"

	"github.com/capos-dev/elfload/pkg/vm"
)

// ImageHeader carries the few file-header fields the rest of the load needs.
// It is produced once by ValidateHeader and immutable afterward.
type ImageHeader struct {
	PHNum uint16
	Entry uint64
	PHOff uint64
}

// pnXNum is the e_phnum sentinel indicating the real program header count
// lives in the section header table. debug/elf does not export it.
const pnXNum = 0xffff

const (
	ehdrSize64 = 64
	ehdrSize32 = 52

	phentSize64 = 56
	phentSize32 = 32
)

// nativeClass and nativeMachine pin the word size and machine type the
// loader accepts to the running platform. All supported platforms are
// little-endian.
var (
	nativeClass = map[string]elf.Class{
		"386":     elf.ELFCLASS32,
		"amd64":   elf.ELFCLASS64,
		"arm":     elf.ELFCLASS32,
		"arm64":   elf.ELFCLASS64,
		"riscv64": elf.ELFCLASS64,
		"loong64": elf.ELFCLASS64,
	}
	nativeMachine = map[string]elf.Machine{
		"386":     elf.EM_386,
		"amd64":   elf.EM_X86_64,
		"arm":     elf.EM_ARM,
		"arm64":   elf.EM_AARCH64,
		"riscv64": elf.EM_RISCV,
		"loong64": elf.EM_LOONGARCH,
	}
)

const nativeData = elf.ELFDATA2LSB

// ValidateHeader reads the ELF file header from src and checks that it
// describes a position-independent image for the running platform.
//
// Fixed-address (ET_EXEC) images are rejected unconditionally even though
// the format permits them: everything loaded through this library must be
// relocatable. Extended program header counts (e_phnum == 0xffff) are also
// rejected rather than misread.
func ValidateHeader(src vm.Object) (ImageHeader, error) {
	class, ok := nativeClass[runtime.GOARCH]
	if !ok {
		return ImageHeader{}, fmt.Errorf("elfload: unsupported host architecture %q", runtime.GOARCH)
	}
	machine := nativeMachine[runtime.GOARCH]

	ehSize := ehdrSize64
	wantPhentsize := uint16(phentSize64)
	if class == elf.ELFCLASS32 {
		ehSize = ehdrSize32
		wantPhentsize = phentSize32
	}

	buf := make([]byte, ehSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		if errors.Is(err, vm.ErrOutOfRange) {
			return ImageHeader{}, fmt.Errorf("%w: truncated file header", ErrBadFormat)
		}
		return ImageHeader{}, fmt.Errorf("%w: reading file header: %v", ErrIO, err)
	}

	if string(buf[:len(elf.ELFMAG)]) != elf.ELFMAG {
		return ImageHeader{}, fmt.Errorf("%w: bad magic", ErrBadFormat)
	}
	if c := elf.Class(buf[elf.EI_CLASS]); c != class {
		return ImageHeader{}, fmt.Errorf("%w: class %v, want %v", ErrBadFormat, c, class)
	}
	if d := elf.Data(buf[elf.EI_DATA]); d != nativeData {
		return ImageHeader{}, fmt.Errorf("%w: byte order %v, want %v", ErrBadFormat, d, nativeData)
	}
	if v := elf.Version(buf[elf.EI_VERSION]); v != elf.EV_CURRENT {
		return ImageHeader{}, fmt.Errorf("%w: header version %v", ErrBadFormat, v)
	}

	var (
		typ       elf.Type
		mach      elf.Machine
		phentsize uint16
		phnum     uint16
		hdr       ImageHeader
	)
	if class == elf.ELFCLASS64 {
		var h elf.Header64
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
			return ImageHeader{}, fmt.Errorf("%w: decoding file header: %v", ErrBadFormat, err)
		}
		typ, mach = elf.Type(h.Type), elf.Machine(h.Machine)
		phentsize, phnum = h.Phentsize, h.Phnum
		hdr = ImageHeader{PHNum: h.Phnum, Entry: h.Entry, PHOff: h.Phoff}
	} else {
		var h elf.Header32
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
			return ImageHeader{}, fmt.Errorf("%w: decoding file header: %v", ErrBadFormat, err)
		}
		typ, mach = elf.Type(h.Type), elf.Machine(h.Machine)
		phentsize, phnum = h.Phentsize, h.Phnum
		hdr = ImageHeader{PHNum: h.Phnum, Entry: uint64(h.Entry), PHOff: uint64(h.Phoff)}
	}

	if phentsize != wantPhentsize {
		return ImageHeader{}, fmt.Errorf("%w: program header entry size %d, want %d", ErrBadFormat, phentsize, wantPhentsize)
	}
	if phnum == pnXNum {
		return ImageHeader{}, fmt.Errorf("%w: extended program header count unsupported", ErrBadFormat)
	}
	if mach != machine {
		return ImageHeader{}, fmt.Errorf("%w: machine %v, want %v", ErrBadFormat, mach, machine)
	}
	if typ != elf.ET_DYN {
		return ImageHeader{}, fmt.Errorf("%w: type %v, only ET_DYN images are loadable", ErrBadFormat, typ)
	}

	return hdr, nil
}
