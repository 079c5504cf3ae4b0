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

// ReadProgramHeaders reads the whole program header table in one bounded
// read and decodes it. A table extending past the end of the source is a
// format error (truncated file). Entries are returned uninterpreted;
// classification by type is up to the consumers.
func ReadProgramHeaders(src vm.Object, phoff uint64, phnum uint16) ([]elf.ProgHeader, error) {
	if phnum == 0 {
		return nil, nil
	}

	class, ok := nativeClass[runtime.GOARCH]
	if !ok {
		return nil, fmt.Errorf("elfload: unsupported host architecture %q", runtime.GOARCH)
	}
	entSize := uint64(phentSize64)
	if class == elf.ELFCLASS32 {
		entSize = phentSize32
	}

	// phnum is bounded by uint16 so this product cannot overflow, but the
	// file-supplied table offset can push the read out of range; the
	// bounded ReadAt catches that.
	buf := make([]byte, uint64(phnum)*entSize)
	if _, err := src.ReadAt(buf, phoff); err != nil {
		if errors.Is(err, vm.ErrOutOfRange) {
			return nil, fmt.Errorf("%w: truncated program header table", ErrBadFormat)
		}
		return nil, fmt.Errorf("%w: reading program header table: %v", ErrIO, err)
	}

	r := bytes.NewReader(buf)
	phdrs := make([]elf.ProgHeader, phnum)
	for i := range phdrs {
		if class == elf.ELFCLASS64 {
			var p elf.Prog64
			if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
				return nil, fmt.Errorf("%w: decoding program header %d: %v", ErrBadFormat, i, err)
			}
			phdrs[i] = elf.ProgHeader{
				Type:   elf.ProgType(p.Type),
				Flags:  elf.ProgFlag(p.Flags),
				Off:    p.Off,
				Vaddr:  p.Vaddr,
				Paddr:  p.Paddr,
				Filesz: p.Filesz,
				Memsz:  p.Memsz,
				Align:  p.Align,
			}
		} else {
			var p elf.Prog32
			if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
				return nil, fmt.Errorf("%w: decoding program header %d: %v", ErrBadFormat, i, err)
			}
			phdrs[i] = elf.ProgHeader{
				Type:   elf.ProgType(p.Type),
				Flags:  elf.ProgFlag(p.Flags),
				Off:    uint64(p.Off),
				Vaddr:  uint64(p.Vaddr),
				Paddr:  uint64(p.Paddr),
				Filesz: uint64(p.Filesz),
				Memsz:  uint64(p.Memsz),
				Align:  uint64(p.Align),
			}
		}
	}
	return phdrs, nil
}
