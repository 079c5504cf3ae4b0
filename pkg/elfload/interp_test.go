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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindInterp(t *testing.T) {
	phdrs := []elf.ProgHeader{
		{Type: elf.PT_PHDR, Off: 0x40, Filesz: 0x1f8},
		{Type: elf.PT_INTERP, Off: 0x238, Filesz: 0x1c},
		{Type: elf.PT_LOAD, Off: 0, Filesz: 0x1000, Memsz: 0x1000},
		{Type: elf.PT_INTERP, Off: 0x999, Filesz: 0x2},
	}

	off, length, ok := FindInterp(phdrs)
	require.True(t, ok)
	require.Equal(t, uint64(0x238), off, "the first PT_INTERP entry wins")
	require.Equal(t, uint64(0x1c), length)
}

func TestFindInterpNotFound(t *testing.T) {
	_, _, ok := FindInterp([]elf.ProgHeader{
		{Type: elf.PT_LOAD, Filesz: 0x1000, Memsz: 0x1000},
	})
	require.False(t, ok)

	_, _, ok = FindInterp(nil)
	require.False(t, ok)
}
