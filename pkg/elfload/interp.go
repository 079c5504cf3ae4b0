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

import "debug/elf"

// FindInterp returns the file offset and length of the first PT_INTERP
// entry, the interpreter path a dynamic-linker bootstrap should load, or
// ok == false when the image has none. The referenced bytes are not
// validated here; that is the caller's responsibility.
func FindInterp(phdrs []elf.ProgHeader) (off, length uint64, ok bool) {
	for i := range phdrs {
		if phdrs[i].Type == elf.PT_INTERP {
			return phdrs[i].Off, phdrs[i].Filesz, true
		}
	}
	return 0, 0, false
}
