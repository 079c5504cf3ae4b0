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
	"fmt"

	"github.com/capos-dev/elfload/pkg/vm"
)

// chooseLoadBias picks where in the target region the image will live. An
// ET_DYN image can be loaded anywhere, so compute the total span all
// PT_LOAD segments will need and let the region pick an unused range of
// that size. The bias is the difference between p_vaddr values in the file
// and actual runtime addresses. (Usually the lowest p_vaddr in an ET_DYN
// file is 0 and the bias is also the load base, but the format does not
// require that.)
//
// The region API has no "reserve without mapping" primitive, so this maps a
// throwaway object over the span to learn an address and immediately unmaps
// it. That is only safe because the caller guarantees nothing else maps into
// the target region during the load; a concurrent mapper could steal the
// range between the unmap and the segment mappings.
func chooseLoadBias(target vm.Region, alloc vm.Allocator, phdrs []elf.ProgHeader) (uint64, error) {
	var low, high uint64
	for i := range phdrs {
		if phdrs[i].Type != elf.PT_LOAD {
			continue
		}
		j := len(phdrs) - 1
		for j > i && phdrs[j].Type != elf.PT_LOAD {
			j--
		}
		end, ok := addU64(phdrs[j].Vaddr, phdrs[j].Memsz)
		if !ok {
			return 0, fmt.Errorf("%w: segment end overflows", ErrBadFormat)
		}
		if high, ok = pageCeil(end); !ok {
			return 0, fmt.Errorf("%w: segment end overflows", ErrBadFormat)
		}
		low = pageFloor(phdrs[i].Vaddr)
		break
	}

	// PT_LOAD entries are required to be sorted by ascending p_vaddr; a
	// low above high means the file violates that.
	if low > high {
		return 0, fmt.Errorf("%w: PT_LOAD segments out of order", ErrBadFormat)
	}

	span := high - low
	if span == 0 {
		return 0, nil
	}

	// Map requires some backing object, so create an empty one.
	probe, err := alloc.Create(0)
	if err != nil {
		return 0, fmt.Errorf("%w: creating reservation object: %v", ErrNoMemory, err)
	}
	base, err := target.Map(0, probe, 0, span, vm.ProtRead)
	if err != nil {
		return 0, fmt.Errorf("%w: reserving %#x bytes: %v", ErrNoMemory, span, err)
	}
	if err := target.Unmap(base, span); err != nil {
		return 0, fmt.Errorf("%w: releasing reservation: %v", ErrNoMemory, err)
	}

	return uint64(base) - low, nil
}
