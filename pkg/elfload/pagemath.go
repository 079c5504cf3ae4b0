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

import "github.com/capos-dev/elfload/pkg/vm"

func pageFloor(v uint64) uint64 {
	return v &^ (vm.PageSize - 1)
}

// pageCeil rounds v up to a page boundary. ok is false if rounding would
// wrap; v comes from sums of file-supplied fields, so the caller must treat
// that as a format error rather than let it wrap silently.
func pageCeil(v uint64) (res uint64, ok bool) {
	if v > ^uint64(0)-(vm.PageSize-1) {
		return 0, false
	}
	return (v + vm.PageSize - 1) &^ (vm.PageSize - 1), true
}

// addU64 adds two file-supplied values with an explicit overflow check.
func addU64(a, b uint64) (sum uint64, ok bool) {
	if b > ^uint64(0)-a {
		return 0, false
	}
	return a + b, true
}
