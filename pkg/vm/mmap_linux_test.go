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
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newMmapRegion(tb testing.TB, pages uint64) *MmapRegion {
	tb.Helper()
	r, err := NewMmapRegion(pages * PageSize)
	require.NoError(tb, err)
	tb.Cleanup(func() { require.NoError(tb, r.Destroy()) })
	return r
}

func mapped(addr uintptr, n uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func TestMmapRegionCopyPathRoundTrip(t *testing.T) {
	r := newMmapRegion(t, 16)

	pattern := make([]byte, PageSize)
	for i := range pattern {
		pattern[i] = byte(0xa0 + i%89)
	}
	obj := NewBufferBytes(pattern)

	addr, err := r.Map(2*PageSize, obj, 0, PageSize, ProtRead|ProtWrite|MapSpecific)
	require.NoError(t, err)
	require.Equal(t, r.Base() + uintptr(2*PageSize), addr)

	mem := mapped(addr, PageSize)
	require.Equal(t, pattern, append([]byte(nil), mem...))

	// The pages are private copies: writing through the mapping must not
	// reach the source object.
	mem[0] = ^pattern[0]
	require.Equal(t, pattern[0], obj.Bytes()[0])
}

func TestMmapRegionFileFastPath(t *testing.T) {
	r := newMmapRegion(t, 16)

	content := make([]byte, 2*PageSize)
	for i := range content {
		content[i] = byte(0xa0 + i%89)
	}
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	// Page-aligned object offset and a non-writable prot take the
	// descriptor-backed path.
	addr, err := r.Map(0, f, PageSize, PageSize, ProtRead|MapSpecific)
	require.NoError(t, err)
	require.Equal(t, content[PageSize:], append([]byte(nil), mapped(addr, PageSize)...))
}

func TestMmapRegionUnmapKeepsReservation(t *testing.T) {
	r := newMmapRegion(t, 8)

	pattern := make([]byte, PageSize)
	for i := range pattern {
		pattern[i] = byte(i)
	}
	addr, err := r.Map(PageSize, NewBufferBytes(pattern), 0, PageSize, ProtRead|MapSpecific)
	require.NoError(t, err)

	require.NoError(t, r.Unmap(addr, PageSize))

	// The range is still owned by the region: mapping the same offset again
	// succeeds and yields fresh content, not the old bytes.
	addr2, err := r.Map(PageSize, NewBuffer(PageSize), 0, PageSize, ProtRead|MapSpecific)
	require.NoError(t, err)
	require.Equal(t, addr, addr2)
	for _, b := range mapped(addr2, PageSize) {
		require.Zero(t, b)
	}
}

func TestMmapRegionUnmapValidation(t *testing.T) {
	r := newMmapRegion(t, 8)

	// No mapping table is kept: an aligned in-region range that was never
	// mapped unmaps successfully.
	require.NoError(t, r.Unmap(r.Base() + uintptr(2*PageSize), PageSize))

	require.ErrorIs(t, r.Unmap(r.Base() + 1, PageSize), ErrBadAlignment)
	require.ErrorIs(t, r.Unmap(r.Base(), PageSize+1), ErrBadAlignment)
	require.ErrorIs(t, r.Unmap(r.Base() - uintptr(PageSize), PageSize), ErrNotMapped)
	require.ErrorIs(t, r.Unmap(r.Base() + uintptr(8*PageSize), PageSize), ErrNotMapped)
}

func TestMmapRegionAnywherePlacementAdvances(t *testing.T) {
	r := newMmapRegion(t, 8)

	first, err := r.Map(0, NewBuffer(PageSize), 0, 2*PageSize, ProtRead)
	require.NoError(t, err)
	require.Equal(t, r.Base(), first)

	second, err := r.Map(0, NewBuffer(PageSize), 0, PageSize, ProtRead)
	require.NoError(t, err)
	require.Equal(t, first + uintptr(2*PageSize), second)
}

func TestMmapRegionRejections(t *testing.T) {
	_, err := NewMmapRegion(0)
	require.ErrorIs(t, err, ErrBadAlignment)
	_, err = NewMmapRegion(PageSize + 1)
	require.ErrorIs(t, err, ErrBadAlignment)

	r := newMmapRegion(t, 4)
	obj := NewBuffer(PageSize)

	_, err = r.Map(0, obj, 0, 0, ProtRead|MapSpecific)
	require.ErrorIs(t, err, ErrBadAlignment)
	_, err = r.Map(0, obj, 0, PageSize-1, ProtRead|MapSpecific)
	require.ErrorIs(t, err, ErrBadAlignment)
	_, err = r.Map(1, obj, 0, PageSize, ProtRead|MapSpecific)
	require.ErrorIs(t, err, ErrBadAlignment)
	_, err = r.Map(4*PageSize, obj, 0, PageSize, ProtRead|MapSpecific)
	require.ErrorIs(t, err, ErrOutOfRange)
}
