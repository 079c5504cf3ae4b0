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

// Package elfload maps position-independent ELF images into an address
// space. Given a memory object holding the image and an address-space
// region capability, it validates the file header, picks a load location,
// and maps each PT_LOAD segment with the right permissions, page alignment,
// and zero-filled bss tail, returning the load bias and biased entry point.
//
// The loader establishes the static memory image only. Dynamic linking --
// relocations, symbol resolution, TLS -- is a separate stage; FindInterp
// hands that stage the interpreter path location when the image requests
// one.
//
// A load is synchronous and requires exclusive use of the target region:
// the bias is discovered with a reserve-then-release probe, so a concurrent
// mapper in the same region could steal the chosen range.
package elfload

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/capos-dev/elfload/pkg/vm"
)

// LoadResult is the control-transfer information for a completed load.
type LoadResult struct {
	// Base is the load bias: the displacement added to every virtual
	// address recorded in the file.
	Base uintptr
	// Entry is the biased entry point. An entry of 0 in the file means
	// the image is not meant to be entered directly and passes through
	// unbiased.
	Entry uintptr
}

type loadStats struct {
	segments       int
	mappedBytes    uint64
	writableCopies int
}

// MapSegments chooses a load bias and maps every PT_LOAD segment of the
// image into target, in file order. The first failing segment aborts the
// load; mappings from earlier segments are not unwound (the caller owns the
// target address space and destroys it wholesale on failure).
func MapSegments(target vm.Region, alloc vm.Allocator, hdr ImageHeader, phdrs []elf.ProgHeader, src vm.Object) (LoadResult, error) {
	res, _, err := mapSegments(target, alloc, hdr, phdrs, src)
	return res, err
}

func mapSegments(target vm.Region, alloc vm.Allocator, hdr ImageHeader, phdrs []elf.ProgHeader, src vm.Object) (LoadResult, loadStats, error) {
	var stats loadStats

	bias, err := chooseLoadBias(target, alloc, phdrs)
	if err != nil {
		return LoadResult{}, stats, err
	}

	for i := range phdrs {
		if phdrs[i].Type != elf.PT_LOAD {
			continue
		}
		s, err := loadSegment(target, alloc, src, bias, &phdrs[i])
		if err != nil {
			return LoadResult{}, stats, fmt.Errorf("segment %d: %w", i, err)
		}
		stats.segments++
		stats.mappedBytes += s.mappedBytes
		if s.writableCopy {
			stats.writableCopies++
		}
	}

	res := LoadResult{Base: uintptr(bias)}
	if hdr.Entry != 0 {
		res.Entry = uintptr(hdr.Entry + bias)
	}
	return res, stats, nil
}

// Loader bundles the capability for creating anonymous objects with logging
// and metrics. The zero-dependency path is the package-level functions;
// Loader is the instrumented front door.
type Loader struct {
	logger  log.Logger
	metrics *metrics
	alloc   vm.Allocator
}

func New(logger log.Logger, reg prometheus.Registerer, alloc vm.Allocator) *Loader {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Loader{
		logger:  log.With(logger, "component", "elfload"),
		metrics: newMetrics(reg),
		alloc:   alloc,
	}
}

// Load validates src, reads its program header table, and maps the image
// into target. It requires exclusive use of target for the duration of the
// call.
func (l *Loader) Load(target vm.Region, src vm.Object) (LoadResult, error) {
	hdr, err := ValidateHeader(src)
	if err != nil {
		l.metrics.loadsTotal.WithLabelValues(outcome(err)).Inc()
		return LoadResult{}, err
	}
	level.Debug(l.logger).Log("msg", "validated image header",
		"phnum", hdr.PHNum, "entry", fmt.Sprintf("%#x", hdr.Entry))

	phdrs, err := ReadProgramHeaders(src, hdr.PHOff, hdr.PHNum)
	if err != nil {
		l.metrics.loadsTotal.WithLabelValues(outcome(err)).Inc()
		return LoadResult{}, err
	}

	res, stats, err := mapSegments(target, l.alloc, hdr, phdrs, src)
	if err != nil {
		l.metrics.loadsTotal.WithLabelValues(outcome(err)).Inc()
		return LoadResult{}, err
	}

	l.metrics.loadsTotal.WithLabelValues("success").Inc()
	l.metrics.segmentsMapped.Add(float64(stats.segments))
	l.metrics.bytesMapped.Add(float64(stats.mappedBytes))
	l.metrics.writableCopies.Add(float64(stats.writableCopies))

	level.Debug(l.logger).Log("msg", "image loaded",
		"base", fmt.Sprintf("%#x", res.Base),
		"entry", fmt.Sprintf("%#x", res.Entry),
		"segments", stats.segments,
		"mapped_bytes", stats.mappedBytes,
		"writable_copies", stats.writableCopies)
	return res, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrBadFormat):
		return "bad_format"
	case errors.Is(err, ErrNoMemory):
		return "no_memory"
	case errors.Is(err, ErrIO):
		return "io_error"
	default:
		return "error"
	}
}
