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

// Command elfload loads a position-independent ELF image into a simulated
// address-space region and reports the resulting layout: load bias, entry
// point, interpreter path, and every mapping with its permissions. Nothing
// is executed; the tool exists to inspect what a real load would produce.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/capos-dev/elfload/pkg/elfload"
	"github.com/capos-dev/elfload/pkg/vm"
)

type flags struct {
	Path string `arg:"" type:"existingfile" help:"ELF image to load."`

	LogLevel     string `default:"info" enum:"error,warn,info,debug" help:"Log level."`
	LogFormat    string `default:"logfmt" enum:"logfmt,json" help:"Log format."`
	RegionBase   uint64 `default:"4294967296" help:"Base address of the simulated address-space region."`
	RegionSize   string `default:"1GiB" help:"Size of the simulated address-space region."`
	PrintMetrics bool   `help:"Dump loader metrics in Prometheus text format after the load."`
}

func main() {
	f := &flags{}
	kong.Parse(f,
		kong.Name("elfload"),
		kong.Description("Inspect how a position-independent ELF image would be loaded."))

	serverStr := figure.NewColorFigure("elfload", "roman", "cyan", true)
	serverStr.Print()

	logger := newLogger(f.LogLevel, f.LogFormat)
	registry := prometheus.NewRegistry()

	regionSize, err := humanize.ParseBytes(f.RegionSize)
	if err != nil {
		level.Error(logger).Log("msg", "invalid region size", "value", f.RegionSize, "err", err)
		os.Exit(1)
	}

	src, err := vm.OpenFile(f.Path)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open image", "path", f.Path, "err", err)
		os.Exit(1)
	}
	defer src.Close()

	region, err := vm.NewSimRegion(uintptr(f.RegionBase), regionSize)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create region", "err", err)
		os.Exit(1)
	}

	loader := elfload.New(logger, registry, vm.BufferAllocator{})
	res, err := loader.Load(region, src)
	if err != nil {
		level.Error(logger).Log("msg", "load failed", "path", f.Path, "err", err)
		os.Exit(1)
	}

	fmt.Printf("image:     %s\n", f.Path)
	fmt.Printf("load bias: %#x\n", res.Base)
	if res.Entry != 0 {
		fmt.Printf("entry:     %#x\n", res.Entry)
	} else {
		fmt.Printf("entry:     none\n")
	}

	if interp, ok := readInterp(src); ok {
		fmt.Printf("interp:    %s\n", interp)
	}

	fmt.Printf("\nmappings:\n")
	for _, m := range region.Mappings() {
		fmt.Printf("  %#012x  %-10s %s\n", m.Addr, humanize.IBytes(m.Size), m.Prot)
	}

	if f.PrintMetrics {
		if err := printMetrics(registry); err != nil {
			level.Error(logger).Log("msg", "failed to print metrics", "err", err)
			os.Exit(1)
		}
	}
}

// readInterp re-reads the program headers to find the interpreter path.
// Validation is idempotent, so going through the front door twice is fine.
func readInterp(src vm.Object) (string, bool) {
	hdr, err := elfload.ValidateHeader(src)
	if err != nil {
		return "", false
	}
	phdrs, err := elfload.ReadProgramHeaders(src, hdr.PHOff, hdr.PHNum)
	if err != nil {
		return "", false
	}
	off, length, ok := elfload.FindInterp(phdrs)
	if !ok || length == 0 {
		return "", false
	}
	buf := make([]byte, length)
	if _, err := src.ReadAt(buf, off); err != nil {
		return "", false
	}
	return string(bytes.TrimRight(buf, "\x00")), true
}

func printMetrics(registry *prometheus.Registry) error {
	mfs, err := registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
