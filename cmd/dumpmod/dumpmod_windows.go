// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Command dumpmod loads a module into the current process and dumps the
// requested pieces of its in-memory image.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/TheBlaster041/iw8-mod/nt"
	"github.com/TheBlaster041/iw8-mod/pe"
)

var dumpHeaders bool
var dumpSections bool
var dumpTLS bool
var dumpImports bool

func init() {
	flag.Usage = usage
	flag.BoolVar(&dumpHeaders, "headers", false, "dump essential headers")
	flag.BoolVar(&dumpSections, "sections", false, "dump section headers")
	flag.BoolVar(&dumpTLS, "tls", false, "dump TLS callbacks")
	flag.BoolVar(&dumpImports, "imports", false, "dump imported modules")
	flag.Parse()
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(flag.CommandLine.Output(), "  [moduleName]\n\tmodule to load and dump (default: current process)")
}

func main() {
	pe.DebugLog = log.Printf

	var mod nt.Module
	if name := flag.Arg(0); name != "" {
		mod = nt.Load(name)
		if !mod.IsValid() {
			log.Fatalf("error loading %q", name)
		}
		defer mod.Free()
	} else {
		mod = nt.CurrentProcess()
	}

	img, err := mod.Image()
	if err != nil {
		log.Fatalf("error parsing image for %q: %v", mod.Name(), err)
	}

	if dumpHeaders {
		runDumpHeaders(mod, img)
	}
	if dumpSections {
		runDumpSections(img)
	}
	if dumpTLS {
		runDumpTLS(img)
	}
	if dumpImports {
		runDumpImports(img)
	}
}

func runDumpHeaders(mod nt.Module, img *pe.Image) {
	fmt.Printf("Base:       0x%016X\n", img.Base())
	fmt.Printf("Size:       0x%08X\n", img.SizeOfImage())
	fmt.Printf("EntryPoint: 0x%016X (RVA 0x%08X)\n", mod.EntryPoint(), img.EntryPointRVA())
	fmt.Printf("Checksum:   0x%08X\n", mod.Checksum())
	if vn, err := mod.Version(); err == nil {
		fmt.Printf("Version:    %s\n", vn.String())
	}
	fmt.Printf("\nFileHeader:\n\n%#v\n\n", *(img.FileHeader()))
}

func runDumpSections(img *pe.Image) {
	sections := img.Sections()
	fmt.Printf("%d sections:\n\n", len(sections))
	for i, sec := range sections {
		fmt.Printf("Index %2d: %s\n%#v\n\n", i, sec.NameString(), *sec)
	}
}

func runDumpTLS(img *pe.Image) {
	callbacks, err := img.TLSCallbacks()
	if err != nil {
		log.Fatalf("error walking TLS callbacks: %v", err)
	}
	fmt.Printf("%d TLS callbacks:\n\n", len(callbacks))
	for i, cb := range callbacks {
		fmt.Printf("%2d: 0x%016X\n", i, cb)
	}
}

func runDumpImports(img *pe.Image) {
	imports, err := img.ImportedModules()
	if err != nil {
		log.Fatalf("error walking import descriptors: %v", err)
	}
	fmt.Printf("%d imported modules:\n\n", len(imports))
	for i, name := range imports {
		fmt.Printf("%2d: %s\n", i, name)
	}
}
