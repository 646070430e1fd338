// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package nt

import (
	"errors"
	"strings"
	"testing"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/TheBlaster041/iw8-mod/pe"
)

func TestInvalidModuleSentinels(t *testing.T) {
	var m Module

	if m.IsValid() {
		t.Error("zero Module reported valid")
	}
	if got := m.Path(); got != "" {
		t.Errorf("Path: got %q, want \"\"", got)
	}
	if got := m.Name(); got != "" {
		t.Errorf("Name: got %q, want \"\"", got)
	}
	if got := m.EntryPoint(); got != 0 {
		t.Errorf("EntryPoint: got %#x, want 0", got)
	}
	if got := m.Checksum(); got != 0 {
		t.Errorf("Checksum: got %d, want 0", got)
	}
	if _, err := m.Image(); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("Image: got %v, want ErrInvalidModule", err)
	}
	if _, err := m.IATEntry("kernel32.dll", "WriteFile"); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("IATEntry: got %v, want ErrInvalidModule", err)
	}
	if _, err := m.Unprotect(); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("Unprotect: got %v, want ErrInvalidModule", err)
	}
	if _, err := m.ExportByName("WriteFile"); !errors.Is(err, ErrInvalidModule) {
		t.Errorf("ExportByName: got %v, want ErrInvalidModule", err)
	}
	m.Free() // must not crash
}

func TestLoadAndIntrospectKernel32(t *testing.T) {
	// kernel32 is always implicitly loaded
	m := Load("kernel32.dll")
	if !m.IsValid() {
		t.Fatal("Load(kernel32.dll) returned an invalid module")
	}
	defer m.Free()

	if other := Existing("kernel32.dll"); other != m {
		t.Errorf("Existing and Load disagree: %#x vs %#x", other.Base(), m.Base())
	}
	if !strings.EqualFold(m.Name(), "kernel32.dll") {
		t.Errorf("Name: got %q", m.Name())
	}
	if m.Folder() == "" {
		t.Error("Folder returned \"\"")
	}
	if m.Checksum() == 0 {
		t.Error("Checksum returned 0 for a readable file")
	}

	img, err := m.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if img.Base() != m.Base() {
		t.Errorf("image base %#x != module base %#x", img.Base(), m.Base())
	}
	if len(img.Sections()) == 0 {
		t.Error("no sections enumerated")
	}
	if _, err := img.TLSCallbacks(); err != nil {
		t.Errorf("TLSCallbacks: %v", err)
	}

	imports, err := img.ImportedModules()
	if err != nil {
		t.Fatalf("ImportedModules: %v", err)
	}
	foundNtdll := false
	for _, name := range imports {
		if strings.EqualFold(name, "ntdll.dll") {
			foundNtdll = true
			break
		}
	}
	if !foundNtdll {
		t.Errorf("kernel32 import list %v does not mention ntdll.dll", imports)
	}
}

func TestFromAddress(t *testing.T) {
	k32 := Existing("kernel32.dll")
	if !k32.IsValid() {
		t.Fatal("kernel32.dll not loaded")
	}

	addr, err := k32.ExportByName("WriteFile")
	if err != nil {
		t.Fatalf("ExportByName(WriteFile): %v", err)
	}

	owner := FromAddress(addr)
	// WriteFile may live in kernel32 or be an export forwarder; either way
	// the owning module must be valid and named like a kernel DLL.
	if !owner.IsValid() {
		t.Fatal("FromAddress returned an invalid module")
	}
	if !strings.HasPrefix(strings.ToLower(owner.Name()), "kernel") {
		t.Errorf("owner of WriteFile: got %q", owner.Name())
	}
}

func TestIATEntryAgainstLoader(t *testing.T) {
	self := CurrentProcess()
	if !self.IsValid() {
		t.Fatal("CurrentProcess returned an invalid module")
	}

	// Go binaries carry a small kernel32 import table; pick the first entry
	// we can resolve rather than assuming a specific linker version.
	img, err := self.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	imports, err := img.ImportedModules()
	if err != nil {
		t.Fatalf("ImportedModules: %v", err)
	}
	t.Logf("import table: %v", imports)

	for _, candidate := range []string{"WriteFile", "ExitProcess", "VirtualAlloc"} {
		slot, err := self.IATEntry("kernel32.dll", candidate)
		if errors.Is(err, pe.ErrNotFound) {
			continue
		}
		if err != nil {
			t.Fatalf("IATEntry(kernel32.dll, %s): %v", candidate, err)
		}

		want, err := Existing("kernel32.dll").ExportByName(candidate)
		if err != nil {
			t.Fatalf("ExportByName(%s): %v", candidate, err)
		}
		if got := slot.Load(); got != want {
			t.Errorf("slot for %s holds %#x, loader says %#x", candidate, got, want)
		}
		return
	}
	t.Skip("no known kernel32 import bound in this binary")
}

func TestIATEntryNotFound(t *testing.T) {
	self := CurrentProcess()
	if _, err := self.IATEntry("kernel32.dll", "DefinitelyNotAnExport"); !errors.Is(err, pe.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := self.IATEntry("no_such_module_xyz.dll", "WriteFile"); !errors.Is(err, pe.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestUnprotectRestores(t *testing.T) {
	m := Load("winmm.dll")
	if !m.IsValid() {
		t.Skip("winmm.dll unavailable")
	}
	defer m.Free()

	restore, err := m.Unprotect()
	if err != nil {
		t.Skipf("VirtualProtect refused: %v", err)
	}

	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(m.Base(), &info, unsafe.Sizeof(info)); err == nil {
		if info.Protect != windows.PAGE_EXECUTE_READWRITE {
			t.Errorf("protection after Unprotect: got %#x, want PAGE_EXECUTE_READWRITE", info.Protect)
		}
	}

	if err := restore(); err != nil {
		t.Errorf("restore: %v", err)
	}
}
