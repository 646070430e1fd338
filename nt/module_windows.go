// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package nt

import (
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/TheBlaster041/iw8-mod/pe"
)

const imageDOSSignature = 0x5A4D // 'MZ'

// Module is a borrowed reference to an image the loader has mapped into the
// current process. The zero Module is invalid. Modules compare equal when
// they reference the same base address.
//
// A Module never owns the mapping: lifetime is governed by the loader, and
// only Free releases a reference (the one taken by Load).
type Module struct {
	handle windows.Handle
}

// Load maps the named module into the process, taking a loader reference.
// Failures yield the zero, invalid Module.
func Load(name string) Module {
	h, err := windows.LoadLibrary(name)
	if err != nil {
		return Module{}
	}
	return Module{handle: h}
}

// Existing returns a handle to an already-loaded module without changing its
// reference count. The zero Module is returned when no such module is loaded.
func Existing(name string) Module {
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return Module{}
	}
	h, err := windows.GetModuleHandle(name16)
	if err != nil {
		return Module{}
	}
	return Module{handle: h}
}

// CurrentProcess returns the process's own main image.
func CurrentProcess() Module {
	h, err := windows.GetModuleHandle(nil)
	if err != nil {
		return Module{}
	}
	return Module{handle: h}
}

// FromAddress resolves the module owning an arbitrary code or data address,
// without changing the module's reference count.
func FromAddress(addr uintptr) Module {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(
		windows.GET_MODULE_HANDLE_EX_FLAG_FROM_ADDRESS|windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT,
		(*uint16)(unsafe.Pointer(addr)),
		&h,
	); err != nil {
		return Module{}
	}
	return Module{handle: h}
}

// Handle returns the raw loader handle, including any datafile flag bits.
func (m Module) Handle() windows.Handle {
	return m.handle
}

// Base returns the address the module is mapped at.
func (m Module) Base() uintptr {
	// Handles for modules loaded as datafiles or image resources carry flag
	// bits in the low two bits.
	return uintptr(m.handle) &^ 3
}

// IsValid reports whether the handle references memory that starts with a DOS
// header. It tolerates being asked about garbage: only the two magic bytes at
// the base are examined.
func (m Module) IsValid() bool {
	if m.handle == 0 {
		return false
	}
	return *(*uint16)(unsafe.Pointer(m.Base())) == imageDOSSignature
}

// Free releases the loader reference held by this Module and invalidates it.
// A no-op on an invalid Module.
func (m *Module) Free() {
	if m.IsValid() {
		windows.FreeLibrary(m.handle)
		m.handle = 0
	}
}

// Image returns a parsed view over the module's in-memory headers.
func (m Module) Image() (*pe.Image, error) {
	if !m.IsValid() {
		return nil, ErrInvalidModule
	}

	var info windows.ModuleInfo
	if err := windows.GetModuleInformation(
		windows.CurrentProcess(),
		m.handle,
		&info,
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		// Datafile mappings are not in the loader's module list; fall back
		// to the size the validated headers claim.
		return pe.NewImage(m.Base())
	}
	return pe.NewImageWithSize(m.Base(), uintptr(info.SizeOfImage))
}

// Path returns the full path of the module's backing file, or "" for an
// invalid module.
func (m Module) Path() string {
	if !m.IsValid() {
		return ""
	}

	var buf [windows.MAX_PATH]uint16
	n, err := windows.GetModuleFileName(m.handle, &buf[0], uint32(len(buf)))
	if err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

// Name returns the file name component of Path.
func (m Module) Name() string {
	path := m.Path()
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// Folder returns the directory component of Path.
func (m Module) Folder() string {
	path := m.Path()
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

// EntryPoint returns the absolute address of the module's entry point, or 0
// when the module is invalid or has none.
func (m Module) EntryPoint() uintptr {
	img, err := m.Image()
	if err != nil {
		return 0
	}
	rva := img.EntryPointRVA()
	if rva == 0 {
		return 0
	}
	return m.Base() + uintptr(rva)
}

// Checksum returns the byte-sum fingerprint of the module's backing file, or
// 0 when the file cannot be read.
func (m Module) Checksum() uint32 {
	return FileChecksum(m.Path())
}

// ExportByName resolves a symbol the module exports by name.
func (m Module) ExportByName(name string) (uintptr, error) {
	if !m.IsValid() {
		return 0, ErrInvalidModule
	}
	return windows.GetProcAddress(m.handle, name)
}

// ExportByOrdinal resolves a symbol the module exports by ordinal.
func (m Module) ExportByOrdinal(ordinal uint16) (uintptr, error) {
	if !m.IsValid() {
		return 0, ErrInvalidModule
	}
	return windows.GetProcAddressByOrdinal(m.handle, uintptr(ordinal))
}

// IATEntry locates the slot in this module's import address table bound to
// procName as exported by moduleName. The target module must already be
// loaded. The returned slot may be patched to redirect the binding; its page
// must first be made writable (see Unprotect).
func (m Module) IATEntry(moduleName, procName string) (*pe.ImportSlot, error) {
	if !m.IsValid() {
		return nil, ErrInvalidModule
	}

	target := Existing(moduleName)
	if !target.IsValid() {
		return nil, pe.ErrNotFound
	}

	img, err := m.Image()
	if err != nil {
		return nil, err
	}
	return img.ImportSlot(moduleName, procName, target)
}

// Unprotect makes the module's entire mapping readable, writable and
// executable, and returns a function that restores the previous protection.
// The window between the two calls is a process-wide side effect; nothing
// else synchronizes against it.
func (m Module) Unprotect() (restore func() error, err error) {
	if !m.IsValid() {
		return nil, ErrInvalidModule
	}

	img, err := m.Image()
	if err != nil {
		return nil, err
	}

	base := m.Base()
	size := uintptr(img.SizeOfImage())
	var previous uint32
	if err := windows.VirtualProtect(base, size, windows.PAGE_EXECUTE_READWRITE, &previous); err != nil {
		return nil, err
	}

	return func() error {
		var scratch uint32
		return windows.VirtualProtect(base, size, previous, &scratch)
	}, nil
}
