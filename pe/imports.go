// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"errors"
	"strings"
	"unsafe"
)

const (
	// Iteration caps for the sentinel-terminated import structures. Corrupted
	// sentinels fail the scan instead of running unbounded.
	maxImportDescriptors = 1024
	maxImportThunks      = 16384
	maxImportNameLength  = 256

	// A name-table entry whose masked value is small enough is an encoded
	// ordinal rather than a pointer to a hint/name record.
	ordinalValueMask = 0xFFFFFFF
	maxOrdinalValue  = 0xFFFF
)

// importDescriptor mirrors IMAGE_IMPORT_DESCRIPTOR.
type importDescriptor struct {
	OriginalFirstThunk uint32 // RVA of the import name table
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32 // RVA of the dependency module's name
	FirstThunk         uint32 // RVA of the import address table
}

func (d *importDescriptor) zero() bool {
	return d.OriginalFirstThunk == 0 && d.TimeDateStamp == 0 && d.ForwarderChain == 0 &&
		d.Name == 0 && d.FirstThunk == 0
}

// ExportResolver resolves symbols exported by a dependency module. It is the
// external capability the import resolver matches slots against; the loader
// binding in package nt satisfies it for real modules.
type ExportResolver interface {
	ExportByName(name string) (uintptr, error)
	ExportByOrdinal(ordinal uint16) (uintptr, error)
}

// ImportSlot is one located entry of the image's import address table. The
// slot itself lives in the image; mutating it through Patch redirects every
// call the image makes through that binding.
type ImportSlot struct {
	addr uintptr
}

// Addr returns the address of the slot inside the image.
func (s *ImportSlot) Addr() uintptr {
	return s.addr
}

// Load returns the function address currently bound into the slot.
func (s *ImportSlot) Load() uintptr {
	return *(*uintptr)(unsafe.Pointer(s.addr))
}

func (s *ImportSlot) store(v uintptr) {
	*(*uintptr)(unsafe.Pointer(s.addr)) = v
}

// Patch writes target into the slot and returns a handle that remembers the
// value the slot held before. The slot's memory must be writable; see
// nt.Module.Unprotect.
//
// The write is not synchronized against concurrent callers of the patched
// import; callers needing exclusion must serialize externally.
func (s *ImportSlot) Patch(target uintptr) *SlotPatch {
	p := &SlotPatch{slot: s, original: s.Load()}
	s.store(target)
	return p
}

// SlotPatch records the original value of a patched import slot so the
// redirection can be undone.
type SlotPatch struct {
	slot     *ImportSlot
	original uintptr
	restored bool
}

// Original returns the address the slot held before the patch.
func (p *SlotPatch) Original() uintptr {
	return p.original
}

// Restore writes the original value back into the slot. Subsequent calls are
// no-ops.
func (p *SlotPatch) Restore() {
	if p.restored {
		return
	}
	p.slot.store(p.original)
	p.restored = true
}

// ImportSlot locates the slot in this image's import address table that is
// bound to the symbol the dependency module moduleName exports under
// symbolName. The match is made against the address exports resolves for
// symbolName; entries that miss by address are retried through their encoded
// ordinal, if any. ErrNotFound is returned when the symbol cannot be resolved
// or no slot is bound to it.
//
// Every descriptor whose module name matches is scanned; a dependency that
// appears in several descriptors is searched in each of them.
func (img *Image) ImportSlot(moduleName, symbolName string, exports ExportResolver) (*ImportSlot, error) {
	target, err := exports.ExportByName(symbolName)
	if err != nil || target == 0 {
		return nil, ErrNotFound
	}

	dde, err := img.DataDirectoryEntry(IMAGE_DIRECTORY_ENTRY_IMPORT)
	if err != nil {
		if errors.Is(err, ErrNotPresent) || errors.Is(err, ErrIndexOutOfRange) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	for i := uintptr(0); i < maxImportDescriptors; i++ {
		desc, err := view[importDescriptor](img, uintptr(dde.VirtualAddress)+i*unsafe.Sizeof(importDescriptor{}))
		if err != nil {
			return nil, err
		}
		if desc.zero() || desc.Name == 0 {
			return nil, ErrNotFound
		}

		name, err := img.cstringAt(desc.Name, maxImportNameLength)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(name, moduleName) {
			continue
		}

		slot, err := img.matchThunks(desc, target, exports)
		if err != nil {
			return nil, err
		}
		if slot != nil {
			return slot, nil
		}
	}

	return nil, ErrScanLimit
}

// matchThunks walks a descriptor's name table and address table in lock-step,
// returning the address-table slot bound to target, or nil when the
// descriptor's NUL sentinel is reached without a match.
func (img *Image) matchThunks(desc *importDescriptor, target uintptr, exports ExportResolver) (*ImportSlot, error) {
	nameTable := uintptr(desc.OriginalFirstThunk)
	if nameTable == 0 {
		// Descriptors without a separate name table use the address table
		// for both roles.
		nameTable = uintptr(desc.FirstThunk)
	}
	addrTable := uintptr(desc.FirstThunk)
	step := unsafe.Sizeof(uintptr(0))

	for i := uintptr(0); i < maxImportThunks; i++ {
		nameEntry, err := view[uintptr](img, nameTable+i*step)
		if err != nil {
			return nil, err
		}
		if *nameEntry == 0 {
			return nil, nil
		}

		addrEntry, err := view[uintptr](img, addrTable+i*step)
		if err != nil {
			return nil, err
		}
		if *addrEntry == target {
			return &ImportSlot{addr: img.base + addrTable + i*step}, nil
		}

		if ordinal := *nameEntry & ordinalValueMask; ordinal <= maxOrdinalValue {
			if addr, err := exports.ExportByOrdinal(uint16(ordinal)); err == nil && addr == target {
				return &ImportSlot{addr: img.base + addrTable + i*step}, nil
			}
		}
	}

	return nil, ErrScanLimit
}

// ImportedModules returns the names of the dependency modules listed in the
// image's import descriptor table, in stored order. Images without an import
// directory yield an empty result.
func (img *Image) ImportedModules() ([]string, error) {
	dde, err := img.DataDirectoryEntry(IMAGE_DIRECTORY_ENTRY_IMPORT)
	if err != nil {
		if errors.Is(err, ErrNotPresent) || errors.Is(err, ErrIndexOutOfRange) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for i := uintptr(0); i < maxImportDescriptors; i++ {
		desc, err := view[importDescriptor](img, uintptr(dde.VirtualAddress)+i*unsafe.Sizeof(importDescriptor{}))
		if err != nil {
			return nil, err
		}
		if desc.zero() || desc.Name == 0 {
			return names, nil
		}

		name, err := img.cstringAt(desc.Name, maxImportNameLength)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return nil, ErrScanLimit
}
