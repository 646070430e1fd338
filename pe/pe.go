// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package pe provides bounds-checked views over PE images that are already
// mapped into the current process's address space.
//
// Every accessor is a pure function of the image's base address and the byte
// content behind it. The package never allocates or frees the backing image;
// if the module is unloaded while a view is still in use, behaviour becomes
// undefined.
package pe

import (
	dpe "debug/pe"
	"errors"
	"unsafe"

	"golang.org/x/exp/constraints"
)

var (
	ErrInvalidImage       = errors.New("invalid PE image")
	ErrUnsupportedMachine = errors.New("unsupported machine")
	ErrNotPresent         = errors.New("not present in this PE image")
	ErrNotFound           = errors.New("no matching import slot")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrScanLimit          = errors.New("sentinel scan exceeded iteration limit")
)

const (
	offsetDOSHeaderELfanew = 60
	sizeDOSHeader          = 64
	maxNumSections         = 96 // per PE spec
	// minImageSize is the smallest mapping the header bootstrap will trust.
	// Until the optional header has been validated, SizeOfImage is unknown,
	// so every header offset is checked against one page.
	minImageSize = 4096
)

// DebugLog, when non-nil, receives diagnostics about malformed but non-fatal
// structures encountered while parsing (for example skipped section records).
// The package is silent by default.
var DebugLog func(format string, args ...any)

func debugf(format string, args ...any) {
	if DebugLog != nil {
		DebugLog(format, args...)
	}
}

// Image is a read-only view over the PE headers of an image mapped at a known
// base address. The backing memory is borrowed, never owned.
type Image struct {
	base           uintptr
	limit          uintptr
	fileHeader     *dpe.FileHeader
	optionalHeader *optionalHeader
	sections       []*SectionHeader
}

// SectionHeader is one record of the section table.
type SectionHeader struct {
	dpe.SectionHeader32
}

// NameString returns the section name with trailing NUL padding removed.
func (s *SectionHeader) NameString() string {
	for i, c := range s.Name {
		if c == 0 {
			return string(s.Name[:i])
		}
	}
	return string(s.Name[:])
}

func addOffset[O constraints.Integer](base uintptr, off O) uintptr {
	if off >= 0 {
		return base + uintptr(off)
	}

	negation := uintptr(-off)
	if negation >= base {
		return 0
	}
	return base - negation
}

// view reinterprets the bytes at img.base+off as a T, refusing offsets whose
// extent falls outside [img.base, img.limit).
func view[T any, O constraints.Integer](img *Image, off O) (*T, error) {
	szT := unsafe.Sizeof(*((*T)(nil)))
	addr := addOffset(img.base, off)
	if addr < img.base || addr+szT > img.limit {
		return nil, ErrInvalidImage
	}
	return (*T)(unsafe.Pointer(addr)), nil
}

// NewImage parses the headers of the image mapped at baseAddr. The image's
// own SizeOfImage field, once validated, bounds all further reads.
func NewImage(baseAddr uintptr) (*Image, error) {
	return newImage(baseAddr, 0)
}

// NewImageWithSize parses the headers of the image mapped at baseAddr whose
// mapping is known to span size bytes. SizeOfImage claims beyond the mapping
// are rejected.
func NewImageWithSize(baseAddr, size uintptr) (*Image, error) {
	if size == 0 {
		return nil, ErrInvalidImage
	}
	return newImage(baseAddr, size)
}

func newImage(baseAddr, size uintptr) (*Image, error) {
	if baseAddr == 0 {
		return nil, ErrInvalidImage
	}

	probe := uintptr(minImageSize)
	if size != 0 && size < probe {
		probe = size
	}
	img := &Image{base: baseAddr, limit: baseAddr + probe}

	mz, err := view[[2]byte](img, 0)
	if err != nil {
		return nil, err
	}
	if mz[0] != 'M' || mz[1] != 'Z' {
		return nil, ErrInvalidImage
	}

	// e_lfanew is untrusted until proven to land inside the probe window.
	eLfanew, err := view[int32](img, offsetDOSHeaderELfanew)
	if err != nil {
		return nil, err
	}
	if *eLfanew < sizeDOSHeader {
		return nil, ErrInvalidImage
	}

	sig, err := view[[4]byte](img, *eLfanew)
	if err != nil {
		return nil, err
	}
	if sig[0] != 'P' || sig[1] != 'E' || sig[2] != 0 || sig[3] != 0 {
		return nil, ErrInvalidImage
	}

	fileHeaderOffset := uintptr(*eLfanew) + unsafe.Sizeof(*sig)
	fileHeader, err := view[dpe.FileHeader](img, fileHeaderOffset)
	if err != nil {
		return nil, err
	}
	if fileHeader.Machine != expectedMachine {
		return nil, ErrUnsupportedMachine
	}

	optionalHeaderOffset := fileHeaderOffset + unsafe.Sizeof(dpe.FileHeader{})
	optHeader, err := view[optionalHeader](img, optionalHeaderOffset)
	if err != nil {
		return nil, err
	}
	if optHeader.Magic != optionalHeaderMagic {
		return nil, ErrInvalidImage
	}

	// The optional header is trustworthy now; widen the window to the full
	// mapping before touching anything it points at.
	mapped := uintptr(optHeader.SizeOfImage)
	if mapped < minImageSize {
		return nil, ErrInvalidImage
	}
	if size != 0 && mapped > size {
		return nil, ErrInvalidImage
	}
	img.limit = baseAddr + mapped
	img.fileHeader = fileHeader
	img.optionalHeader = optHeader

	numSections := fileHeader.NumberOfSections
	if numSections > maxNumSections {
		numSections = maxNumSections
	}

	sectionTableOffset := optionalHeaderOffset + uintptr(fileHeader.SizeOfOptionalHeader)
	img.sections = make([]*SectionHeader, 0, numSections)
	for i := uint16(0); i < numSections; i++ {
		off := sectionTableOffset + uintptr(i)*unsafe.Sizeof(SectionHeader{})
		sh, err := view[SectionHeader](img, off)
		if err != nil {
			debugf("pe: section record %d extends past the image, stopping enumeration", i)
			break
		}
		if sh.Name[0] == 0 && sh.VirtualAddress == 0 && sh.VirtualSize == 0 {
			debugf("pe: skipping empty section record %d", i)
			continue
		}
		img.sections = append(img.sections, sh)
	}

	return img, nil
}

// Base returns the address the image is mapped at.
func (img *Image) Base() uintptr {
	return img.base
}

// FileHeader returns a view of the image's COFF file header.
func (img *Image) FileHeader() *dpe.FileHeader {
	return img.fileHeader
}

// SizeOfImage returns the extent of the mapping as claimed by the validated
// optional header.
func (img *Image) SizeOfImage() uint32 {
	return img.optionalHeader.SizeOfImage
}

// EntryPointRVA returns the relative address of the image's entry point,
// which may be 0 for images without one.
func (img *Image) EntryPointRVA() uint32 {
	return img.optionalHeader.AddressOfEntryPoint
}

// Sections returns views of the section table records in stored order.
// Malformed records are skipped during parsing, so the result may be shorter
// than the file header's section count.
func (img *Image) Sections() []*SectionHeader {
	return img.sections
}

const (
	IMAGE_DIRECTORY_ENTRY_EXPORT         = dpe.IMAGE_DIRECTORY_ENTRY_EXPORT
	IMAGE_DIRECTORY_ENTRY_IMPORT         = dpe.IMAGE_DIRECTORY_ENTRY_IMPORT
	IMAGE_DIRECTORY_ENTRY_RESOURCE       = dpe.IMAGE_DIRECTORY_ENTRY_RESOURCE
	IMAGE_DIRECTORY_ENTRY_EXCEPTION      = dpe.IMAGE_DIRECTORY_ENTRY_EXCEPTION
	IMAGE_DIRECTORY_ENTRY_SECURITY       = dpe.IMAGE_DIRECTORY_ENTRY_SECURITY
	IMAGE_DIRECTORY_ENTRY_BASERELOC      = dpe.IMAGE_DIRECTORY_ENTRY_BASERELOC
	IMAGE_DIRECTORY_ENTRY_DEBUG          = dpe.IMAGE_DIRECTORY_ENTRY_DEBUG
	IMAGE_DIRECTORY_ENTRY_ARCHITECTURE   = dpe.IMAGE_DIRECTORY_ENTRY_ARCHITECTURE
	IMAGE_DIRECTORY_ENTRY_GLOBALPTR      = dpe.IMAGE_DIRECTORY_ENTRY_GLOBALPTR
	IMAGE_DIRECTORY_ENTRY_TLS            = dpe.IMAGE_DIRECTORY_ENTRY_TLS
	IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG    = dpe.IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG
	IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT   = dpe.IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT
	IMAGE_DIRECTORY_ENTRY_IAT            = dpe.IMAGE_DIRECTORY_ENTRY_IAT
	IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT   = dpe.IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT
	IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR = dpe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR
)

// DataDirectory returns the optional header's data directory, truncated to
// the count the header claims is present.
func (img *Image) DataDirectory() []dpe.DataDirectory {
	cnt := img.optionalHeader.NumberOfRvaAndSizes
	if maxCnt := uint32(len(img.optionalHeader.DataDirectory)); cnt > maxCnt {
		cnt = maxCnt
	}
	return img.optionalHeader.DataDirectory[:cnt]
}

// DataDirectoryEntry returns the data directory entry at idx. idx must be one
// of the IMAGE_DIRECTORY_ENTRY_* constants. Absent entries yield
// ErrNotPresent.
func (img *Image) DataDirectoryEntry(idx int) (dpe.DataDirectory, error) {
	dd := img.DataDirectory()
	if idx < 0 || idx >= len(dd) {
		return dpe.DataDirectory{}, ErrIndexOutOfRange
	}

	dde := dd[idx]
	if dde.VirtualAddress == 0 || dde.Size == 0 {
		return dpe.DataDirectory{}, ErrNotPresent
	}
	return dde, nil
}

// cstringAt reads a NUL-terminated string at the given RVA. Strings longer
// than maxLen are treated as corruption.
func (img *Image) cstringAt(rva uint32, maxLen int) (string, error) {
	buf := make([]byte, 0, 16)
	for i := 0; i < maxLen; i++ {
		b, err := view[byte](img, uintptr(rva)+uintptr(i))
		if err != nil {
			return "", err
		}
		if *b == 0 {
			return string(buf), nil
		}
		buf = append(buf, *b)
	}
	return "", ErrScanLimit
}
