// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package nt

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/TheBlaster041/iw8-mod/pe"
)

var (
	errFixedFileInfoTooShort = errors.New("buffer smaller than VS_FIXEDFILEINFO")
	errFixedFileInfoBadSig   = errors.New("bad VS_FIXEDFILEINFO signature")
)

// VersionNumber is the fixed four-part version of a module's backing file.
type VersionNumber struct {
	Major uint16
	Minor uint16
	Patch uint16
	Build uint16
}

func (vn VersionNumber) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", vn.Major, vn.Minor, vn.Patch, vn.Build)
}

// Version returns the fixed file-version number recorded in the version
// resource of the module's backing file. Modules without a version resource
// yield pe.ErrNotPresent.
func (m Module) Version() (VersionNumber, error) {
	path := m.Path()
	if path == "" {
		return VersionNumber{}, ErrInvalidModule
	}

	bufSize, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		if errors.Is(err, windows.ERROR_RESOURCE_TYPE_NOT_FOUND) {
			err = pe.ErrNotPresent
		}
		return VersionNumber{}, err
	}

	buf := make([]byte, bufSize)
	if err := windows.GetFileVersionInfo(path, 0, bufSize, unsafe.Pointer(&buf[0])); err != nil {
		return VersionNumber{}, err
	}

	var fixed *windows.VS_FIXEDFILEINFO
	var fixedLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\`, unsafe.Pointer(&fixed), &fixedLen); err != nil {
		return VersionNumber{}, err
	}
	if fixedLen < uint32(unsafe.Sizeof(windows.VS_FIXEDFILEINFO{})) {
		return VersionNumber{}, errFixedFileInfoTooShort
	}
	if fixed.Signature != 0xFEEF04BD {
		return VersionNumber{}, errFixedFileInfoBadSig
	}

	return VersionNumber{
		Major: uint16(fixed.FileVersionMS >> 16),
		Minor: uint16(fixed.FileVersionMS & 0xFFFF),
		Patch: uint16(fixed.FileVersionLS >> 16),
		Build: uint16(fixed.FileVersionLS & 0xFFFF),
	}, nil
}
