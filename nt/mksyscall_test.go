// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build windows

package nt

//go:generate go run golang.org/x/sys/windows/mkwinsyscall -output zsyscall_windows_test.go mksyscall_test.go
//go:generate go run golang.org/x/tools/cmd/goimports -w zsyscall_windows_test.go

import (
	dpe "debug/pe"
)

// _IMAGE_NT_HEADERS_FIXED is IMAGE_NT_HEADERS sans OptionalHeader, whose
// layout differs between 32 and 64 bit implementations.
type _IMAGE_NT_HEADERS_FIXED struct {
	Signature  uint32
	FileHeader dpe.FileHeader
}

//sys	imageNtHeader(base uintptr) (ret *_IMAGE_NT_HEADERS_FIXED, err error) [failretval==nil] = dbghelp.ImageNtHeader
//sys	imageDirectoryEntryToDataEx(base uintptr, mappedAsImage byte, directoryEntry uint16, size *uint32, foundHeader *uintptr) (ret uintptr, err error) [failretval==0] = dbghelp.ImageDirectoryEntryToDataEx
