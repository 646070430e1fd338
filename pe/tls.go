// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"errors"
	"unsafe"
)

// maxTLSCallbacks bounds the scan for the callback array's NUL terminator.
// A corrupted terminator fails the enumeration instead of walking off into
// unmapped memory.
const maxTLSCallbacks = 4096

// tlsDirectory mirrors IMAGE_TLS_DIRECTORY for the host architecture.
type tlsDirectory struct {
	StartAddressOfRawData uintptr
	EndAddressOfRawData   uintptr
	AddressOfIndex        uintptr
	AddressOfCallBacks    uintptr
	SizeOfZeroFill        uint32
	Characteristics       uint32
}

// TLSCallbacks returns the addresses of the image's thread-local-storage
// initialization callbacks in array order. Images without a TLS directory, or
// with an empty callback array, yield an empty result and no error.
//
// The callback array is an absolute-addressed, NUL-terminated pointer array;
// every slot read is bounds-checked against the image extent and the scan is
// capped at maxTLSCallbacks entries.
func (img *Image) TLSCallbacks() ([]uintptr, error) {
	dde, err := img.DataDirectoryEntry(IMAGE_DIRECTORY_ENTRY_TLS)
	if err != nil {
		if errors.Is(err, ErrNotPresent) || errors.Is(err, ErrIndexOutOfRange) {
			return nil, nil
		}
		return nil, err
	}

	dir, err := view[tlsDirectory](img, dde.VirtualAddress)
	if err != nil {
		return nil, err
	}
	if dir.AddressOfCallBacks == 0 {
		return nil, nil
	}

	// AddressOfCallBacks is a VA, not an RVA; it must point inside this image.
	if dir.AddressOfCallBacks < img.base {
		return nil, ErrInvalidImage
	}
	arrayOffset := dir.AddressOfCallBacks - img.base

	var callbacks []uintptr
	for i := uintptr(0); i < maxTLSCallbacks; i++ {
		slot, err := view[uintptr](img, arrayOffset+i*unsafe.Sizeof(uintptr(0)))
		if err != nil {
			return nil, err
		}
		if *slot == 0 {
			return callbacks, nil
		}
		callbacks = append(callbacks, *slot)
	}

	return nil, ErrScanLimit
}
