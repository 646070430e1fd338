// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package nt

import (
	"golang.org/x/sys/windows"
)

// Resource returns a copy of the RT_RCDATA resource with the given id from
// the module.
func (m Module) Resource(id uint16) ([]byte, error) {
	if !m.IsValid() {
		return nil, ErrInvalidModule
	}

	res, err := windows.FindResource(m.handle, windows.ResourceID(id), windows.RT_RCDATA)
	if err != nil {
		return nil, err
	}
	return windows.LoadResourceData(m.handle, res)
}
