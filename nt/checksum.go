// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package nt

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// FileChecksum sums every byte of the file at path into a uint32 with silent
// wraparound. It is a content fingerprint, not the PE header checksum; any
// failure to read the file yields 0.
func FileChecksum(path string) uint32 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return 0
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return 0
	}
	defer data.Unmap()

	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
