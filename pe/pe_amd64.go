// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	dpe "debug/pe"
)

type optionalHeader dpe.OptionalHeader64

const (
	expectedMachine     = dpe.IMAGE_FILE_MACHINE_AMD64
	optionalHeaderMagic = 0x020B
)
