// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	dpe "debug/pe"
)

type optionalHeader dpe.OptionalHeader32

const (
	expectedMachine     = dpe.IMAGE_FILE_MACHINE_I386
	optionalHeaderMagic = 0x010B
)
