// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package nt provides borrowed handles to modules mapped by the Windows
// loader and conveniences for introspecting and patching their import
// bindings through package pe.
package nt

import "errors"

// ErrInvalidModule is returned by operations on a Module whose handle is
// null or whose base does not carry a DOS header.
var ErrInvalidModule = errors.New("invalid module handle")
