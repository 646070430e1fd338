// Copyright (c) the iw8-mod AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package nt

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/TheBlaster041/iw8-mod/pe"
)

// RelaunchSelf starts a fresh instance of the current process with the same
// command line and working directory. The new process is not waited on.
func RelaunchSelf() error {
	path := CurrentProcess().Path()
	if path == "" {
		return ErrInvalidModule
	}
	path16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	var cwd *uint16
	var cwdBuf [windows.MAX_PATH]uint16
	if _, err := windows.GetCurrentDirectory(uint32(len(cwdBuf)), &cwdBuf[0]); err == nil {
		cwd = &cwdBuf[0]
	}

	si := windows.StartupInfo{Cb: uint32(unsafe.Sizeof(windows.StartupInfo{}))}
	var pi windows.ProcessInformation
	if err := windows.CreateProcess(
		path16,
		windows.GetCommandLine(),
		nil,
		nil,
		false,
		0,
		nil,
		cwd,
		&si,
		&pi,
	); err != nil {
		return err
	}

	if pi.Thread != 0 && pi.Thread != windows.InvalidHandle {
		windows.CloseHandle(pi.Thread)
	}
	if pi.Process != 0 && pi.Process != windows.InvalidHandle {
		windows.CloseHandle(pi.Process)
	}
	return nil
}

// Terminate ends the current process immediately with the given exit code.
func Terminate(code uint32) {
	windows.TerminateProcess(windows.CurrentProcess(), code)
}

// DebugToDebugger routes package pe's parse diagnostics to the attached
// debugger via OutputDebugString.
func DebugToDebugger() {
	pe.DebugLog = func(format string, args ...any) {
		msg, err := windows.UTF16PtrFromString(fmt.Sprintf(format, args...))
		if err != nil {
			return
		}
		windows.OutputDebugString(msg)
	}
}
