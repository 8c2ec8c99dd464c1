//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

// TCGETS is Linux's ioctl number for reading terminal attributes.
const TCGETS = 0x5401

// isTerminal checks whether fd is a terminal, deciding whether
// logger.Init's text handler writes ANSI color codes.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		TCGETS, // Linux uses TCGETS
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return err == 0
}
