package iocore

import "os"

// closeSocket closes a raw platform socket descriptor. Routed through
// os.NewFile rather than a syscall package directly so Core stays free of
// the platform ifdef logic spec.md §6.3 reserves for backend primitives —
// os.File.Close calls the right close primitive (close(2) / closesocket)
// for the current GOOS on its own.
func closeSocket(fd int) error {
	if fd < 0 {
		return nil
	}
	return os.NewFile(uintptr(fd), "").Close()
}
