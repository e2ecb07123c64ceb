//go:build linux

package ioring

import "unsafe"

// addrOf returns buf's backing address as the raw pointer value an SQE's
// Addr field expects. Callers must keep a reference to buf alive until the
// operation's completion is observed (see Backend.pending).
func addrOf(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}
