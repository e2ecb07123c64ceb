//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package iocore

import (
	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/iocore/backend/kqueue"
)

// defaultBackendFactory constructs the platform's native backend: kqueue on
// BSD-family kernels and macOS.
func defaultBackendFactory() (backend.Backend, error) {
	return kqueue.New(), nil
}
