//go:build windows

package iocore

import (
	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/iocore/backend/iocp"
)

// defaultBackendFactory constructs the platform's native backend: a
// completion port on Windows.
func defaultBackendFactory() (backend.Backend, error) {
	return iocp.New(), nil
}
