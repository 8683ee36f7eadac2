// Package netutil provides TCP port allocation for instances started
// without an explicit port.
package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// maxPortRetries is the maximum number of attempts to find a port not
// already in the registry. Guards against pathological cases.
const maxPortRetries = 20

// PortRegistry tracks ports reserved by this process. It closes the TOCTOU
// window where two concurrent Allocate calls receive the same port from the
// kernel because the first caller closed its probe listener before the
// second caller opened theirs. One registry is shared by all instances a
// process starts.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{ports: make(map[int]struct{}), log: logger}
}

// reserve registers a port. Returns false if it is already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// Allocate asks the kernel for a free TCP port, skipping ports already in
// the registry. The port stays registered until the caller releases it.
func (r *PortRegistry) Allocate() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("resolve tcp address: %w", err)
	}

	for range maxPortRetries {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return 0, fmt.Errorf("listen on tcp address: %w", err)
		}
		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return 0, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		port := tcpAddr.Port
		if !r.reserve(port) {
			// Already handed out by this process; close and retry for
			// a different one.
			r.log.Debug("port already in registry, retrying", "port", port)
			_ = l.Close()
			continue
		}
		if closeErr := l.Close(); closeErr != nil {
			r.log.Warn("close listener after port allocation", "port", port, "error", closeErr)
		}
		return port, nil
	}
	return 0, fmt.Errorf("allocate unique port: exhausted %d attempts", maxPortRetries)
}
