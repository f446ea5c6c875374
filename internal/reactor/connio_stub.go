//go:build !linux

package reactor

import (
	"fmt"
	"syscall"
)

// ConnReader is unavailable outside linux; build for linux to drive
// connection reads through the epoll-backed reactor fleet.
type ConnReader struct{}

// NewConnReader always fails on this platform.
func NewConnReader(conn syscall.Conn, r *Reactor, onData func([]byte), onClose func(error)) (*ConnReader, error) {
	return nil, fmt.Errorf("reactor: ConnReader requires linux")
}

func (cr *ConnReader) FD() int    { return -1 }
func (cr *ConnReader) Close() error { return nil }
