package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	ErrNotRunning     = errors.New("transport: not running")
	ErrAlreadyRunning = errors.New("transport: already running")
	ErrNilAddr        = errors.New("transport: nil peer address")
)

// ConnectionError reports a failed endpoint creation.
type ConnectionError struct {
	Op   string
	Addr string
	Port int
	Err  error
}

func (e ConnectionError) Error() string {
	target := net.JoinHostPort(e.Addr, strconv.Itoa(e.Port))
	if e.Err == nil {
		return fmt.Sprintf("transport: failed to %s %s", e.Op, target)
	}
	return fmt.Sprintf("transport: failed to %s %s: %v", e.Op, target, e.Err)
}

func (e ConnectionError) Unwrap() error {
	return e.Err
}
