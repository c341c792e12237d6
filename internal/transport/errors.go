package transport

import (
	"errors"
	"fmt"

	"github.com/danmuck/netcore/internal/protocol"
)

var (
	ErrClosed       = fmt.Errorf("%w: transport: connection closed", protocol.ErrTransport)
	ErrConnect      = fmt.Errorf("%w: transport: connect failed", protocol.ErrTransport)
	ErrIdle         = fmt.Errorf("%w: transport: idle timeout", protocol.ErrTransport)
	ErrForced       = fmt.Errorf("%w: transport: closed by server", protocol.ErrTransport)
	ErrServerClosed = fmt.Errorf("%w: transport: server closed", protocol.ErrTransport)
	ErrCallTimeout  = fmt.Errorf("%w: transport: call timed out", protocol.ErrTransport)
)

var (
	ErrDropped         = errors.New("transport: payload dropped by handler")
	ErrNotFound        = errors.New("transport: connection not found")
	ErrNoListener      = errors.New("transport: no tcp or udp address configured")
	ErrUnknownNetwork  = errors.New("transport: unknown network")
	ErrInvalidResponse = errors.New("transport: invalid response")
)
